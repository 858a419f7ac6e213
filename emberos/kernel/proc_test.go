package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/proto"
)

func TestWaitCollectsExitCode(t *testing.T) {
	var child, waited int64
	var code int32
	initProg := Text{
		sys(proto.SysClone),
		func(u *UserContext) {
			if u.Ret() == 0 {
				u.Ecall(proto.SysExit, 7)
				return
			}
			child = u.Ret()
			u.Regs().S0 = u.Regs().Sp - 16
			u.Ecall(proto.SysWait4, ^uint64(0), u.Regs().S0)
		},
		func(u *UserContext) {
			waited = u.Ret()
			code = le32At(u, u.Regs().S0)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"main": initProg}, Config{})
	free := k.Frames().FreeFrames()
	_, err := k.Boot("main", []string{"main"})
	require.NoError(t, err)

	err = run(t, k)
	require.ErrorIs(t, err, ErrIdle)
	assert.Equal(t, int64(2), child)
	assert.Equal(t, child, waited)
	assert.Equal(t, int32(7), code)
	assert.Empty(t, k.Procs())
	assert.Equal(t, free, k.Frames().FreeFrames())
}

func TestWaitWithoutChildren(t *testing.T) {
	ret := int64(99)
	initProg := Text{
		sys(proto.SysWait4, ^uint64(0), 0),
		record(&ret),
		sys(proto.SysExit, 0),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(-1), ret)
}

func TestWaitForSpecificPID(t *testing.T) {
	var first, second, waited int64
	initProg := Text{
		sys(proto.SysClone), // 0
		func(u *UserContext) { // 1
			if u.Ret() == 0 {
				u.Ecall(proto.SysExit, 1)
				return
			}
			first = u.Ret()
			u.Ecall(proto.SysClone)
		},
		func(u *UserContext) { // 2
			if u.Ret() == 0 {
				u.Ecall(proto.SysExit, 2)
				return
			}
			second = u.Ret()
			u.Ecall(proto.SysWait4, uint64(second), 0)
		},
		record(&waited),                    // 3
		sys(proto.SysWait4, ^uint64(0), 0), // 4
		sys(proto.SysWait4, ^uint64(0), 0), // 5: no children left
		func(u *UserContext) { // 6
			if u.Ret() != -1 {
				u.Ecall(proto.SysExit, 1)
				return
			}
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, second, waited)
	assert.NotEqual(t, first, second)
}

func TestForkCopiesHeap(t *testing.T) {
	var brk int64
	got := make([]byte, 6)
	initProg := Text{
		sys(proto.SysSbrk, 4096), // 0
		func(u *UserContext) { // 1
			brk = u.Ret()
			u.Store(uint64(brk), []byte("parent"))
			u.Ecall(proto.SysClone)
		},
		func(u *UserContext) { // 2
			if u.Ret() == 0 {
				u.Store(uint64(brk), []byte("child!"))
				u.Ecall(proto.SysExit, 0)
				return
			}
			u.Ecall(proto.SysWait4, ^uint64(0), 0)
		},
		func(u *UserContext) { // 3
			u.Load(uint64(brk), got)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(testStackTop), brk)
	assert.Equal(t, "parent", string(got))
}

func TestForkChildStartsAtDefaultPriority(t *testing.T) {
	var k *Kernel
	var parent, child uint64
	initProg := Text{
		sys(proto.SysSetPriority, 4), // 0
		sys(proto.SysClone),          // 1
		func(u *UserContext) { // 2
			if u.Ret() == 0 {
				child = k.Current().priority
				u.Ecall(proto.SysExit, 0)
				return
			}
			parent = k.Current().priority
			u.Ecall(proto.SysWait4, ^uint64(0), 0)
		},
		sys(proto.SysExit, 0), // 3
	}
	k, _ = newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, uint64(4), parent)
	assert.Equal(t, uint64(DefaultPriority), child)
}

func TestOrphanZombieStays(t *testing.T) {
	initProg := Text{
		sys(proto.SysClone), // 0
		func(u *UserContext) { // 1
			if u.Ret() == 0 {
				u.Ecall(proto.SysExit, 5)
				return
			}
			u.Ecall(proto.SysSchedYield)
		},
		sys(proto.SysSchedYield), // 2
		sys(proto.SysSchedYield), // 3
		sys(proto.SysExit, 0),    // 4
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)

	procs := k.Procs()
	require.Len(t, procs, 1)
	assert.Equal(t, Zombie, procs[0].State)
	assert.Equal(t, 5, procs[0].ExitCode)
	assert.Equal(t, IdlePID, procs[0].PPID)
}

func TestParentlessExitFreesSlot(t *testing.T) {
	var ppid int64 = -1
	initProg := Text{
		sys(proto.SysClone),
		func(u *UserContext) {
			if u.Ret() != 0 {
				u.Ecall(proto.SysExit, 0)
				return
			}
			u.Ecall(proto.SysSchedYield)
		},
		sys(proto.SysGetppid),
		record(&ppid),
		sys(proto.SysExit, 3),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(IdlePID), ppid)
	assert.Empty(t, k.Procs())
}

func TestProcessTableExhaustion(t *testing.T) {
	var first, second int64
	initProg := Text{
		sys(proto.SysClone),
		func(u *UserContext) {
			if u.Ret() == 0 {
				u.Ecall(proto.SysExit, 0)
				return
			}
			first = u.Ret()
			u.Ecall(proto.SysClone)
		},
		func(u *UserContext) {
			second = u.Ret()
			u.Ecall(proto.SysWait4, ^uint64(0), 0)
		},
		sys(proto.SysExit, 0),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{NProc: 2})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Positive(t, first)
	assert.Equal(t, int64(-1), second)
}

func TestExecPassesArguments(t *testing.T) {
	var argc, missing int64
	var arg1 string
	second := Text{
		func(u *UserContext) {
			argc = int64(u.Regs().A0)
			ptr, _ := u.Load64(u.Regs().A1 + 8)
			buf := make([]byte, 5)
			u.Load(ptr, buf)
			arg1 = string(buf[:4])
			u.Ecall(proto.SysExit, 0)
		},
	}
	initProg := Text{
		func(u *UserContext) {
			sp := u.Regs().Sp
			u.Store(sp-64, []byte("nope\x00"))
			u.Ecall(proto.SysExecve, sp-64, 0)
		},
		func(u *UserContext) {
			missing = u.Ret()
			sp := u.Regs().Sp
			u.Store(sp-64, []byte("second\x00"))
			u.Store(sp-128, []byte("argx\x00"))
			u.Store64(sp-160, sp-64)
			u.Store64(sp-152, sp-128)
			u.Store64(sp-144, 0)
			u.Ecall(proto.SysExecve, sp-64, sp-160)
		},
		sys(proto.SysExit, 1),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg, "second": second}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(-1), missing)
	assert.Equal(t, int64(2), argc)
	assert.Equal(t, "argx", arg1)
}

func TestSpawn(t *testing.T) {
	var pid, ppid, missing int64
	var code int32
	child := Text{
		sys(proto.SysGetppid),
		record(&ppid),
		sys(proto.SysExit, 3),
	}
	initProg := Text{
		func(u *UserContext) {
			u.Store(u.Regs().Sp-64, []byte("ghost\x00"))
			u.Ecall(proto.SysSpawn, u.Regs().Sp-64)
		},
		func(u *UserContext) {
			missing = u.Ret()
			u.Store(u.Regs().Sp-64, []byte("child\x00"))
			u.Ecall(proto.SysSpawn, u.Regs().Sp-64)
		},
		func(u *UserContext) {
			pid = u.Ret()
			u.Ecall(proto.SysWait4, uint64(pid), u.Regs().Sp-16)
		},
		func(u *UserContext) {
			code = le32At(u, u.Regs().Sp-16)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg, "child": child}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(-1), missing)
	assert.Equal(t, int64(2), pid)
	assert.Equal(t, int64(1), ppid)
	assert.Equal(t, int32(3), code)
}

func TestUserFaultKillsProcess(t *testing.T) {
	var code int32
	initProg := Text{
		sys(proto.SysClone),
		func(u *UserContext) {
			if u.Ret() == 0 {
				u.Store(0, []byte{1})
				return
			}
			u.Ecall(proto.SysWait4, ^uint64(0), u.Regs().Sp-16)
		},
		func(u *UserContext) {
			code = le32At(u, u.Regs().Sp-16)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int32(-1), code)
}

func TestIllegalInstructionKillsProcess(t *testing.T) {
	var code int32
	initProg := Text{
		sys(proto.SysClone), // 0
		func(u *UserContext) { // 1
			if u.Ret() == 0 {
				u.Goto(2)
				return
			}
			u.Goto(3)
		},
		nil, // 2
		func(u *UserContext) { // 3
			u.Ecall(proto.SysWait4, ^uint64(0), u.Regs().Sp-16)
		},
		func(u *UserContext) { // 4
			code = le32At(u, u.Regs().Sp-16)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int32(-1), code)
}

func TestGrowProc(t *testing.T) {
	var grow, under, shrink, after int64
	initProg := Text{
		sys(proto.SysSbrk, 8192),
		record(&grow),
		sys(proto.SysSbrk, uint64(0xFFFF_FFFF_FFFF_C000)), // -16384
		record(&under),
		sys(proto.SysSbrk, uint64(0xFFFF_FFFF_FFFF_E000)), // -8192
		record(&shrink),
		sys(proto.SysSbrk, 0),
		record(&after),
		sys(proto.SysExit, 0),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(testStackTop), grow)
	assert.Equal(t, int64(-1), under)
	assert.Equal(t, int64(testStackTop+8192), shrink)
	assert.Equal(t, int64(testStackTop), after)
}
