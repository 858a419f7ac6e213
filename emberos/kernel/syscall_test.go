package kernel

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ember/emberos/proto"
)

func TestWriteToConsole(t *testing.T) {
	var badFD, outOfRange, n int64
	initProg := Text{
		func(u *UserContext) {
			u.Store(u.Regs().Sp-64, []byte("hello\n"))
			u.Ecall(proto.SysWrite, proto.Stdout, u.Regs().Sp-64, 6)
		},
		record(&n),
		sys(proto.SysWrite, 7, 0x3000, 1),
		record(&badFD),
		sys(proto.SysWrite, FileTableSize, 0x3000, 1),
		record(&outOfRange),
		sys(proto.SysExit, 0),
	}
	k, con := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, "hello\n", con.String())
	assert.Equal(t, int64(6), n)
	assert.Equal(t, int64(-1), badFD)
	assert.Equal(t, int64(-1), outOfRange)
}

func TestUnknownSyscall(t *testing.T) {
	var ret int64
	initProg := Text{
		sys(4242),
		record(&ret),
		sys(proto.SysExit, 0),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(-1), ret)
}

func TestTaskInfo(t *testing.T) {
	var info proto.TaskInfo
	initProg := Text{
		sys(proto.SysGetpid),
		sys(proto.SysGetpid),
		func(u *UserContext) {
			u.Regs().S0 = u.Regs().Sp - 2100
			u.Ecall(proto.SysTaskInfo, u.Regs().S0)
		},
		func(u *UserContext) {
			buf := make([]byte, binary.Size(&info))
			u.Load(u.Regs().S0, buf)
			_, _ = binary.Decode(buf, binary.LittleEndian, &info)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	k.TickTo(100)
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, proto.TaskRunning, info.Status)
	assert.Equal(t, uint32(2), info.SyscallTimes[proto.SysGetpid])
	assert.Equal(t, uint32(1), info.SyscallTimes[proto.SysTaskInfo])
	assert.Zero(t, info.SyscallTimes[proto.SysWrite])
	assert.GreaterOrEqual(t, info.Time, int32(0))
}

func TestGettimeofday(t *testing.T) {
	var tv proto.TimeVal
	initProg := Text{
		func(u *UserContext) {
			u.Regs().S0 = u.Regs().Sp - 32
			u.Ecall(proto.SysGettimeofday, u.Regs().S0, 0)
		},
		func(u *UserContext) {
			tv.Sec, _ = u.Load64(u.Regs().S0)
			tv.Usec, _ = u.Load64(u.Regs().S0 + 8)
			u.Ecall(proto.SysExit, 0)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	k.TickTo(2500)
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, proto.TimeVal{Sec: 2, Usec: 500000}, tv)
}

func TestSetPriority(t *testing.T) {
	var low, ok int64
	initProg := Text{
		sys(proto.SysSetPriority, 1),
		record(&low),
		sys(proto.SysSetPriority, 64),
		record(&ok),
		sys(proto.SysExit, 0),
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Equal(t, int64(-1), low)
	assert.Equal(t, int64(64), ok)
}

func TestMmapSyscalls(t *testing.T) {
	const base = 0x1000_0000
	var mapped, bad, unmapped int64
	var value uint64
	loadAfterUnmap := true
	initProg := Text{
		sys(proto.SysMmap, base, 8192, 3, 0, 0),
		record(&mapped),
		sys(proto.SysMmap, base+1, 4096, 3, 0, 0),
		record(&bad),
		func(u *UserContext) {
			u.Store64(base+4096, 0xfeed)
			value, _ = u.Load64(base + 4096)
			u.Ecall(proto.SysMunmap, base, 8192)
		},
		record(&unmapped),
		func(u *UserContext) {
			_, loadAfterUnmap = u.Load64(base)
		},
	}
	k, _ := newKernel(t, map[string]Program{"init": initProg}, Config{})
	free := k.Frames().FreeFrames()
	require.ErrorIs(t, run(t, k), ErrIdle)
	assert.Zero(t, mapped)
	assert.Equal(t, int64(-1), bad)
	assert.Equal(t, uint64(0xfeed), value)
	assert.Zero(t, unmapped)
	assert.False(t, loadAfterUnmap)
	assert.Greater(t, k.Frames().FreeFrames(), free)
}
