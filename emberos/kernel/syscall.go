package kernel

import (
	"errors"
	"strconv"

	"ember/emberos/proto"
	"ember/internal/tracing"
)

type sysargs [6]uint64

type syscallDef struct {
	name string
	fn   func(k *Kernel, p *Proc, a *sysargs) int64
}

// syscalls is filled in by init: the handlers reach back into the trap
// path, which would otherwise make the table depend on itself.
var syscalls map[uint64]syscallDef

func init() {
	syscalls = map[uint64]syscallDef{
		proto.SysUnlinkat:     {"unlinkat", (*Kernel).sysUnlinkat},
		proto.SysLinkat:       {"linkat", (*Kernel).sysLinkat},
		proto.SysOpenat:       {"openat", (*Kernel).sysOpenat},
		proto.SysClose:        {"close", (*Kernel).sysClose},
		proto.SysRead:         {"read", (*Kernel).sysRead},
		proto.SysWrite:        {"write", (*Kernel).sysWrite},
		proto.SysFstat:        {"fstat", (*Kernel).sysFstat},
		proto.SysExit:         {"exit", (*Kernel).sysExit},
		proto.SysSchedYield:   {"sched_yield", (*Kernel).sysSchedYield},
		proto.SysSetPriority:  {"setpriority", (*Kernel).sysSetPriority},
		proto.SysGettimeofday: {"gettimeofday", (*Kernel).sysGettimeofday},
		proto.SysGetpid:       {"getpid", (*Kernel).sysGetpid},
		proto.SysGetppid:      {"getppid", (*Kernel).sysGetppid},
		proto.SysSbrk:         {"sbrk", (*Kernel).sysSbrk},
		proto.SysMunmap:       {"munmap", (*Kernel).sysMunmap},
		proto.SysClone:        {"clone", (*Kernel).sysClone},
		proto.SysExecve:       {"execve", (*Kernel).sysExecve},
		proto.SysMmap:         {"mmap", (*Kernel).sysMmap},
		proto.SysWait4:        {"wait4", (*Kernel).sysWait4},
		proto.SysSpawn:        {"spawn", (*Kernel).sysSpawn},
		proto.SysTaskInfo:     {"task_info", (*Kernel).sysTaskInfo},
	}
}

var errSyscallFailed = errors.New("syscall returned -1")

// SyscallName returns the name of syscall id, or "" if it is unknown.
func SyscallName(id uint64) string { return syscalls[id].name }

// syscall handles an ecall from p. The saved pc is advanced past the ecall
// before dispatch, so a child created by fork resumes after it too, and the
// result lands in a0.
func (k *Kernel) syscall(p *Proc) {
	tf := k.loadTrapFrame(p)
	tf.Epc += proto.InstrSize
	k.storeTrapFrame(p, &tf)

	id := tf.A7
	a := sysargs{tf.A0, tf.A1, tf.A2, tf.A3, tf.A4, tf.A5}
	if id < proto.MaxSyscall {
		p.syscalls[id]++
	}

	ret := int64(-1)
	if def, ok := syscalls[id]; ok {
		ret = k.invoke(p, def, &a)
	} else {
		k.log.Warn("unknown syscall", "pid", p.pid, "id", id)
	}

	// exec rewrites the trap frame, so reload it.
	tf = k.loadTrapFrame(p)
	tf.A0 = uint64(ret)
	k.storeTrapFrame(p, &tf)
}

func (k *Kernel) invoke(p *Proc, def syscallDef, a *sysargs) (ret int64) {
	_, span := tracing.StartSpan(k.runContext(), "syscall."+def.name, "INTERNAL")
	span.WithAttributes(map[string]string{"pid": strconv.Itoa(p.pid)})
	defer func() {
		// exit never returns; its span ends as the goroutine unwinds.
		var err error
		if ret < 0 {
			err = errSyscallFailed
		}
		tracing.EndSpan(span.WithInt("ret", ret), err)
	}()
	return def.fn(k, p, a)
}
