// Package user is the user-side system call library. Each wrapper loads the
// argument registers and traps; the result is in a0 when the next
// instruction runs.
package user

import (
	"ember/emberos/kernel"
	"ember/emberos/proto"
)

// atFdCwd is AT_FDCWD (-100): paths resolve from the root directory.
const atFdCwd = ^uint64(99)

func Write(u *kernel.UserContext, fd int, va, n uint64) {
	u.Ecall(proto.SysWrite, uint64(fd), va, n)
}

func Read(u *kernel.UserContext, fd int, va, n uint64) {
	u.Ecall(proto.SysRead, uint64(fd), va, n)
}

func Open(u *kernel.UserContext, pathVA uint64, flags int) {
	u.Ecall(proto.SysOpenat, pathVA, uint64(flags))
}

func Close(u *kernel.UserContext, fd int) { u.Ecall(proto.SysClose, uint64(fd)) }

func Fstat(u *kernel.UserContext, fd int, va uint64) {
	u.Ecall(proto.SysFstat, uint64(fd), va)
}

func Link(u *kernel.UserContext, oldVA, newVA uint64) {
	u.Ecall(proto.SysLinkat, atFdCwd, oldVA, atFdCwd, newVA, 0)
}

func Unlink(u *kernel.UserContext, pathVA uint64) {
	u.Ecall(proto.SysUnlinkat, atFdCwd, pathVA, 0)
}

func Exit(u *kernel.UserContext, code int) { u.Ecall(proto.SysExit, uint64(code)) }

func Yield(u *kernel.UserContext) { u.Ecall(proto.SysSchedYield) }

func SetPriority(u *kernel.UserContext, prio int64) {
	u.Ecall(proto.SysSetPriority, uint64(prio))
}

func GetTimeOfDay(u *kernel.UserContext, va uint64) {
	u.Ecall(proto.SysGettimeofday, va, 0)
}

func GetPID(u *kernel.UserContext)  { u.Ecall(proto.SysGetpid) }
func GetPPID(u *kernel.UserContext) { u.Ecall(proto.SysGetppid) }

func Fork(u *kernel.UserContext) { u.Ecall(proto.SysClone) }

func Exec(u *kernel.UserContext, pathVA, argvVA uint64) {
	u.Ecall(proto.SysExecve, pathVA, argvVA)
}

// Wait waits for pid (any child when pid is -1) and stores its exit code at
// codeVA unless codeVA is zero.
func Wait(u *kernel.UserContext, pid int, codeVA uint64) {
	u.Ecall(proto.SysWait4, uint64(pid), codeVA)
}

func Spawn(u *kernel.UserContext, pathVA uint64) { u.Ecall(proto.SysSpawn, pathVA) }

func Sbrk(u *kernel.UserContext, delta int64) { u.Ecall(proto.SysSbrk, uint64(delta)) }

func Mmap(u *kernel.UserContext, start, length uint64, prot int) {
	u.Ecall(proto.SysMmap, start, length, uint64(prot), 0, 0)
}

func Munmap(u *kernel.UserContext, start, length uint64) {
	u.Ecall(proto.SysMunmap, start, length)
}

func TaskInfo(u *kernel.UserContext, va uint64) { u.Ecall(proto.SysTaskInfo, va) }
