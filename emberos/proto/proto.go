// Package proto defines the user/kernel ABI: syscall numbers, flag values
// and the layouts of structures copied across the boundary.
package proto

// Syscall numbers follow the RISC-V Linux numbering where one exists.
const (
	SysUnlinkat     = 35
	SysLinkat       = 37
	SysOpenat       = 56
	SysClose        = 57
	SysRead         = 63
	SysWrite        = 64
	SysFstat        = 80
	SysExit         = 93
	SysSchedYield   = 124
	SysSetPriority  = 140
	SysGettimeofday = 169
	SysGetpid       = 172
	SysGetppid      = 173
	SysSbrk         = 214
	SysMunmap       = 215
	SysClone        = 220
	SysExecve       = 221
	SysMmap         = 222
	SysWait4        = 260
	SysSpawn        = 400
	SysTaskInfo     = 410

	// MaxSyscall bounds the per-process invocation counters.
	MaxSyscall = 500
)

// Open flags.
const (
	ORdOnly = 0x000
	OWrOnly = 0x001
	ORdWr   = 0x002
	OCreate = 0x200
	OTrunc  = 0x400
)

// Standard descriptors.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// User image layout.
const (
	// TextBase is where every program image is loaded and entered.
	TextBase = 0x1000
	// InstrSize is the distance between consecutive user instructions.
	InstrSize = 4
	// UserStackSize is the size of the initial user stack.
	UserStackSize = 4096
)

// Stat modes.
const (
	ModeDir  = 0x040000
	ModeFile = 0x100000
)

// Stat is the fstat result.
type Stat struct {
	Dev   uint64
	Ino   uint64
	Mode  uint32
	Nlink uint32
	Pad   [7]uint64
}

// TimeVal is the gettimeofday result.
type TimeVal struct {
	Sec  uint64
	Usec uint64
}

// TaskStatus mirrors the process states, numbered as the kernel numbers them.
type TaskStatus uint32

const (
	TaskUnused TaskStatus = iota
	TaskUsed
	TaskRunnable
	TaskRunning
	TaskZombie
)

// TaskInfo is the task_info result.
type TaskInfo struct {
	Status       TaskStatus
	SyscallTimes [MaxSyscall]uint32
	Time         int32
}
