package kernel

import (
	"errors"
	"fmt"

	"ember/emberos/proto"
	"ember/emberos/vm"
)

// ProcState is the lifecycle state of a process table slot.
type ProcState uint8

const (
	Unused ProcState = iota
	Used
	Runnable
	Running
	Zombie
)

func (s ProcState) String() string {
	switch s {
	case Unused:
		return "unused"
	case Used:
		return "used"
	case Runnable:
		return "runnable"
	case Running:
		return "running"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Proc is a process control block. Slots live in the kernel's fixed table
// and are reused; parent links are slot indices, never owning references.
type Proc struct {
	index  int
	pid    int
	state  ProcState
	parent int

	kstack    uint64
	trapframe uint64
	context   Context

	as   *vm.AddressSpace
	prog Program
	name string

	stride   uint64
	priority uint64
	started  bool
	startMs  uint64

	ustack     uint64
	programBrk uint64
	heapBottom uint64

	syscalls [proto.MaxSyscall]uint32
	exitCode int
	files    [FileTableSize]*File
}

func (p *Proc) PID() int                { return p.pid }
func (p *Proc) State() ProcState        { return p.state }
func (p *Proc) Name() string            { return p.name }
func (p *Proc) Space() *vm.AddressSpace { return p.as }

// allocProc claims an unused slot and gives it a fresh pid, an address
// space holding only the trampoline and trap frame, stdio descriptors and a
// context whose first resume enters user space. It returns nil when the
// table is full or memory is exhausted.
func (k *Kernel) allocProc() *Proc {
	var p *Proc
	for i := range k.procs {
		if k.procs[i].state == Unused {
			p = &k.procs[i]
			break
		}
	}
	if p == nil {
		return nil
	}

	k.mem.Zero(p.kstack)
	k.mem.Zero(p.trapframe)
	as, err := vm.Create(k.frames, p.trapframe, k.trampoline)
	if err != nil {
		k.log.Warn("allocproc: no memory for page table", "err", err)
		return nil
	}

	p.pid = k.nextPID
	k.nextPID++
	p.state = Used
	p.parent = -1
	p.as = as
	p.prog = nil
	p.name = ""
	p.stride = 0
	p.priority = DefaultPriority
	p.started = false
	p.startMs = 0
	p.ustack, p.programBrk, p.heapBottom = 0, 0, 0
	p.syscalls = [proto.MaxSyscall]uint32{}
	p.exitCode = 0
	p.files = [FileTableSize]*File{}
	for fd := proto.Stdin; fd <= proto.Stderr; fd++ {
		p.files[fd] = stdioFile()
	}
	p.context = newContext(func() { k.forkret(p) })
	return p
}

// freeProc releases everything a slot owns and marks it unused.
func (k *Kernel) freeProc(p *Proc) {
	for fd, f := range p.files {
		if f != nil {
			k.fileClose(f)
			p.files[fd] = nil
		}
	}
	if p.as != nil {
		p.as.Teardown()
		p.as = nil
	}
	p.prog = nil
	p.state = Unused
}

// Fork duplicates the current process. The child gets a copy of every user
// page and of the trap frame, with a0 cleared so that fork returns 0 in the
// child. It returns the child's pid, or -1 when no slot is free.
//
// Running out of memory while copying the address space is fatal.
func (k *Kernel) Fork() int {
	p := k.current
	np := k.allocProc()
	if np == nil {
		return -1
	}
	if err := p.as.Duplicate(np.as, p.as.MaxPage()); err != nil {
		panic(fmt.Errorf("fork: %w", err))
	}
	k.mem.CopyPage(np.trapframe, p.trapframe)
	tf := k.loadTrapFrame(np)
	tf.A0 = 0
	k.storeTrapFrame(np, &tf)

	np.prog = p.prog
	np.name = p.name
	np.ustack = p.ustack
	np.programBrk = p.programBrk
	np.heapBottom = p.heapBottom
	for fd, f := range p.files {
		if f != nil {
			np.files[fd] = f.dup()
		}
	}
	np.parent = p.index
	np.stride = p.stride
	np.state = Runnable
	k.log.Debug("fork", "pid", p.pid, "child", np.pid)
	return np.pid
}

// Exec replaces the current image with the program at path. On success it
// returns argc, which is also left in a0; a1 points at the argv array on the
// new stack. Failing to resolve the program leaves the caller untouched and
// returns -1. Failing to load after the old image is gone kills the caller.
func (k *Kernel) Exec(path string, argv []string) int {
	p := k.current
	exe, err := k.resolve(path)
	if err != nil {
		k.log.Info("exec failed", "pid", p.pid, "path", path, "err", err)
		return -1
	}
	p.as.Discard()
	img, err := exe.Load(p.as, argv)
	if err != nil {
		k.log.Error("exec: load after discard", "pid", p.pid, "path", path, "err", err)
		k.Exit(-1)
	}
	k.install(p, img)
	k.log.Debug("exec", "pid", p.pid, "path", path, "argc", img.Argc)
	return img.Argc
}

// Spawn creates a child of the current process running the program at path.
// It returns the child's pid, or -1 if the program cannot be resolved, no
// slot is free, or the image does not fit in memory.
func (k *Kernel) Spawn(path string) int {
	p := k.current
	exe, err := k.resolve(path)
	if err != nil {
		k.log.Info("spawn failed", "pid", p.pid, "path", path, "err", err)
		return -1
	}
	np := k.allocProc()
	if np == nil {
		return -1
	}
	img, err := exe.Load(np.as, []string{path})
	if err != nil {
		k.log.Warn("spawn: load", "pid", p.pid, "path", path, "err", err)
		k.freeProc(np)
		return -1
	}
	k.install(np, img)
	np.parent = p.index
	np.stride = p.stride
	np.state = Runnable
	k.log.Debug("spawn", "pid", p.pid, "child", np.pid, "path", path)
	return np.pid
}

// Boot creates the first process from the program at path and marks it
// runnable. It must be called before Run.
func (k *Kernel) Boot(path string, argv []string) (int, error) {
	exe, err := k.resolve(path)
	if err != nil {
		return -1, err
	}
	p := k.allocProc()
	if p == nil {
		return -1, ErrNoProc
	}
	img, err := exe.Load(p.as, argv)
	if err != nil {
		k.freeProc(p)
		return -1, err
	}
	k.install(p, img)
	p.state = Runnable
	k.log.Info("boot", "pid", p.pid, "path", path, "argv", argv)
	return p.pid, nil
}

// ErrNoProc reports a full process table.
var ErrNoProc = errors.New("kernel: process table full")

// install points p at a freshly loaded image.
func (k *Kernel) install(p *Proc, img Image) {
	tf := TrapFrame{
		KernelSp: p.kstack + KStackSize,
		Epc:      img.Entry,
		Sp:       img.StackTop,
		A0:       uint64(img.Argc),
		A1:       img.Argv,
	}
	k.storeTrapFrame(p, &tf)
	p.prog = img.Program
	p.name = img.Name
	p.ustack = img.Stack
	p.heapBottom = img.Break
	p.programBrk = img.Break
}

// Wait blocks until a child matching pid (any child when pid <= 0) is a
// zombie, reaps it and returns its pid. The exit code is stored at codeVA
// when it is non-zero. It returns -1 when no child matches.
func (k *Kernel) Wait(pid int, codeVA uint64) int {
	p := k.current
	for {
		havekids := false
		for i := range k.procs {
			np := &k.procs[i]
			if np.state == Unused || np.parent != p.index {
				continue
			}
			if pid > 0 && np.pid != pid {
				continue
			}
			havekids = true
			if np.state != Zombie {
				continue
			}
			if codeVA != 0 {
				if err := p.as.CopyOut(codeVA, le32(uint32(int32(np.exitCode)))); err != nil {
					return -1
				}
			}
			np.state = Unused
			np.parent = -1
			return np.pid
		}
		if !havekids {
			return -1
		}
		p.state = Runnable
		k.sched()
	}
}

// Exit terminates the current process. Its resources are released at once;
// the slot stays a zombie until the parent waits for it, or becomes unused
// immediately when there is no parent. Children are orphaned, not reparented.
// Exit does not return.
func (k *Kernel) Exit(code int) {
	p := k.current
	p.exitCode = code
	k.log.Debug("exit", "pid", p.pid, "code", code)
	k.freeProc(p)
	if p.parent >= 0 {
		p.state = Zombie
	}
	for i := range k.procs {
		if k.procs[i].parent == p.index {
			k.procs[i].parent = -1
		}
	}
	k.schedExit()
}

// GrowProc moves the program break by delta bytes. Growth maps zeroed
// writable pages; shrinking unmaps them. Returns 0, or -1 when the break
// would drop below the heap bottom or memory runs out.
func (k *Kernel) GrowProc(delta int64) int {
	p := k.current
	brk := p.programBrk
	next := int64(brk) + delta
	if next < int64(p.heapBottom) {
		return -1
	}
	switch {
	case delta > 0:
		nb, err := p.as.Grow(brk, uint64(next), vm.PteW)
		if err != nil {
			k.log.Debug("growproc", "pid", p.pid, "delta", delta, "err", err)
			return -1
		}
		brk = nb
	case delta < 0:
		brk = p.as.Shrink(brk, uint64(next))
	}
	p.programBrk = brk
	return 0
}

// SetPriority sets the current process's priority. Values below
// MinPriority are rejected with -1; otherwise the new priority is returned.
func (k *Kernel) SetPriority(prio int64) int64 {
	if prio < MinPriority {
		return -1
	}
	k.current.priority = uint64(prio)
	return prio
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
