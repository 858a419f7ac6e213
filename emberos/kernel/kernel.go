// Package kernel is the process core: the process table, stride scheduler,
// cooperative context switch, fork/exec/wait/exit and the syscall boundary.
//
// The kernel is a uniprocessor: exactly one goroutine (the scheduler or one
// process's kernel thread) executes kernel code at any moment, and control
// only moves through swtch. The tables below are therefore unlocked.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"ember/emberos/mm"
)

// Console is the stdio device behind descriptors 0, 1 and 2.
type Console interface {
	io.Reader
	io.Writer
}

// Config wires the kernel to its collaborators.
type Config struct {
	// NProc is the process table capacity. Zero means DefaultNProc.
	NProc int

	// PhysTop is the end of physical memory. Zero means KernelBase plus
	// DefaultPhysMemory.
	PhysTop uint64

	// KernelEnd is the end of the kernel image. It is raised as needed to
	// hold the trampoline and the per-slot kernel stacks and trap frames.
	KernelEnd uint64

	Logger  *slog.Logger
	FS      FileSystem
	Loader  Loader
	Console Console
}

// Kernel is the single kernel instance.
type Kernel struct {
	log     *slog.Logger
	mem     *mm.Memory
	frames  *mm.Allocator
	fs      FileSystem
	loader  Loader
	console Console

	trampoline uint64

	procs   []Proc
	nextPID int
	current *Proc

	scheduler Context
	ticks     atomic.Uint64

	// ctx is the context passed to Run; collaborators see it on every call.
	ctx    context.Context
	halted chan struct{}
	fault  *Fault

	panicActive  atomic.Bool
	panicOnce    sync.Once
	panicHandler atomic.Value // func(PanicInfo)
}

var (
	// ErrConfig reports an unusable Config.
	ErrConfig = errors.New("kernel: bad config")
)

// New lays out physical memory, initializes the frame allocator and the
// process table, and returns a kernel with no processes.
func New(cfg Config) (*Kernel, error) {
	nproc := cfg.NProc
	if nproc == 0 {
		nproc = DefaultNProc
	}
	if nproc < 0 {
		return nil, fmt.Errorf("%w: nproc %d", ErrConfig, nproc)
	}
	physTop := cfg.PhysTop
	if physTop == 0 {
		physTop = mm.KernelBase + DefaultPhysMemory
	}
	if !mm.Aligned(physTop) {
		return nil, fmt.Errorf("%w: physTop %#x not page aligned", ErrConfig, physTop)
	}

	// Image layout: trampoline, kernel stacks, trap frames.
	stacks := mm.KernelBase + mm.PageSize
	frames := stacks + uint64(nproc)*KStackSize
	kernelEnd := frames + uint64(nproc)*TrapFrameSize
	if cfg.KernelEnd > kernelEnd {
		kernelEnd = mm.PageRoundUp(cfg.KernelEnd)
	}
	if kernelEnd+2*mm.PageSize > physTop {
		return nil, fmt.Errorf("%w: kernel image %#x leaves no room below %#x", ErrConfig, kernelEnd, physTop)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mem := mm.NewMemory(mm.KernelBase, physTop)
	k := &Kernel{
		log:        log,
		mem:        mem,
		frames:     mm.New(mem, kernelEnd, physTop),
		fs:         cfg.FS,
		loader:     cfg.Loader,
		console:    cfg.Console,
		trampoline: mm.KernelBase,
		procs:      make([]Proc, nproc),
		nextPID:    IdlePID + 1,
		halted:     make(chan struct{}),
	}
	copy(mem.Page(k.trampoline), trampolineCode)

	for i := range k.procs {
		p := &k.procs[i]
		p.index = i
		p.parent = -1
		p.kstack = stacks + uint64(i)*KStackSize
		p.trapframe = frames + uint64(i)*TrapFrameSize
	}
	k.scheduler = newContext(nil)

	log.Info("kernel init",
		"nproc", nproc,
		"kernelEnd", fmt.Sprintf("%#x", kernelEnd),
		"frames", k.frames.Frames(),
	)
	return k, nil
}

// trampolineCode marks the shared trampoline page mapped at the top of every
// address space.
var trampolineCode = []byte("uservec\x00userret\x00")

// Frames returns the frame allocator.
func (k *Kernel) Frames() *mm.Allocator { return k.frames }

// Memory returns physical memory.
func (k *Kernel) Memory() *mm.Memory { return k.mem }

// TickTo advances the kernel clock to seq milliseconds. Ticks never go
// backwards. It is safe to call from any goroutine.
func (k *Kernel) TickTo(seq uint64) {
	for {
		cur := k.ticks.Load()
		if seq <= cur {
			return
		}
		if k.ticks.CompareAndSwap(cur, seq) {
			return
		}
	}
}

// Now returns the kernel clock in milliseconds.
func (k *Kernel) Now() uint64 { return k.ticks.Load() }

// Current returns the process running on the CPU, or nil.
func (k *Kernel) Current() *Proc { return k.current }

// ProcInfo is a snapshot of one process table slot.
type ProcInfo struct {
	Slot     int
	PID      int
	PPID     int
	State    ProcState
	Name     string
	Priority uint64
	Stride   uint64
	ExitCode int
}

// Procs returns a snapshot of every slot in use. It must not be called while
// Run is active.
func (k *Kernel) Procs() []ProcInfo {
	var out []ProcInfo
	for i := range k.procs {
		p := &k.procs[i]
		if p.state == Unused {
			continue
		}
		out = append(out, ProcInfo{
			Slot:     p.index,
			PID:      p.pid,
			PPID:     k.ppid(p),
			State:    p.state,
			Name:     p.name,
			Priority: p.priority,
			Stride:   p.stride,
			ExitCode: p.exitCode,
		})
	}
	return out
}

func (k *Kernel) ppid(p *Proc) int {
	if p.parent < 0 {
		return IdlePID
	}
	return k.procs[p.parent].pid
}

func (k *Kernel) runContext() context.Context {
	if k.ctx == nil {
		return context.Background()
	}
	return k.ctx
}
