package kernel

import (
	"context"
	"runtime"
)

// Run is the scheduler loop. It repeatedly picks the runnable process with
// the smallest stride, charges it one pass and switches to it, until no
// process is runnable (a *Fault wrapping ErrIdle), a fatal condition halts
// the kernel (a *Fault), or ctx is done (ctx.Err()).
//
// Run may be called once.
func (k *Kernel) Run(ctx context.Context) (err error) {
	k.ctx = ctx
	defer close(k.halted)
	defer func() {
		if r := recover(); r != nil {
			err = k.halt(-1, r)
		}
	}()

	for {
		if k.fault != nil {
			return k.fault
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		p := k.pick()
		if p == nil {
			return k.halt(-1, ErrIdle)
		}
		p.stride += pass(p)
		p.state = Running
		k.current = p
		k.swtch(&k.scheduler, &p.context)
		k.current = nil
	}
}

// pass is how far a turn advances p's stride. Turns are shared in
// proportion to 1/priority.
func pass(p *Proc) uint64 { return p.priority }

// pick returns the runnable process with the smallest stride, comparing
// strides by signed difference so that wrapped counters still order
// correctly. Ties go to the lowest slot. It also records the first time the
// scheduler saw each process runnable.
func (k *Kernel) pick() *Proc {
	var next *Proc
	for i := range k.procs {
		p := &k.procs[i]
		if p.state != Runnable {
			continue
		}
		if !p.started {
			p.started = true
			p.startMs = k.Now()
		}
		if next == nil || int64(p.stride-next.stride) < 0 {
			next = p
		}
	}
	return next
}

// sched switches from the current process back to the scheduler. The
// caller must already have moved the process out of Running.
func (k *Kernel) sched() {
	p := k.current
	if p.state == Running {
		panic(ErrSchedRunning)
	}
	k.swtch(&p.context, &k.scheduler)
}

// schedExit is sched for a process that has exited: the goroutine hands the
// CPU to the scheduler and ends, since its slot may be reused at once.
func (k *Kernel) schedExit() {
	p := k.current
	if p.state == Running {
		panic(ErrSchedRunning)
	}
	k.resume(&k.scheduler)
	runtime.Goexit()
}

// Yield gives up the CPU for one scheduling round.
func (k *Kernel) Yield() {
	k.current.state = Runnable
	k.sched()
}
