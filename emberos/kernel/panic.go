package kernel

import (
	"errors"
	"fmt"
	"runtime/debug"
)

var (
	// ErrIdle halts the kernel when no process is left to run.
	ErrIdle = errors.New("kernel: no runnable process")

	// ErrSchedRunning is raised when a process gives up the CPU while still
	// marked running.
	ErrSchedRunning = errors.New("kernel: sched while running")
)

// Fault is the value Run reports when the kernel halts on a fatal
// condition. Value holds what was raised: an error such as ErrIdle, a
// *mm.Fault or *vm.Fault, or an arbitrary panic value.
type Fault struct {
	PID   int
	Value any
	Stack []byte
}

func (f *Fault) Error() string {
	if f.PID < 0 {
		return fmt.Sprintf("kernel halted: %v", f.Value)
	}
	return fmt.Sprintf("kernel halted in pid %d: %v", f.PID, f.Value)
}

func (f *Fault) Unwrap() error {
	if err, ok := f.Value.(error); ok {
		return err
	}
	return nil
}

// PanicInfo contains details about a kernel halt.
type PanicInfo struct {
	PID   int
	Value any
	Stack []byte
}

// InPanicMode reports whether the kernel has halted.
func (k *Kernel) InPanicMode() bool {
	return k.panicActive.Load()
}

// SetPanicHandler installs the halt handler.
//
// The handler is invoked at most once (on the first fatal condition). It runs
// on the goroutine that raised it and must not panic or block.
func (k *Kernel) SetPanicHandler(fn func(PanicInfo)) {
	k.panicHandler.Store(fn)
}

// halt records the first fatal condition and runs the panic handler.
func (k *Kernel) halt(pid int, value any) *Fault {
	k.panicOnce.Do(func() {
		k.panicActive.Store(true)
		k.fault = &Fault{PID: pid, Value: value, Stack: debug.Stack()}
		if v := k.panicHandler.Load(); v != nil {
			if fn, ok := v.(func(PanicInfo)); ok && fn != nil {
				fn(PanicInfo{PID: pid, Value: value, Stack: k.fault.Stack})
			}
		}
	})
	return k.fault
}
