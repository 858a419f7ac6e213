package kernel

import "runtime"

// Context is a suspended kernel thread of control. Every process runs its
// kernel half on its own goroutine, parked on wake while some other context
// holds the CPU. The scheduler's context is the goroutine that called Run.
//
// Exactly one context runs at a time; swtch is the only place where control
// moves between them.
type Context struct {
	wake chan struct{}

	// entry starts the goroutine on the first resume; nil afterwards.
	entry func()
}

func newContext(entry func()) Context {
	return Context{wake: make(chan struct{}), entry: entry}
}

// swtch hands the CPU from old to new and returns once someone switches
// back to old.
func (k *Kernel) swtch(old, new *Context) {
	wake := old.wake
	k.resume(new)
	k.park(wake)
}

func (k *Kernel) resume(c *Context) {
	if fn := c.entry; fn != nil {
		c.entry = nil
		go fn()
		return
	}
	c.wake <- struct{}{}
}

// park blocks until the context owning wake is resumed. Once the kernel has
// halted, parked process goroutines exit instead.
func (k *Kernel) park(wake chan struct{}) {
	select {
	case <-wake:
	case <-k.halted:
		runtime.Goexit()
	}
}
