package kernel

import (
	"encoding/binary"

	"ember/emberos/proto"
)

// Cause is a user trap cause, numbered as in scause.
type Cause uint64

const (
	CauseNone               Cause = 0xff
	CauseIllegalInstruction Cause = 2
	CauseUserEcall          Cause = 8
	CauseLoadPageFault      Cause = 13
	CauseStorePageFault     Cause = 15
)

func (c Cause) String() string {
	switch c {
	case CauseNone:
		return "none"
	case CauseIllegalInstruction:
		return "illegal instruction"
	case CauseUserEcall:
		return "ecall from u-mode"
	case CauseLoadPageFault:
		return "load page fault"
	case CauseStorePageFault:
		return "store page fault"
	default:
		return "unknown"
	}
}

// Program is user code. Step runs from the current pc until the program
// traps into the kernel through the UserContext.
type Program interface {
	Step(*UserContext)
}

// UserContext is the hart as seen by user code between two traps: the user
// registers and access to the user address space, nothing else.
type UserContext struct {
	regs   TrapFrame
	p      *Proc
	cause  Cause
	stval  uint64
	jumped bool
}

// Regs returns the user register file.
func (u *UserContext) Regs() *TrapFrame { return &u.regs }

// PC returns the address of the current instruction.
func (u *UserContext) PC() uint64 { return u.regs.Epc }

// A0 returns the first argument/return register.
func (u *UserContext) A0() uint64 { return u.regs.A0 }

// Ret returns a0 as a signed syscall result.
func (u *UserContext) Ret() int64 { return int64(u.regs.A0) }

// Jump continues execution at pc instead of the next instruction.
func (u *UserContext) Jump(pc uint64) {
	u.regs.Epc = pc
	u.jumped = true
}

// Goto jumps to the i-th instruction of the image.
func (u *UserContext) Goto(i int) { u.Jump(proto.TextBase + uint64(i)*proto.InstrSize) }

// Ecall traps into the kernel with syscall num and its arguments in a0..a5.
// The kernel resumes at the next instruction with the result in a0.
func (u *UserContext) Ecall(num uint64, args ...uint64) {
	r := &u.regs
	dst := [...]*uint64{&r.A0, &r.A1, &r.A2, &r.A3, &r.A4, &r.A5}
	for i, a := range args {
		if i < len(dst) {
			*dst[i] = a
		}
	}
	r.A7 = num
	u.trap(CauseUserEcall, 0)
}

// Illegal traps with an illegal-instruction exception.
func (u *UserContext) Illegal() { u.trap(CauseIllegalInstruction, u.regs.Epc) }

// Trapped reports whether the current instruction has trapped.
func (u *UserContext) Trapped() bool { return u.cause != CauseNone }

// Load reads len(dst) bytes of user memory at va. A fault traps and
// returns false.
func (u *UserContext) Load(va uint64, dst []byte) bool {
	if err := u.p.as.CopyIn(dst, va); err != nil {
		u.trap(CauseLoadPageFault, va)
		return false
	}
	return true
}

// Store writes src to user memory at va. A fault traps and returns false.
func (u *UserContext) Store(va uint64, src []byte) bool {
	if err := u.p.as.CopyOut(va, src); err != nil {
		u.trap(CauseStorePageFault, va)
		return false
	}
	return true
}

// Load64 reads a doubleword.
func (u *UserContext) Load64(va uint64) (uint64, bool) {
	var b [8]byte
	if !u.Load(va, b[:]) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(b[:]), true
}

// Store64 writes a doubleword.
func (u *UserContext) Store64(va, v uint64) bool {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return u.Store(va, b[:])
}

func (u *UserContext) trap(c Cause, stval uint64) {
	if u.cause == CauseNone {
		u.cause = c
		u.stval = stval
	}
}

// Instr is one user instruction.
type Instr func(u *UserContext)

// Text is a program made of instructions laid out InstrSize bytes apart
// from TextBase. Control falls through to the next instruction unless the
// instruction jumps or traps; running off either end is illegal.
type Text []Instr

// Step implements Program.
func (t Text) Step(u *UserContext) {
	for !u.Trapped() {
		pc := u.PC()
		if pc < proto.TextBase || (pc-proto.TextBase)%proto.InstrSize != 0 {
			u.Illegal()
			return
		}
		i := (pc - proto.TextBase) / proto.InstrSize
		if i >= uint64(len(t)) || t[i] == nil {
			u.Illegal()
			return
		}
		u.jumped = false
		t[i](u)
		if u.Trapped() {
			return
		}
		if !u.jumped {
			u.regs.Epc = pc + proto.InstrSize
		}
	}
}

// forkret is where a new process's kernel goroutine starts.
func (k *Kernel) forkret(p *Proc) {
	defer func() {
		if r := recover(); r != nil {
			k.halt(p.pid, r)
			k.resume(&k.scheduler)
		}
	}()
	for {
		k.usertrap(p, k.usertrapret(p))
	}
}

// usertrapret returns to user space: it loads the user registers from the
// trap frame and runs the program until it traps.
func (k *Kernel) usertrapret(p *Proc) *UserContext {
	u := &UserContext{p: p, cause: CauseNone}
	u.regs = k.loadTrapFrame(p)
	if p.prog == nil {
		u.trap(CauseIllegalInstruction, u.regs.Epc)
		return u
	}
	p.prog.Step(u)
	if !u.Trapped() {
		u.Illegal()
	}
	return u
}

// usertrap handles a trap from user space: it saves the user registers to
// the trap frame and dispatches on the cause. Anything other than a system
// call kills the process.
func (k *Kernel) usertrap(p *Proc, u *UserContext) {
	k.storeTrapFrame(p, &u.regs)
	if u.cause == CauseUserEcall {
		k.syscall(p)
		return
	}
	k.log.Warn("usertrap: killed",
		"pid", p.pid,
		"cause", u.cause.String(),
		"epc", u.regs.Epc,
		"stval", u.stval,
	)
	k.Exit(-1)
}
