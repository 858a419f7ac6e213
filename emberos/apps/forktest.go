package apps

import (
	"fmt"

	"ember/emberos/kernel"
	"ember/emberos/user"
)

// forktest forks n children (argv[1], default 4). Child i exits with code
// i; the parent checks that the codes it reaps add up.
//
//	s0 n, s2 children forked, s4 sum of exit codes, s5 children reaped
const (
	forkLoop  = 1
	forkWait  = 3
	forkDone  = 5
	forkChild = 7
	forkFail  = 10
)

var forkText = kernel.Text{
	func(u *kernel.UserContext) {
		r := u.Regs()
		r.S0 = intArg(user.Args(u, r.A0, r.A1), 1, 4)
		r.S2, r.S4, r.S5 = 0, 0, 0
	},
	// forkLoop
	func(u *kernel.UserContext) {
		r := u.Regs()
		if r.S2 == r.S0 {
			u.Goto(forkWait)
			return
		}
		r.S2++
		user.Fork(u)
	},
	func(u *kernel.UserContext) {
		switch ret := u.Ret(); {
		case ret == 0:
			u.Goto(forkChild)
		case ret < 0:
			u.Goto(forkFail)
		default:
			u.Goto(forkLoop)
		}
	},
	// forkWait
	func(u *kernel.UserContext) {
		r := u.Regs()
		if r.S5 == r.S0 {
			u.Goto(forkDone)
			return
		}
		user.Wait(u, -1, user.Scratch(u, 0, 4))
	},
	func(u *kernel.UserContext) {
		if u.Ret() < 0 {
			u.Goto(forkFail)
			return
		}
		code, ok := load32(u, user.Scratch(u, 0, 4))
		if !ok {
			return
		}
		r := u.Regs()
		r.S4 += uint64(code)
		r.S5++
		u.Goto(forkWait)
	},
	// forkDone
	func(u *kernel.UserContext) {
		r := u.Regs()
		user.Print(u, fmt.Sprintf("forktest: %d children, exit code sum %d\n", r.S0, r.S4))
	},
	func(u *kernel.UserContext) {
		r := u.Regs()
		if r.S4 != r.S0*(r.S0+1)/2 {
			user.Exit(u, 1)
			return
		}
		user.Exit(u, 0)
	},
	// forkChild
	func(u *kernel.UserContext) { user.GetPID(u) },
	func(u *kernel.UserContext) {
		user.Print(u, fmt.Sprintf("forktest: child %d is pid %d\n", u.Regs().S2, u.Ret()))
	},
	func(u *kernel.UserContext) { user.Exit(u, int(u.Regs().S2)) },
	// forkFail
	say("forktest: failed\n"),
	exit(-1),
}
