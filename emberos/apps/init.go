package apps

import (
	"fmt"

	"ember/emberos/kernel"
	"ember/emberos/user"
)

// init spawns every program named in argv[1:] and reaps children until
// none are left.
const (
	initSpawn = 1
	initWait  = 4
	initDone  = 7
)

var initText = kernel.Text{
	func(u *kernel.UserContext) {
		r := u.Regs()
		r.S0, r.S1, r.S2 = r.A0, r.A1, 1
		user.Print(u, "init: started\n")
	},
	// initSpawn
	func(u *kernel.UserContext) {
		r := u.Regs()
		if r.S2 >= r.S0 {
			u.Goto(initWait)
			return
		}
		ptr, ok := u.Load64(r.S1 + 8*r.S2)
		if !ok {
			return
		}
		r.S2++
		user.Spawn(u, ptr)
	},
	func(u *kernel.UserContext) {
		if u.Ret() >= 0 {
			u.Goto(initSpawn)
			return
		}
		user.Print(u, "init: spawn failed\n")
	},
	jump(initSpawn),
	// initWait
	func(u *kernel.UserContext) { user.Wait(u, -1, user.Scratch(u, 0, 4)) },
	func(u *kernel.UserContext) {
		pid := u.Ret()
		if pid < 0 {
			u.Goto(initDone)
			return
		}
		code, ok := load32(u, user.Scratch(u, 0, 4))
		if !ok {
			return
		}
		user.Print(u, fmt.Sprintf("init: pid %d exited with code %d\n", pid, code))
	},
	jump(initWait),
	// initDone
	say("init: no children left\n"),
	exit(0),
}

var helloText = kernel.Text{
	func(u *kernel.UserContext) { user.GetPID(u) },
	func(u *kernel.UserContext) {
		user.Print(u, fmt.Sprintf("hello from pid %d\n", u.Ret()))
	},
	exit(0),
}
