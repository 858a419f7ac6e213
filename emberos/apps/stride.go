package apps

import (
	"fmt"

	"ember/emberos/kernel"
	"ember/emberos/user"
)

// stride forks four children with priorities 6, 8, 10 and 12. Each yields
// in a loop for argv[1] milliseconds (default 200) and reports how many
// rounds it got; the counts shrink as the priority grows.
//
//	s0 children, s2 child index, s3 rounds, s5 reaped, s7 start ms + 1, s8 duration
const (
	strideLoop   = 1
	strideWait   = 3
	strideDone   = 5
	strideChild  = 7
	strideSample = 8
	strideReport = 12
	strideFail   = 14
)

func stridePriority(i uint64) int64 { return int64(4 + 2*i) }

var strideText = kernel.Text{
	func(u *kernel.UserContext) {
		r := u.Regs()
		r.S8 = intArg(user.Args(u, r.A0, r.A1), 1, 200)
		r.S0, r.S2, r.S5 = 4, 0, 0
	},
	// strideLoop
	func(u *kernel.UserContext) {
		r := u.Regs()
		if r.S2 == r.S0 {
			u.Goto(strideWait)
			return
		}
		r.S2++
		user.Fork(u)
	},
	func(u *kernel.UserContext) {
		switch ret := u.Ret(); {
		case ret == 0:
			u.Goto(strideChild)
		case ret < 0:
			u.Goto(strideFail)
		default:
			u.Goto(strideLoop)
		}
	},
	// strideWait
	func(u *kernel.UserContext) {
		r := u.Regs()
		if r.S5 == r.S0 {
			u.Goto(strideDone)
			return
		}
		user.Wait(u, -1, 0)
	},
	func(u *kernel.UserContext) {
		u.Regs().S5++
		u.Goto(strideWait)
	},
	// strideDone
	say("stride: done\n"),
	exit(0),
	// strideChild
	func(u *kernel.UserContext) {
		r := u.Regs()
		r.S3, r.S7 = 0, 0
		user.SetPriority(u, stridePriority(r.S2))
	},
	// strideSample
	func(u *kernel.UserContext) { user.GetTimeOfDay(u, user.Scratch(u, 0, 16)) },
	func(u *kernel.UserContext) {
		va := user.Scratch(u, 0, 16)
		sec, ok1 := u.Load64(va)
		usec, ok2 := u.Load64(va + 8)
		if !ok1 || !ok2 {
			return
		}
		now := sec*1000 + usec/1000 + 1
		r := u.Regs()
		if r.S7 == 0 {
			r.S7 = now
		}
		r.S3++
		if now-r.S7 >= r.S8 {
			u.Goto(strideReport)
		}
	},
	func(u *kernel.UserContext) { user.Yield(u) },
	jump(strideSample),
	// strideReport
	func(u *kernel.UserContext) {
		r := u.Regs()
		user.Print(u, fmt.Sprintf("stride: priority %d ran %d rounds\n", stridePriority(r.S2), r.S3))
	},
	exit(0),
	// strideFail
	say("stride: fork failed\n"),
	exit(-1),
}
