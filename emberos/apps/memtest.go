package apps

import (
	"ember/emberos/kernel"
	"ember/emberos/mm"
	"ember/emberos/user"
)

const memMagic = 0x0123_4567_89ab_cdef

// sbrktest grows the heap by a page, uses it, shrinks it again and checks
// that the heap cannot shrink below where it started.
//
//	s0 old break
const sbrkFail = 6

var sbrkText = kernel.Text{
	func(u *kernel.UserContext) { user.Sbrk(u, mm.PageSize) },
	func(u *kernel.UserContext) {
		r := u.Regs()
		if u.Ret() < 0 {
			u.Goto(sbrkFail)
			return
		}
		r.S0 = u.A0()
		if !u.Store64(r.S0, memMagic) {
			return
		}
		user.Sbrk(u, 0)
	},
	func(u *kernel.UserContext) {
		r := u.Regs()
		if u.A0() != r.S0+mm.PageSize {
			u.Goto(sbrkFail)
			return
		}
		v, ok := u.Load64(r.S0)
		if !ok {
			return
		}
		if v != memMagic {
			u.Goto(sbrkFail)
			return
		}
		user.Sbrk(u, -mm.PageSize)
	},
	func(u *kernel.UserContext) { user.Sbrk(u, -1<<20) },
	func(u *kernel.UserContext) {
		if u.Ret() != -1 {
			u.Goto(sbrkFail)
			return
		}
		user.Print(u, "sbrktest: ok\n")
	},
	exit(0),
	// sbrkFail
	say("sbrktest: failed\n"),
	exit(1),
}

// mmaptest maps two pages, uses them, and checks that remapping, misaligned
// requests and unmapping holes are refused.
const (
	mmapBase = 0x1000_0000
	mmapProt = 0x3 // read | write
	mmapFail = 7
)

var mmapText = kernel.Text{
	func(u *kernel.UserContext) { user.Mmap(u, mmapBase, 2*mm.PageSize, mmapProt) },
	func(u *kernel.UserContext) {
		if u.Ret() != 0 {
			u.Goto(mmapFail)
			return
		}
		if !u.Store64(mmapBase+mm.PageSize, memMagic) {
			return
		}
		user.Mmap(u, mmapBase, mm.PageSize, mmapProt)
	},
	func(u *kernel.UserContext) {
		v, ok := u.Load64(mmapBase + mm.PageSize)
		if !ok {
			return
		}
		if u.Ret() != -1 || v != memMagic {
			u.Goto(mmapFail)
			return
		}
		user.Mmap(u, mmapBase+1, mm.PageSize, mmapProt)
	},
	func(u *kernel.UserContext) {
		if u.Ret() != -1 {
			u.Goto(mmapFail)
			return
		}
		user.Munmap(u, mmapBase, 2*mm.PageSize)
	},
	func(u *kernel.UserContext) {
		if u.Ret() != 0 {
			u.Goto(mmapFail)
			return
		}
		user.Munmap(u, mmapBase, mm.PageSize)
	},
	func(u *kernel.UserContext) {
		if u.Ret() != -1 {
			u.Goto(mmapFail)
			return
		}
		user.Print(u, "mmaptest: ok\n")
	},
	exit(0),
	// mmapFail
	say("mmaptest: failed\n"),
	exit(1),
}
