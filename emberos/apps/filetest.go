package apps

import (
	"encoding/binary"

	"ember/emberos/kernel"
	"ember/emberos/proto"
	"ember/emberos/user"
)

// filetest writes a file, reads it back through a hard link, checks the
// link count and removes both names.
//
//	s0 fd
const (
	fileName  = "filetest.txt"
	fileAlias = "filetest.lnk"
	fileData  = "ember\n"
	fileFail  = 12
)

// Scratch offsets of the buffers filetest uses.
const (
	offPath  = 0
	offPath2 = 128
	offData  = 256
	offStat  = 512
)

var statSize = uint64(binary.Size(proto.Stat{}))

var fileText = kernel.Text{
	func(u *kernel.UserContext) {
		user.Open(u, user.PutString(u, offPath, fileName), proto.OCreate|proto.OWrOnly|proto.OTrunc)
	},
	func(u *kernel.UserContext) {
		if u.Ret() < 0 {
			u.Goto(fileFail)
			return
		}
		u.Regs().S0 = u.A0()
		va := user.Scratch(u, offData, uint64(len(fileData)))
		if !u.Store(va, []byte(fileData)) {
			return
		}
		user.Write(u, int(u.Regs().S0), va, uint64(len(fileData)))
	},
	func(u *kernel.UserContext) {
		if u.Ret() != int64(len(fileData)) {
			u.Goto(fileFail)
			return
		}
		user.Close(u, int(u.Regs().S0))
	},
	func(u *kernel.UserContext) {
		user.Link(u, user.PutString(u, offPath, fileName), user.PutString(u, offPath2, fileAlias))
	},
	func(u *kernel.UserContext) {
		if u.Ret() != 0 {
			u.Goto(fileFail)
			return
		}
		user.Open(u, user.PutString(u, offPath, fileAlias), proto.ORdOnly)
	},
	func(u *kernel.UserContext) {
		if u.Ret() < 0 {
			u.Goto(fileFail)
			return
		}
		u.Regs().S0 = u.A0()
		user.Fstat(u, int(u.Regs().S0), user.Scratch(u, offStat, statSize))
	},
	func(u *kernel.UserContext) {
		var st proto.Stat
		buf := make([]byte, statSize)
		if !u.Load(user.Scratch(u, offStat, statSize), buf) {
			return
		}
		if _, err := binary.Decode(buf, binary.LittleEndian, &st); err != nil || u.Ret() != 0 || st.Nlink != 2 {
			u.Goto(fileFail)
			return
		}
		user.Read(u, int(u.Regs().S0), user.Scratch(u, offData, 16), 16)
	},
	func(u *kernel.UserContext) {
		buf := make([]byte, len(fileData))
		if !u.Load(user.Scratch(u, offData, 16), buf) {
			return
		}
		if u.Ret() != int64(len(fileData)) || string(buf) != fileData {
			u.Goto(fileFail)
			return
		}
		user.Close(u, int(u.Regs().S0))
	},
	func(u *kernel.UserContext) { user.Unlink(u, user.PutString(u, offPath, fileName)) },
	func(u *kernel.UserContext) { user.Unlink(u, user.PutString(u, offPath, fileAlias)) },
	func(u *kernel.UserContext) {
		if u.Ret() != 0 {
			u.Goto(fileFail)
			return
		}
		user.Print(u, "filetest: ok\n")
	},
	exit(0),
	// fileFail
	say("filetest: failed\n"),
	exit(1),
}
