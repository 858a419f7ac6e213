package user

import "ember/emberos/kernel"

// scratchGap keeps scratch data clear of whatever the program stored just
// below sp.
const scratchGap = 64

// Scratch returns an 8-byte aligned address n bytes below sp, off bytes
// further down. Programs use it for short-lived buffers without moving sp.
func Scratch(u *kernel.UserContext, off, n uint64) uint64 {
	return (u.Regs().Sp - scratchGap - off - n) &^ 7
}

// PutString stores s with a terminating NUL in the scratch area at off and
// returns its address, or 0 if the store faulted.
func PutString(u *kernel.UserContext, off uint64, s string) uint64 {
	va := Scratch(u, off, uint64(len(s))+1)
	if !u.Store(va, append([]byte(s), 0)) {
		return 0
	}
	return va
}

// Print writes s to stdout.
func Print(u *kernel.UserContext, s string) {
	va := Scratch(u, 0, uint64(len(s)))
	if !u.Store(va, []byte(s)) {
		return
	}
	Write(u, 1, va, uint64(len(s)))
}

// Ret is the signed result of the previous system call.
func Ret(u *kernel.UserContext) int64 { return u.Ret() }

// PutArgv stores args and a NULL-terminated pointer array in the scratch
// area at off and returns the array's address, or 0 if a store faulted.
func PutArgv(u *kernel.UserContext, off uint64, args []string) uint64 {
	size := uint64(8 * (len(args) + 1))
	for _, s := range args {
		size += uint64(len(s)) + 1
	}
	base := Scratch(u, off, size)
	str := base + uint64(8*(len(args)+1))
	for i, s := range args {
		if !u.Store64(base+uint64(8*i), str) || !u.Store(str, append([]byte(s), 0)) {
			return 0
		}
		str += uint64(len(s)) + 1
	}
	if !u.Store64(base+uint64(8*len(args)), 0) {
		return 0
	}
	return base
}

// LoadString reads a NUL-terminated string of at most max bytes at va.
func LoadString(u *kernel.UserContext, va uint64, max int) (string, bool) {
	var out []byte
	var b [1]byte
	for len(out) < max {
		if !u.Load(va+uint64(len(out)), b[:]) {
			return "", false
		}
		if b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out), true
}

// Args reads the argument vector the kernel passed at entry.
func Args(u *kernel.UserContext, argc, argvVA uint64) []string {
	args := make([]string, 0, argc)
	for i := uint64(0); i < argc; i++ {
		ptr, ok := u.Load64(argvVA + 8*i)
		if !ok {
			break
		}
		s, ok := LoadString(u, ptr, kernel.MaxPathLen)
		if !ok {
			break
		}
		args = append(args, s)
	}
	return args
}
