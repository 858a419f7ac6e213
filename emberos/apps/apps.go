// Package apps holds the demo user programs installed at boot.
//
// Programs keep all of their state in registers and user memory, never in
// Go variables, so that fork and exec behave as they would for real code.
// By convention s0..s11 hold locals; an instruction makes at most one
// system call and does not jump after making it.
package apps

import (
	"context"
	"fmt"
	"sort"

	"ember/emberos/kernel"
	"ember/emberos/loader"
	"ember/emberos/user"
)

var programs = map[string]kernel.Text{
	"init":     initText,
	"hello":    helloText,
	"echo":     echoText,
	"exectest": execText,
	"forktest": forkText,
	"stride":   strideText,
	"sbrktest": sbrkText,
	"mmaptest": mmapText,
	"filetest": fileText,
}

// Names returns the program names in sorted order.
func Names() []string {
	names := make([]string, 0, len(programs))
	for n := range programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Register adds every program text to r.
func Register(r *loader.Registry) {
	for name, text := range programs {
		r.Register(name, text)
	}
}

// FileWriter stores whole files.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Install writes an image for every program to fs, named after the program.
func Install(ctx context.Context, fs FileWriter) error {
	for _, name := range Names() {
		img := loader.Build(name, loader.TextSize(programs[name]), nil)
		if err := fs.WriteFile(ctx, name, img); err != nil {
			return fmt.Errorf("install %s: %w", name, err)
		}
	}
	return nil
}

func exit(code int) kernel.Instr {
	return func(u *kernel.UserContext) { user.Exit(u, code) }
}

func say(s string) kernel.Instr {
	return func(u *kernel.UserContext) { user.Print(u, s) }
}

func jump(i int) kernel.Instr {
	return func(u *kernel.UserContext) { u.Goto(i) }
}

// load32 reads a little-endian int32 of user memory.
func load32(u *kernel.UserContext, va uint64) (int32, bool) {
	var b [4]byte
	if !u.Load(va, b[:]) {
		return 0, false
	}
	return int32(uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24), true
}

// intArg returns args[i] as a positive integer, or def.
func intArg(args []string, i int, def uint64) uint64 {
	if i >= len(args) {
		return def
	}
	var v uint64
	if _, err := fmt.Sscan(args[i], &v); err != nil || v == 0 {
		return def
	}
	return v
}
