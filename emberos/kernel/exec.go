package kernel

import (
	"errors"
	"fmt"
	"io"

	"ember/emberos/proto"
	"ember/emberos/vm"
)

// Loader turns a program file into something that can be loaded.
type Loader interface {
	Parse(image []byte) (Executable, error)
}

// Executable is a parsed program, loadable into any address space.
type Executable interface {
	// Load maps the program text, a guard page and the user stack into as,
	// pushes argv onto the stack and reports the resulting layout.
	Load(as *vm.AddressSpace, argv []string) (Image, error)
}

// Image is a loaded program.
type Image struct {
	Program  Program
	Name     string
	Entry    uint64
	Stack    uint64 // lowest address of the user stack
	StackTop uint64 // initial sp
	Break    uint64 // initial program break and heap bottom
	Argc     int
	Argv     uint64
}

// ErrNoLoader reports a kernel booted without a file system or loader.
var ErrNoLoader = errors.New("kernel: no file system or loader")

// resolve reads and parses the program at path without touching any
// process state.
func (k *Kernel) resolve(path string) (Executable, error) {
	if k.fs == nil || k.loader == nil {
		return nil, ErrNoLoader
	}
	ip, err := k.fs.Open(k.runContext(), path, proto.ORdOnly)
	if err != nil {
		return nil, err
	}
	defer ip.Close()
	if ip.Dir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	data := make([]byte, ip.Size())
	n, err := ip.ReadAt(data, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return k.loader.Parse(data[:n])
}
