// Package loader implements the program image format: a small header naming
// a registered program text plus an initial data payload copied to the start
// of the text segment.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"ember/emberos/kernel"
	"ember/emberos/mm"
	"ember/emberos/proto"
	"ember/emberos/vm"
)

var (
	ErrBadImage      = errors.New("loader: bad image")
	ErrUnknownText   = errors.New("loader: unknown program text")
	ErrArgsTooLarge  = errors.New("loader: arguments do not fit on the stack")
	ErrImageTooLarge = errors.New("loader: image too large")
)

var magic = [4]byte{'E', 'M', 'B', 'R'}

const (
	version = 1

	// maxMemSize bounds the text segment of one image.
	maxMemSize = 16 << 20
)

type header struct {
	Magic      [4]byte
	Version    uint16
	NameLen    uint16
	MemSize    uint32
	PayloadLen uint32
}

// Build encodes an image for the program text registered as name. memSize
// is the size of the text segment; the payload is copied to its start.
func Build(name string, memSize uint32, payload []byte) []byte {
	if int(memSize) < len(payload) {
		memSize = uint32(len(payload))
	}
	h := header{
		Magic:      magic,
		Version:    version,
		NameLen:    uint16(len(name)),
		MemSize:    memSize,
		PayloadLen: uint32(len(payload)),
	}
	le := binary.LittleEndian
	buf := make([]byte, 0, binary.Size(&h)+len(name)+len(payload))
	buf = append(buf, h.Magic[:]...)
	buf = le.AppendUint16(buf, h.Version)
	buf = le.AppendUint16(buf, h.NameLen)
	buf = le.AppendUint32(buf, h.MemSize)
	buf = le.AppendUint32(buf, h.PayloadLen)
	buf = append(buf, name...)
	return append(buf, payload...)
}

// TextSize returns the text segment size of t.
func TextSize(t kernel.Text) uint32 { return uint32(len(t) * proto.InstrSize) }

// Registry maps text names to programs and parses images against them.
type Registry struct {
	mu    sync.RWMutex
	progs map[string]kernel.Program
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{progs: make(map[string]kernel.Program)}
}

// Register makes prog available to images naming it.
func (r *Registry) Register(name string, prog kernel.Program) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progs[name] = prog
}

// Names returns the registered text names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.progs))
	for n := range r.progs {
		names = append(names, n)
	}
	return names
}

// Parse implements kernel.Loader.
func (r *Registry) Parse(image []byte) (kernel.Executable, error) {
	rd := bytes.NewReader(image)
	var h header
	if err := binary.Read(rd, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadImage, err)
	}
	if h.Magic != magic || h.Version != version {
		return nil, fmt.Errorf("%w: magic %q version %d", ErrBadImage, h.Magic[:], h.Version)
	}
	if h.MemSize > maxMemSize || h.PayloadLen > h.MemSize {
		return nil, fmt.Errorf("%w: mem %d payload %d", ErrImageTooLarge, h.MemSize, h.PayloadLen)
	}
	name := make([]byte, h.NameLen)
	if _, err := io.ReadFull(rd, name); err != nil {
		return nil, fmt.Errorf("%w: name: %v", ErrBadImage, err)
	}
	payload := make([]byte, h.PayloadLen)
	if _, err := io.ReadFull(rd, payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrBadImage, err)
	}

	r.mu.RLock()
	prog, ok := r.progs[string(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownText, name)
	}
	return &executable{name: string(name), prog: prog, memSize: uint64(h.MemSize), payload: payload}, nil
}

type executable struct {
	name    string
	prog    kernel.Program
	memSize uint64
	payload []byte
}

// Load maps the text segment at TextBase, leaves one unmapped guard page,
// maps one page of user stack above it and pushes argv. The program break
// starts at the top of the stack.
//
// On failure everything mapped below the trap frame is discarded.
func (e *executable) Load(as *vm.AddressSpace, argv []string) (kernel.Image, error) {
	img, err := e.load(as, argv)
	if err != nil {
		as.Discard()
		return kernel.Image{}, err
	}
	return img, nil
}

func (e *executable) load(as *vm.AddressSpace, argv []string) (kernel.Image, error) {
	start := uint64(proto.TextBase)
	end := mm.PageRoundUp(start + max(e.memSize, 1))
	if _, err := as.Grow(start, end, vm.PteW|vm.PteX); err != nil {
		return kernel.Image{}, fmt.Errorf("text: %w", err)
	}
	if err := as.CopyOut(start, e.payload); err != nil {
		return kernel.Image{}, fmt.Errorf("payload: %w", err)
	}

	ustack := end + mm.PageSize
	top := ustack + proto.UserStackSize
	if _, err := as.Grow(ustack, top, vm.PteW); err != nil {
		return kernel.Image{}, fmt.Errorf("stack: %w", err)
	}

	sp, argvVA, err := pushArgs(as, top, ustack, argv)
	if err != nil {
		return kernel.Image{}, err
	}
	return kernel.Image{
		Program:  e.prog,
		Name:     e.name,
		Entry:    start,
		Stack:    ustack,
		StackTop: sp,
		Break:    top,
		Argc:     len(argv),
		Argv:     argvVA,
	}, nil
}

// pushArgs copies the argv strings and a NULL-terminated pointer array onto
// the stack below top and returns the 16-byte aligned sp and the array's
// address.
func pushArgs(as *vm.AddressSpace, top, bottom uint64, argv []string) (sp, argvVA uint64, err error) {
	need := uint64(8 * (len(argv) + 1))
	for _, s := range argv {
		need += uint64(len(s)) + 1
	}
	if need+16 > top-bottom {
		return 0, 0, ErrArgsTooLarge
	}

	sp = top
	ptrs := make([]byte, 8*(len(argv)+1))
	for i, s := range argv {
		sp -= uint64(len(s)) + 1
		if err := as.CopyOut(sp, append([]byte(s), 0)); err != nil {
			return 0, 0, fmt.Errorf("argv: %w", err)
		}
		binary.LittleEndian.PutUint64(ptrs[8*i:], sp)
	}
	sp &^= 7
	sp -= uint64(len(ptrs))
	if err := as.CopyOut(sp, ptrs); err != nil {
		return 0, 0, fmt.Errorf("argv: %w", err)
	}
	return sp &^ 15, sp, nil
}
