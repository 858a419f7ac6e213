package kernel

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ember/emberos/mm"
	"ember/emberos/proto"
	"ember/emberos/vm"
)

var errNoFile = errors.New("no such file")

// progFS serves every registered program as a file whose contents are its
// own name; progLoader turns that name back into the program.
type progFS map[string]Program

func (f progFS) Open(_ context.Context, path string, _ int) (Inode, error) {
	if _, ok := f[path]; !ok {
		return nil, errNoFile
	}
	return &nameInode{data: []byte(path)}, nil
}

func (f progFS) Link(context.Context, string, string) error { return errNoFile }
func (f progFS) Unlink(context.Context, string) error       { return errNoFile }

type nameInode struct{ data []byte }

func (n *nameInode) Inum() uint64  { return 2 }
func (n *nameInode) Dir() bool     { return false }
func (n *nameInode) Nlink() uint32 { return 1 }
func (n *nameInode) Size() int64   { return int64(len(n.data)) }
func (n *nameInode) Close() error  { return nil }
func (n *nameInode) ReadAt(p []byte, off int64) (int, error) {
	c := copy(p, n.data[off:])
	if c < len(p) {
		return c, io.EOF
	}
	return c, nil
}
func (n *nameInode) WriteAt([]byte, int64) (int, error) { return 0, errNoFile }

type progLoader map[string]Program

func (l progLoader) Parse(image []byte) (Executable, error) {
	prog, ok := l[string(image)]
	if !ok {
		return nil, errNoFile
	}
	return &progExe{name: string(image), prog: prog}, nil
}

// Test layout: one text page at TextBase, a guard page, a stack page.
const (
	testStack    = 0x3000
	testStackTop = 0x4000
)

type progExe struct {
	name string
	prog Program
}

func (e *progExe) Load(as *vm.AddressSpace, argv []string) (Image, error) {
	if _, err := as.Grow(proto.TextBase, proto.TextBase+mm.PageSize, vm.PteW|vm.PteX); err != nil {
		return Image{}, err
	}
	if _, err := as.Grow(testStack, testStackTop, vm.PteW); err != nil {
		return Image{}, err
	}
	sp := uint64(testStackTop)
	ptrs := make([]uint64, len(argv)+1)
	for i, s := range argv {
		sp -= uint64(len(s)) + 1
		if err := as.CopyOut(sp, append([]byte(s), 0)); err != nil {
			return Image{}, err
		}
		ptrs[i] = sp
	}
	sp = (sp - uint64(8*len(ptrs))) &^ 15
	buf := make([]byte, 8*len(ptrs))
	for i, p := range ptrs {
		binary.LittleEndian.PutUint64(buf[8*i:], p)
	}
	if err := as.CopyOut(sp, buf); err != nil {
		return Image{}, err
	}
	return Image{
		Program:  e.prog,
		Name:     e.name,
		Entry:    proto.TextBase,
		Stack:    testStack,
		StackTop: sp,
		Break:    testStackTop,
		Argc:     len(argv),
		Argv:     sp,
	}, nil
}

type testConsole struct {
	bytes.Buffer
	in io.Reader
}

func (c *testConsole) Read(p []byte) (int, error) {
	if c.in == nil {
		return 0, io.EOF
	}
	return c.in.Read(p)
}

// newKernel boots a kernel whose file system holds progs and starts "init".
func newKernel(t *testing.T, progs map[string]Program, cfg Config) (*Kernel, *testConsole) {
	t.Helper()
	con := &testConsole{}
	cfg.FS = progFS(progs)
	cfg.Loader = progLoader(progs)
	cfg.Console = con
	if cfg.PhysTop == 0 {
		cfg.PhysTop = mm.KernelBase + 4<<20
	}
	k, err := New(cfg)
	require.NoError(t, err)
	if _, ok := progs["init"]; ok {
		_, err = k.Boot("init", []string{"init"})
		require.NoError(t, err)
	}
	return k, con
}

// run drives the scheduler until the kernel halts.
func run(t *testing.T, k *Kernel) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(15 * time.Second):
		t.Fatal("kernel did not halt")
		return nil
	}
}

// sys returns an instruction making one system call with fixed arguments.
func sys(num uint64, args ...uint64) Instr {
	return func(u *UserContext) { u.Ecall(num, args...) }
}

// record stores the result of the previous system call.
func record(dst *int64) Instr {
	return func(u *UserContext) { *dst = u.Ret() }
}

func le32At(u *UserContext, va uint64) int32 {
	var b [4]byte
	u.Load(va, b[:])
	return int32(binary.LittleEndian.Uint32(b[:]))
}
