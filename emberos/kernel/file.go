package kernel

import "context"

// FileSystem resolves paths to inodes. The kernel passes the context given
// to Run on every call.
type FileSystem interface {
	Open(ctx context.Context, path string, flags int) (Inode, error)
	Link(ctx context.Context, oldPath, newPath string) error
	Unlink(ctx context.Context, path string) error
}

// Inode is an open handle on a file system object. Close releases the
// handle.
type Inode interface {
	Inum() uint64
	Dir() bool
	Nlink() uint32
	Size() int64
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Close() error
}

type fileKind uint8

const (
	fileNone fileKind = iota
	fileStdio
	fileInode
)

// File is an open file description, shared between descriptors after fork.
type File struct {
	kind     fileKind
	ref      int
	readable bool
	writable bool
	ip       Inode
	off      int64
}

func stdioFile() *File {
	return &File{kind: fileStdio, ref: 1, readable: true, writable: true}
}

func (f *File) dup() *File {
	f.ref++
	return f
}

func (k *Kernel) fileClose(f *File) {
	f.ref--
	if f.ref > 0 {
		return
	}
	if f.kind == fileInode && f.ip != nil {
		if err := f.ip.Close(); err != nil {
			k.log.Warn("close inode", "inum", f.ip.Inum(), "err", err)
		}
	}
	f.kind = fileNone
	f.ip = nil
}

// fdAlloc installs f at the lowest free descriptor.
func (p *Proc) fdAlloc(f *File) int {
	for fd := range p.files {
		if p.files[fd] == nil {
			p.files[fd] = f
			return fd
		}
	}
	return -1
}

// file returns the open file at fd, or nil.
func (p *Proc) file(fd uint64) *File {
	if fd >= FileTableSize {
		return nil
	}
	return p.files[fd]
}
