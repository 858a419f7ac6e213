package fs

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/viant/afs/file"
)

// ErrClosed is returned by operations on a closed handle.
var ErrClosed = errors.New("fs: handle closed")

// Handle is an open inode. Writes go through to the backing store before
// WriteAt returns.
type Handle struct {
	fs     *FS
	ctx    context.Context
	inum   uint64
	ip     *inode
	dir    bool
	closed bool
}

func (h *Handle) Inum() uint64 { return h.inum }
func (h *Handle) Dir() bool    { return h.dir }

func (h *Handle) Nlink() uint32 {
	if h.dir {
		return 1
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return h.ip.Nlink
}

func (h *Handle) Size() int64 {
	if h.dir {
		return 0
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	return h.ip.Size
}

// ReadAt reads from the cached inode data.
func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	if h.dir {
		return 0, io.EOF
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if off >= int64(len(h.ip.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.ip.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off, growing the file as needed, and stores the new
// contents.
func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	if h.closed {
		return 0, ErrClosed
	}
	if h.dir || off < 0 {
		return 0, ErrInvalid
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	ip := h.ip
	if end := off + int64(len(p)); end > int64(len(ip.data)) {
		grown := make([]byte, end)
		copy(grown, ip.data)
		ip.data = grown
	}
	copy(ip.data[off:], p)
	ip.Size = int64(len(ip.data))
	if err := h.fs.store.Upload(h.ctx, h.fs.blobURL(h.inum), file.DefaultFileOsMode, bytes.NewReader(ip.data)); err != nil {
		return 0, err
	}
	return len(p), h.fs.sync(h.ctx)
}

// Close releases the handle; an unlinked inode is freed with its last
// handle.
func (h *Handle) Close() error {
	if h.closed || h.dir {
		h.closed = true
		return nil
	}
	h.closed = true
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	h.ip.open--
	if h.ip.Nlink > 0 || h.ip.open > 0 {
		return nil
	}
	if err := h.fs.release(h.ctx, h.inum, h.ip); err != nil {
		return err
	}
	return h.fs.sync(h.ctx)
}
