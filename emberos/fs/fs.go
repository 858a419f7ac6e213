// Package fs is a flat, single-directory file system with hard links. The
// directory and inode table are kept as a YAML index and file contents as
// one blob per inode, both stored through an afs.Service so the same code
// runs on mem:// for tests and file:// for a persistent disk.
package fs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	_ "github.com/viant/afs/mem"
	"github.com/viant/afs/url"
	"gopkg.in/yaml.v3"

	"ember/emberos/kernel"
	"ember/emberos/proto"
)

var (
	ErrNotFound = errors.New("fs: no such file")
	ErrExists   = errors.New("fs: file exists")
	ErrInvalid  = errors.New("fs: invalid path")
	ErrNoInodes = errors.New("fs: out of inodes")
)

const (
	indexName = "index.yaml"
	blobDir   = "inodes"

	// RootInum is the inode number of the root directory.
	RootInum = 1

	// MaxInodes bounds the inode table.
	MaxInodes = 1024
)

type inode struct {
	Nlink uint32 `yaml:"nlink"`
	Size  int64  `yaml:"size"`

	data   []byte
	loaded bool
	open   int
}

type index struct {
	Next    uint64            `yaml:"next"`
	Entries map[string]uint64 `yaml:"entries"`
	Inodes  map[uint64]*inode `yaml:"inodes"`
}

// FS is a mounted file system.
type FS struct {
	mu    sync.Mutex
	store afs.Service
	base  string
	idx   index
}

// Mount opens the file system stored under baseURL, creating an empty one
// when no index exists yet.
func Mount(ctx context.Context, store afs.Service, baseURL string) (*FS, error) {
	f := &FS{store: store, base: strings.TrimRight(baseURL, "/")}
	ok, err := store.Exists(ctx, f.indexURL())
	if err != nil {
		return nil, fmt.Errorf("fs: probe %s: %w", f.indexURL(), err)
	}
	if ok {
		data, err := store.DownloadWithURL(ctx, f.indexURL())
		if err != nil {
			return nil, fmt.Errorf("fs: read index: %w", err)
		}
		if err := yaml.Unmarshal(data, &f.idx); err != nil {
			return nil, fmt.Errorf("fs: parse index: %w", err)
		}
	}
	if f.idx.Entries == nil {
		f.idx.Entries = make(map[string]uint64)
	}
	if f.idx.Inodes == nil {
		f.idx.Inodes = make(map[uint64]*inode)
	}
	if f.idx.Next <= RootInum {
		f.idx.Next = RootInum + 1
	}
	return f, nil
}

func (f *FS) indexURL() string { return url.Join(f.base, indexName) }

func (f *FS) blobURL(inum uint64) string {
	return url.Join(f.base, blobDir+"/"+strconv.FormatUint(inum, 10))
}

func (f *FS) sync(ctx context.Context) error {
	data, err := yaml.Marshal(&f.idx)
	if err != nil {
		return err
	}
	return f.store.Upload(ctx, f.indexURL(), file.DefaultFileOsMode, bytes.NewReader(data))
}

// clean maps a user path to a directory entry name.
func clean(path string) (string, error) {
	name := strings.TrimPrefix(path, "/")
	name = strings.TrimPrefix(name, "./")
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalid, path)
	}
	return name, nil
}

// Open implements kernel.FileSystem. OCreate creates a missing file and
// OTrunc empties an existing one.
func (f *FS) Open(ctx context.Context, path string, flags int) (kernel.Inode, error) {
	if path == "/" {
		return &Handle{fs: f, ctx: ctx, inum: RootInum, dir: true}, nil
	}
	name, err := clean(path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	inum, ok := f.idx.Entries[name]
	switch {
	case !ok && flags&proto.OCreate == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	case !ok:
		if inum, err = f.create(ctx, name); err != nil {
			return nil, err
		}
	case flags&proto.OTrunc != 0:
		if err := f.truncate(ctx, inum); err != nil {
			return nil, err
		}
	}
	ip := f.idx.Inodes[inum]
	if err := f.load(ctx, inum, ip); err != nil {
		return nil, err
	}
	ip.open++
	return &Handle{fs: f, ctx: ctx, inum: inum, ip: ip}, nil
}

func (f *FS) create(ctx context.Context, name string) (uint64, error) {
	if len(f.idx.Inodes) >= MaxInodes {
		return 0, ErrNoInodes
	}
	inum := f.idx.Next
	f.idx.Next++
	f.idx.Inodes[inum] = &inode{Nlink: 1, loaded: true}
	f.idx.Entries[name] = inum
	if err := f.store.Upload(ctx, f.blobURL(inum), file.DefaultFileOsMode, bytes.NewReader(nil)); err != nil {
		delete(f.idx.Entries, name)
		delete(f.idx.Inodes, inum)
		return 0, fmt.Errorf("fs: create %s: %w", name, err)
	}
	return inum, f.sync(ctx)
}

func (f *FS) truncate(ctx context.Context, inum uint64) error {
	ip := f.idx.Inodes[inum]
	ip.data = ip.data[:0]
	ip.Size = 0
	ip.loaded = true
	if err := f.store.Upload(ctx, f.blobURL(inum), file.DefaultFileOsMode, bytes.NewReader(nil)); err != nil {
		return err
	}
	return f.sync(ctx)
}

func (f *FS) load(ctx context.Context, inum uint64, ip *inode) error {
	if ip.loaded {
		return nil
	}
	data, err := f.store.DownloadWithURL(ctx, f.blobURL(inum))
	if err != nil {
		return fmt.Errorf("fs: read inode %d: %w", inum, err)
	}
	ip.data = data
	ip.Size = int64(len(data))
	ip.loaded = true
	return nil
}

// Link implements kernel.FileSystem: newPath becomes another name for the
// inode behind oldPath.
func (f *FS) Link(ctx context.Context, oldPath, newPath string) error {
	oldName, err := clean(oldPath)
	if err != nil {
		return err
	}
	newName, err := clean(newPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	inum, ok := f.idx.Entries[oldName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, oldName)
	}
	if _, ok := f.idx.Entries[newName]; ok {
		return fmt.Errorf("%w: %s", ErrExists, newName)
	}
	f.idx.Entries[newName] = inum
	f.idx.Inodes[inum].Nlink++
	return f.sync(ctx)
}

// Unlink implements kernel.FileSystem. The inode and its data go away with
// the last link once no handle has it open.
func (f *FS) Unlink(ctx context.Context, path string) error {
	name, err := clean(path)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	inum, ok := f.idx.Entries[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(f.idx.Entries, name)
	ip := f.idx.Inodes[inum]
	ip.Nlink--
	if err := f.release(ctx, inum, ip); err != nil {
		return err
	}
	return f.sync(ctx)
}

// release drops an unreferenced inode.
func (f *FS) release(ctx context.Context, inum uint64, ip *inode) error {
	if ip.Nlink > 0 || ip.open > 0 {
		return nil
	}
	delete(f.idx.Inodes, inum)
	if err := f.store.Delete(ctx, f.blobURL(inum)); err != nil {
		return fmt.Errorf("fs: free inode %d: %w", inum, err)
	}
	return nil
}

// WriteFile creates or replaces path with data.
func (f *FS) WriteFile(ctx context.Context, path string, data []byte) error {
	h, err := f.Open(ctx, path, proto.ORdWr|proto.OCreate|proto.OTrunc)
	if err != nil {
		return err
	}
	if _, err := h.WriteAt(data, 0); err != nil {
		_ = h.Close()
		return err
	}
	return h.Close()
}

// ReadFile returns the contents of path.
func (f *FS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	h, err := f.Open(ctx, path, proto.ORdOnly)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	buf := make([]byte, h.Size())
	n, err := h.ReadAt(buf, 0)
	if err != nil && n < len(buf) {
		return nil, err
	}
	return buf[:n], nil
}

// List returns the directory entries in name order.
func (f *FS) List() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.idx.Entries))
	for n := range f.idx.Entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
