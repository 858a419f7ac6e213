package kernel

import (
	"errors"
	"io"

	"ember/emberos/proto"
)

func (k *Kernel) sysWrite(p *Proc, a *sysargs) int64 {
	f := p.file(a[0])
	if f == nil || !f.writable {
		k.log.Debug("write: bad fd", "pid", p.pid, "fd", a[0])
		return -1
	}
	va, n := a[1], a[2]
	buf := make([]byte, min(n, ioChunk))
	var done uint64
	for done < n {
		chunk := buf[:min(n-done, ioChunk)]
		if err := p.as.CopyIn(chunk, va+done); err != nil {
			break
		}
		switch f.kind {
		case fileStdio:
			if k.console != nil {
				if _, err := k.console.Write(chunk); err != nil {
					return -1
				}
			}
		case fileInode:
			w, err := f.ip.WriteAt(chunk, f.off)
			f.off += int64(w)
			done += uint64(w)
			if err != nil {
				k.log.Warn("write inode", "pid", p.pid, "inum", f.ip.Inum(), "err", err)
				return int64(done)
			}
			continue
		}
		done += uint64(len(chunk))
	}
	if f.kind == fileStdio {
		return int64(n)
	}
	return int64(done)
}

func (k *Kernel) sysRead(p *Proc, a *sysargs) int64 {
	f := p.file(a[0])
	if f == nil || !f.readable {
		k.log.Debug("read: bad fd", "pid", p.pid, "fd", a[0])
		return -1
	}
	va, n := a[1], a[2]
	buf := make([]byte, min(n, ioChunk))
	var done uint64
	for done < n {
		chunk := buf[:min(n-done, ioChunk)]
		var r int
		var err error
		switch f.kind {
		case fileStdio:
			if k.console == nil {
				return int64(done)
			}
			r, err = k.console.Read(chunk)
		case fileInode:
			r, err = f.ip.ReadAt(chunk, f.off)
			f.off += int64(r)
		}
		if r > 0 {
			if cerr := p.as.CopyOut(va+done, chunk[:r]); cerr != nil {
				return -1
			}
			done += uint64(r)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return -1
		}
		if f.kind == fileStdio || r < len(chunk) {
			break
		}
	}
	return int64(done)
}

func (k *Kernel) sysOpenat(p *Proc, a *sysargs) int64 {
	path, err := p.as.CopyInString(a[0], MaxPathLen)
	if err != nil || k.fs == nil {
		return -1
	}
	flags := int(a[1])
	ip, err := k.fs.Open(k.runContext(), path, flags)
	if err != nil {
		k.log.Debug("openat", "pid", p.pid, "path", path, "err", err)
		return -1
	}
	f := &File{
		kind:     fileInode,
		ref:      1,
		readable: flags&proto.OWrOnly == 0,
		writable: flags&proto.OWrOnly != 0 || flags&proto.ORdWr != 0,
		ip:       ip,
	}
	fd := p.fdAlloc(f)
	if fd < 0 {
		k.fileClose(f)
		return -1
	}
	return int64(fd)
}

func (k *Kernel) sysClose(p *Proc, a *sysargs) int64 {
	f := p.file(a[0])
	if f == nil {
		return -1
	}
	k.fileClose(f)
	p.files[a[0]] = nil
	return 0
}

func (k *Kernel) sysFstat(p *Proc, a *sysargs) int64 {
	f := p.file(a[0])
	if f == nil || f.kind != fileInode {
		return -1
	}
	st := proto.Stat{
		Ino:   f.ip.Inum(),
		Mode:  proto.ModeFile,
		Nlink: f.ip.Nlink(),
	}
	if f.ip.Dir() {
		st.Mode = proto.ModeDir
	}
	return k.copyOutValue(p, a[1], &st)
}

func (k *Kernel) sysLinkat(p *Proc, a *sysargs) int64 {
	oldPath, err := p.as.CopyInString(a[1], MaxPathLen)
	if err != nil {
		return -1
	}
	newPath, err := p.as.CopyInString(a[3], MaxPathLen)
	if err != nil || k.fs == nil {
		return -1
	}
	if err := k.fs.Link(k.runContext(), oldPath, newPath); err != nil {
		k.log.Debug("linkat", "pid", p.pid, "old", oldPath, "new", newPath, "err", err)
		return -1
	}
	return 0
}

func (k *Kernel) sysUnlinkat(p *Proc, a *sysargs) int64 {
	path, err := p.as.CopyInString(a[1], MaxPathLen)
	if err != nil || k.fs == nil {
		return -1
	}
	if err := k.fs.Unlink(k.runContext(), path); err != nil {
		k.log.Debug("unlinkat", "pid", p.pid, "path", path, "err", err)
		return -1
	}
	return 0
}
