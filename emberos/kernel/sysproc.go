package kernel

import (
	"encoding/binary"

	"ember/emberos/mm"
	"ember/emberos/proto"
)

func (k *Kernel) sysExit(p *Proc, a *sysargs) int64 {
	k.Exit(int(int32(a[0])))
	return 0
}

func (k *Kernel) sysSchedYield(p *Proc, a *sysargs) int64 {
	k.Yield()
	return 0
}

func (k *Kernel) sysSetPriority(p *Proc, a *sysargs) int64 {
	return k.SetPriority(int64(a[0]))
}

func (k *Kernel) sysGettimeofday(p *Proc, a *sysargs) int64 {
	ms := k.Now()
	tv := proto.TimeVal{Sec: ms / 1000, Usec: ms % 1000 * 1000}
	return k.copyOutValue(p, a[0], &tv)
}

func (k *Kernel) sysGetpid(p *Proc, a *sysargs) int64 { return int64(p.pid) }

func (k *Kernel) sysGetppid(p *Proc, a *sysargs) int64 { return int64(k.ppid(p)) }

func (k *Kernel) sysClone(p *Proc, a *sysargs) int64 { return int64(k.Fork()) }

func (k *Kernel) sysExecve(p *Proc, a *sysargs) int64 {
	path, err := p.as.CopyInString(a[0], MaxPathLen)
	if err != nil {
		return -1
	}
	var argv []string
	for uargv := a[1]; uargv != 0; uargv += 8 {
		var b [8]byte
		if err := p.as.CopyIn(b[:], uargv); err != nil {
			return -1
		}
		arg := binary.LittleEndian.Uint64(b[:])
		if arg == 0 {
			break
		}
		if len(argv) == MaxArgs {
			return -1
		}
		s, err := p.as.CopyInString(arg, MaxPathLen)
		if err != nil {
			return -1
		}
		argv = append(argv, s)
	}
	return int64(k.Exec(path, argv))
}

func (k *Kernel) sysWait4(p *Proc, a *sysargs) int64 {
	return int64(k.Wait(int(int64(a[0])), a[1]))
}

func (k *Kernel) sysSpawn(p *Proc, a *sysargs) int64 {
	path, err := p.as.CopyInString(a[0], MaxPathLen)
	if err != nil {
		return -1
	}
	return int64(k.Spawn(path))
}

func (k *Kernel) sysSbrk(p *Proc, a *sysargs) int64 {
	addr := p.programBrk
	if k.GrowProc(int64(int32(a[0]))) < 0 {
		return -1
	}
	return int64(addr)
}

func (k *Kernel) sysMmap(p *Proc, a *sysargs) int64 {
	if err := p.as.Mmap(a[0], a[1], int(a[2])); err != nil {
		k.log.Info("mmap failed", "pid", p.pid, "start", a[0], "len", a[1], "prot", a[2], "err", err)
		return -1
	}
	return 0
}

func (k *Kernel) sysMunmap(p *Proc, a *sysargs) int64 {
	if err := p.as.Munmap(a[0], a[1]); err != nil {
		k.log.Info("munmap failed", "pid", p.pid, "start", a[0], "len", a[1], "err", err)
		return -1
	}
	return 0
}

func (k *Kernel) sysTaskInfo(p *Proc, a *sysargs) int64 {
	info := proto.TaskInfo{
		Status:       proto.TaskRunning,
		SyscallTimes: p.syscalls,
		Time:         int32(k.Now() - p.startMs),
	}
	return k.copyOutValue(p, a[0], &info)
}

// copyOutValue encodes v little-endian into user memory at va.
func (k *Kernel) copyOutValue(p *Proc, va uint64, v any) int64 {
	buf := make([]byte, binary.Size(v))
	if _, err := binary.Encode(buf, binary.LittleEndian, v); err != nil {
		k.log.Error("encode", "pid", p.pid, "err", err)
		return -1
	}
	if err := p.as.CopyOut(va, buf); err != nil {
		return -1
	}
	return 0
}

// ioChunk bounds each user copy made by read and write.
const ioChunk = mm.PageSize
