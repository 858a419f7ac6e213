package kernel

import "ember/emberos/mm"

const (
	// DefaultNProc is the process table capacity used when Config.NProc is zero.
	DefaultNProc = 16

	// FileTableSize is the number of descriptors per process.
	FileTableSize = 16

	// MaxArgs bounds the argv vector accepted by execve.
	MaxArgs = 32

	// MaxPathLen bounds every path string copied in from user space.
	MaxPathLen = 200

	// KStackSize and TrapFrameSize size the static per-slot pools.
	KStackSize    = mm.PageSize
	TrapFrameSize = mm.PageSize

	// A process's pass is its priority, so a larger value earns fewer turns.
	DefaultPriority = 16
	MinPriority     = 2

	// IdlePID is reported as the parent of parentless processes.
	IdlePID = 0

	// DefaultPhysMemory is the arena size used when Config.PhysTop is zero.
	DefaultPhysMemory = 16 << 20
)
