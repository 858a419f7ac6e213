package vm

import (
	"fmt"

	"ember/emberos/mm"
)

// Protection bits accepted by Mmap.
const (
	ProtRead  = 1 << 0
	ProtWrite = 1 << 1
	ProtExec  = 1 << 2

	protMask = ProtRead | ProtWrite | ProtExec
)

// MaxMmapLength is the largest length a single Mmap call may request.
const MaxMmapLength = 1 << 30

// Mmap backs [start, start+length) with fresh zeroed frames. Either every
// page is mapped or, on failure, none of the pages from this call remain and
// no frame is leaked.
func (as *AddressSpace) Mmap(start, length uint64, prot int) error {
	if prot&^protMask != 0 {
		return fmt.Errorf("mmap prot %#x: %w", prot, ErrInvalidProt)
	}
	if prot&protMask == 0 {
		return fmt.Errorf("mmap prot %#x: %w", prot, ErrInvalidProt)
	}
	if !mm.Aligned(start) {
		return fmt.Errorf("mmap start %#x: %w", start, ErrMisaligned)
	}
	if length == 0 {
		return nil
	}
	if length > MaxMmapLength {
		return fmt.Errorf("mmap length %#x: %w", length, ErrTooLarge)
	}
	npages := mm.PageRoundUp(length) / PageSize
	if end := start + npages*PageSize; end > Trapframe || end < start {
		return fmt.Errorf("mmap start %#x: %w", start, ErrBadAddress)
	}

	perm := PteU | uint64(prot)<<1
	for i := uint64(0); i < npages; i++ {
		frame := as.frames.Alloc()
		if frame == 0 {
			as.Unmap(start, i, true)
			return fmt.Errorf("mmap page %d: %w", i, ErrNoMemory)
		}
		as.mem.Zero(frame)
		if err := as.Map(start+i*PageSize, PageSize, frame, perm); err != nil {
			as.Unmap(start, i, true)
			as.frames.Free(frame)
			return err
		}
	}
	return nil
}

// Munmap unmaps and frees [start, start+length). It verifies the whole range
// first and changes nothing if any page in it is not mapped.
func (as *AddressSpace) Munmap(start, length uint64) error {
	if !mm.Aligned(start) {
		return fmt.Errorf("munmap start %#x: %w", start, ErrMisaligned)
	}
	if length == 0 {
		return nil
	}
	if length > Trapframe {
		return fmt.Errorf("munmap length %#x: %w", length, ErrBadAddress)
	}
	npages := mm.PageRoundUp(length) / PageSize
	if end := start + npages*PageSize; end > Trapframe || end < start {
		return fmt.Errorf("munmap start %#x: %w", start, ErrBadAddress)
	}
	for i := uint64(0); i < npages; i++ {
		if _, ok := as.Translate(start + i*PageSize); !ok {
			return fmt.Errorf("munmap va %#x: %w", start+i*PageSize, ErrNotMapped)
		}
	}
	as.Unmap(start, npages, true)
	return nil
}
