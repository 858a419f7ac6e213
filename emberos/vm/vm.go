package vm

import (
	"fmt"

	"ember/emberos/mm"
)

// AddressSpace is a Sv39 page table plus the bookkeeping needed to tear it
// down. It owns every frame mapped below Trapframe; the trampoline and the
// trap-frame pages belong to the kernel and are never freed through it.
type AddressSpace struct {
	frames *mm.Allocator
	mem    *mm.Memory
	root   uint64

	// maxPage is one past the highest page index ever mapped below Trapframe.
	maxPage uint64
}

// Create builds an address space holding only the trampoline and trap-frame mappings.
func Create(frames *mm.Allocator, trapframe, trampoline uint64) (*AddressSpace, error) {
	root := frames.Alloc()
	if root == 0 {
		return nil, ErrNoMemory
	}
	as := &AddressSpace{frames: frames, mem: frames.Memory(), root: root}
	as.mem.Zero(root)

	if err := as.Map(Trampoline, PageSize, trampoline, PteR|PteX); err != nil {
		as.freewalk(as.root)
		return nil, err
	}
	if err := as.Map(Trapframe, PageSize, trapframe, PteR|PteW); err != nil {
		as.Unmap(Trampoline, 1, false)
		as.freewalk(as.root)
		return nil, err
	}
	return as, nil
}

// Root returns the physical address of the root page table.
func (as *AddressSpace) Root() uint64 { return as.root }

// Satp returns the satp value that activates this address space.
func (as *AddressSpace) Satp() uint64 { return MakeSatp(as.root) }

// MaxPage returns one past the highest user page index ever mapped.
func (as *AddressSpace) MaxPage() uint64 { return as.maxPage }

// walk returns the physical address of the level-0 PTE for va, creating
// intermediate tables when alloc is set.
func (as *AddressSpace) walk(va uint64, alloc bool) (uint64, bool) {
	if va >= MaxVA {
		panic(&Fault{Kind: FaultWalk, VA: va})
	}
	table := as.root
	for level := 2; level > 0; level-- {
		slot := table + px(level, va)*8
		pte := as.mem.Uint64(slot)
		if pte&PteV != 0 {
			table = pte2pa(pte)
			continue
		}
		if !alloc {
			return 0, false
		}
		next := as.frames.Alloc()
		if next == 0 {
			return 0, false
		}
		as.mem.Zero(next)
		as.mem.PutUint64(slot, pa2pte(next)|PteV)
		table = next
	}
	return table + px(0, va)*8, true
}

// lookup returns the leaf PTE for va, or 0.
func (as *AddressSpace) lookup(va uint64) uint64 {
	if va >= MaxVA {
		return 0
	}
	slot, ok := as.walk(va, false)
	if !ok {
		return 0
	}
	return as.mem.Uint64(slot)
}

// Map installs PTEs for [va, va+size) pointing at [pa, pa+size). It refuses
// to overwrite a valid entry; on failure no new leaf from this call survives.
func (as *AddressSpace) Map(va, size, pa, perm uint64) error {
	if size == 0 {
		return fmt.Errorf("map va %#x: %w", va, ErrBadAddress)
	}
	first := mm.PageRoundDown(va)
	last := mm.PageRoundDown(va + size - 1)
	if last >= MaxVA {
		return fmt.Errorf("map va %#x: %w", va, ErrBadAddress)
	}
	for a := first; ; a, pa = a+PageSize, pa+PageSize {
		slot, ok := as.walk(a, true)
		if !ok {
			as.Unmap(first, (a-first)/PageSize, false)
			return fmt.Errorf("map va %#x: %w", a, ErrNoMemory)
		}
		if as.mem.Uint64(slot)&PteV != 0 {
			as.Unmap(first, (a-first)/PageSize, false)
			return fmt.Errorf("map va %#x: %w", a, ErrRemap)
		}
		as.mem.PutUint64(slot, pa2pte(pa)|perm|PteV)
		if a < Trapframe && a/PageSize+1 > as.maxPage {
			as.maxPage = a/PageSize + 1
		}
		if a == last {
			return nil
		}
	}
}

// Unmap removes npages mappings starting at va, releasing the frames when
// free is set. Holes in the range are skipped.
func (as *AddressSpace) Unmap(va, npages uint64, free bool) {
	if !mm.Aligned(va) {
		panic(&Fault{Kind: FaultMisaligned, VA: va})
	}
	for a := va; a < va+npages*PageSize; a += PageSize {
		slot, ok := as.walk(a, false)
		if !ok {
			continue
		}
		pte := as.mem.Uint64(slot)
		if pte&PteV != 0 {
			if pte&pteLeaf == 0 {
				panic(&Fault{Kind: FaultNotLeaf, VA: a})
			}
			if free {
				as.frames.Free(pte2pa(pte))
			}
		}
		as.mem.PutUint64(slot, 0)
	}
}

// Translate returns the physical address backing a user virtual address.
func (as *AddressSpace) Translate(va uint64) (uint64, bool) {
	pte := as.lookup(va)
	if pte&PteV == 0 || pte&PteU == 0 {
		return 0, false
	}
	return pte2pa(pte) + va%PageSize, true
}

// Mapped returns the virtual address of every valid user page below MaxPage.
func (as *AddressSpace) Mapped() []uint64 {
	var pages []uint64
	for i := uint64(0); i < as.maxPage; i++ {
		if pte := as.lookup(i * PageSize); pte&PteV != 0 {
			pages = append(pages, i*PageSize)
		}
	}
	return pages
}

// Duplicate copies every mapped page in [0, pageCount) into dst, each into a
// freshly allocated frame with identical permissions. On failure dst gets
// back exactly what it had.
func (as *AddressSpace) Duplicate(dst *AddressSpace, pageCount uint64) error {
	var i uint64
	var err error
	for ; i < pageCount; i++ {
		va := i * PageSize
		pte := as.lookup(va)
		if pte&PteV == 0 {
			continue
		}
		frame := as.frames.Alloc()
		if frame == 0 {
			err = fmt.Errorf("duplicate va %#x: %w", va, ErrNoMemory)
			break
		}
		as.mem.CopyPage(frame, pte2pa(pte))
		if err = dst.Map(va, PageSize, frame, pte&pteFlags&^PteV); err != nil {
			as.frames.Free(frame)
			break
		}
	}
	if err != nil {
		dst.Unmap(0, i, true)
		return err
	}
	return nil
}

// Grow maps zeroed frames over [PageRoundUp(oldsz), newsz) and returns newsz.
// If any page fails, the pages added by this call are unmapped and freed.
func (as *AddressSpace) Grow(oldsz, newsz, xperm uint64) (uint64, error) {
	if newsz < oldsz {
		return oldsz, nil
	}
	if newsz > Trapframe {
		return oldsz, fmt.Errorf("grow to %#x: %w", newsz, ErrBadAddress)
	}
	for a := mm.PageRoundUp(oldsz); a < newsz; a += PageSize {
		frame := as.frames.Alloc()
		if frame == 0 {
			as.Shrink(a, oldsz)
			return oldsz, fmt.Errorf("grow at %#x: %w", a, ErrNoMemory)
		}
		as.mem.Zero(frame)
		if err := as.Map(a, PageSize, frame, PteR|PteU|xperm); err != nil {
			as.frames.Free(frame)
			as.Shrink(a, oldsz)
			return oldsz, err
		}
	}
	return newsz, nil
}

// Shrink unmaps and frees the pages covering [newsz, oldsz) and returns newsz.
func (as *AddressSpace) Shrink(oldsz, newsz uint64) uint64 {
	if newsz >= oldsz {
		return oldsz
	}
	if lo, hi := mm.PageRoundUp(newsz), mm.PageRoundUp(oldsz); lo < hi {
		as.Unmap(lo, (hi-lo)/PageSize, true)
	}
	return newsz
}

// Discard unmaps and frees the whole user region, leaving the trampoline and
// trap frame in place.
func (as *AddressSpace) Discard() {
	if as.maxPage > 0 {
		as.Unmap(0, as.maxPage, true)
	}
	as.maxPage = 0
}

// Teardown releases every frame the address space owns, including the page
// tables themselves. The address space must not be used afterwards.
func (as *AddressSpace) Teardown() {
	as.Unmap(Trampoline, 1, false)
	as.Unmap(Trapframe, 1, false)
	as.Discard()
	as.freewalk(as.root)
	as.root = 0
}

func (as *AddressSpace) freewalk(table uint64) {
	for i := uint64(0); i < entriesPerTable; i++ {
		slot := table + i*8
		pte := as.mem.Uint64(slot)
		if pte&PteV == 0 {
			continue
		}
		if pte&pteLeaf != 0 {
			panic(&Fault{Kind: FaultLeaf, VA: table})
		}
		as.freewalk(pte2pa(pte))
		as.mem.PutUint64(slot, 0)
	}
	as.frames.Free(table)
}
