package mm

import "errors"

var (
	// ErrInvalid reports an address that is misaligned or outside the frame region.
	ErrInvalid = errors.New("mm: invalid frame address")
	// ErrNotAllocated reports an Acquire of a frame sitting on the free list.
	ErrNotAllocated = errors.New("mm: frame not allocated")
)

const (
	junkAlloc = 0x05
	junkFree  = 0x01

	// pageMetaSize is the arena space reserved per frame for its metadata.
	pageMetaSize = 8

	noFrame int32 = -1
)

// page is the metadata of one frame. The reference count doubles as the
// variant tag: while ref == 0 the frame is free and next links it into the
// free list; while ref > 0 next is meaningless and kept at noFrame.
type page struct {
	ref  int32
	next int32
}

// Allocator hands out physical page frames with reference counts.
//
// It owns [Start, End). The metadata array occupies the arena space between
// the end of the kernel image and Start.
type Allocator struct {
	mem   *Memory
	pages []page
	start uint64
	end   uint64

	head  int32
	nfree int
}

// New claims the physical range [kernelEnd, physTop) and builds the free list.
func New(mem *Memory, kernelEnd, physTop uint64) *Allocator {
	if physTop > mem.Top() {
		physTop = PageRoundDown(mem.Top())
	}
	metaStart := PageRoundUp(kernelEnd)
	var n uint64
	if physTop > metaStart {
		n = (physTop - metaStart) / (PageSize + pageMetaSize)
	}
	for n > 0 && PageRoundUp(metaStart+n*pageMetaSize)+n*PageSize > physTop {
		n--
	}

	a := &Allocator{
		mem:   mem,
		pages: make([]page, n),
		start: PageRoundUp(metaStart + n*pageMetaSize),
		head:  noFrame,
	}
	a.end = a.start + n*PageSize

	// Every frame starts reserved; freeing the range is what builds the list.
	for i := range a.pages {
		a.pages[i] = page{ref: 1, next: noFrame}
	}
	for pa := a.start; pa+PageSize <= a.end; pa += PageSize {
		a.Free(pa)
	}
	return a
}

// Start returns the first managed frame address.
func (a *Allocator) Start() uint64 { return a.start }

// End returns the address one past the last managed frame.
func (a *Allocator) End() uint64 { return a.end }

// Frames returns the number of managed frames.
func (a *Allocator) Frames() int { return len(a.pages) }

// FreeFrames returns the number of frames on the free list.
func (a *Allocator) FreeFrames() int { return a.nfree }

// Memory returns the arena the allocator manages.
func (a *Allocator) Memory() *Memory { return a.mem }

func (a *Allocator) valid(pa uint64) bool {
	return Aligned(pa) && pa >= a.start && pa < a.end
}

func (a *Allocator) index(pa uint64) int32 { return int32((pa - a.start) / PageSize) }

func (a *Allocator) addr(i int32) uint64 { return a.start + uint64(i)*PageSize }

// Alloc returns a fresh frame filled with junk, or 0 when memory is exhausted.
func (a *Allocator) Alloc() uint64 {
	if a.head == noFrame {
		return 0
	}
	i := a.head
	p := &a.pages[i]
	a.head = p.next
	a.nfree--

	pa := a.addr(i)
	fill(a.mem.Page(pa), junkAlloc)
	*p = page{ref: 1, next: noFrame}
	return pa
}

// Free drops one reference to pa and reclaims the frame when none remain.
// pa must be a frame this allocator handed out.
func (a *Allocator) Free(pa uint64) {
	if !a.valid(pa) {
		panic(&Fault{Kind: FaultBadFree, Addr: pa})
	}
	a.put(pa)
}

// Acquire adds a reference to an allocated frame.
func (a *Allocator) Acquire(pa uint64) error {
	if !a.valid(pa) {
		return ErrInvalid
	}
	p := &a.pages[a.index(pa)]
	if p.ref == 0 {
		return ErrNotAllocated
	}
	p.ref++
	return nil
}

// Release drops a reference to pa and returns the remaining count. A frame
// released to zero goes back on the free list.
func (a *Allocator) Release(pa uint64) (int, error) {
	if !a.valid(pa) {
		return 0, ErrInvalid
	}
	return a.put(pa), nil
}

// Ref returns the reference count of pa.
func (a *Allocator) Ref(pa uint64) (int, error) {
	if !a.valid(pa) {
		return 0, ErrInvalid
	}
	return int(a.pages[a.index(pa)].ref), nil
}

func (a *Allocator) put(pa uint64) int {
	i := a.index(pa)
	p := &a.pages[i]
	if p.ref <= 0 {
		panic(&Fault{Kind: FaultDoubleFree, Addr: pa})
	}
	p.ref--
	if p.ref > 0 {
		return int(p.ref)
	}
	fill(a.mem.Page(pa), junkFree)
	p.next = a.head
	a.head = i
	a.nfree++
	return 0
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
