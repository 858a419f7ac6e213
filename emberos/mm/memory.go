package mm

import "encoding/binary"

const (
	PageSize  = 4096
	PageShift = 12

	// KernelBase is where the boot ROM jumps; the kernel image starts here.
	KernelBase uint64 = 0x8000_0000
)

// PageRoundUp rounds a up to the next page boundary.
func PageRoundUp(a uint64) uint64 { return (a + PageSize - 1) &^ (PageSize - 1) }

// PageRoundDown rounds a down to a page boundary.
func PageRoundDown(a uint64) uint64 { return a &^ (PageSize - 1) }

// Aligned reports whether a is page aligned.
func Aligned(a uint64) bool { return a&(PageSize-1) == 0 }

// Memory is the machine's physical RAM: the address range [base, top) backed
// by a byte arena. Physical addresses are plain uint64 values; nothing outside
// this package ever holds a Go pointer into the arena for longer than one call.
type Memory struct {
	base uint64
	buf  []byte
}

// NewMemory allocates physical memory covering [base, top).
func NewMemory(base, top uint64) *Memory {
	if top <= base || !Aligned(base) || !Aligned(top) {
		panic(&Fault{Kind: FaultBadAddress, Addr: top})
	}
	return &Memory{base: base, buf: make([]byte, top-base)}
}

func (m *Memory) Base() uint64 { return m.base }
func (m *Memory) Top() uint64  { return m.base + uint64(len(m.buf)) }

// Bytes returns the n bytes of physical memory starting at pa.
func (m *Memory) Bytes(pa uint64, n int) []byte {
	if pa < m.base || n < 0 || pa-m.base+uint64(n) > uint64(len(m.buf)) {
		panic(&Fault{Kind: FaultBadAddress, Addr: pa})
	}
	off := pa - m.base
	return m.buf[off : off+uint64(n) : off+uint64(n)]
}

// Page returns the page of physical memory starting at pa.
func (m *Memory) Page(pa uint64) []byte {
	if !Aligned(pa) {
		panic(&Fault{Kind: FaultBadAddress, Addr: pa})
	}
	return m.Bytes(pa, PageSize)
}

// Uint64 loads the little-endian doubleword at pa.
func (m *Memory) Uint64(pa uint64) uint64 {
	return binary.LittleEndian.Uint64(m.Bytes(pa, 8))
}

// PutUint64 stores v as a little-endian doubleword at pa.
func (m *Memory) PutUint64(pa uint64, v uint64) {
	binary.LittleEndian.PutUint64(m.Bytes(pa, 8), v)
}

// Zero clears the page at pa.
func (m *Memory) Zero(pa uint64) {
	clear(m.Page(pa))
}

// CopyPage copies the page at src over the page at dst.
func (m *Memory) CopyPage(dst, src uint64) {
	copy(m.Page(dst), m.Page(src))
}
