package vm

import "ember/emberos/mm"

const (
	PageSize = mm.PageSize

	// MaxVA is one beyond the highest Sv39 virtual address. It is one bit
	// less than the maximum allowed by Sv39 to avoid sign-extending the top bit.
	MaxVA uint64 = 1 << (9 + 9 + 9 + 12 - 1)

	// Trampoline is mapped at the top of every address space, shared with the kernel.
	Trampoline = MaxVA - PageSize
	// Trapframe sits just below the trampoline, one private page per process.
	Trapframe = Trampoline - PageSize
)

// Page table entry bits.
const (
	PteV uint64 = 1 << 0
	PteR uint64 = 1 << 1
	PteW uint64 = 1 << 2
	PteX uint64 = 1 << 3
	PteU uint64 = 1 << 4
	PteG uint64 = 1 << 5
	PteA uint64 = 1 << 6
	PteD uint64 = 1 << 7

	pteFlags = 0x3FF
	pteLeaf  = PteR | PteW | PteX
)

const entriesPerTable = 512

func px(level int, va uint64) uint64 { return (va >> (mm.PageShift + 9*uint64(level))) & 0x1FF }
func pte2pa(pte uint64) uint64       { return (pte >> 10) << 12 }
func pa2pte(pa uint64) uint64        { return (pa >> 12) << 10 }

// MakeSatp returns the satp value selecting Sv39 with root page table pa.
func MakeSatp(pa uint64) uint64 { return 8<<60 | pa>>12 }
