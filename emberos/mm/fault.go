package mm

import "fmt"

// FaultKind classifies allocator corruption. Faults are never returned as
// errors: they are raised with panic and halt the whole kernel.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultBadFree
	FaultDoubleFree
	FaultBadAddress
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultBadFree:
		return "free of an address outside the frame region"
	case FaultDoubleFree:
		return "free of a frame with no references"
	case FaultBadAddress:
		return "physical address out of range"
	default:
		return "unknown"
	}
}

// Fault is the panic value for frame accounting corruption.
type Fault struct {
	Kind FaultKind
	Addr uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("mm: %s (pa %#x)", f.Kind, f.Addr)
}
