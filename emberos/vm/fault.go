package vm

import (
	"errors"
	"fmt"
)

var (
	ErrNoMemory    = errors.New("vm: out of physical frames")
	ErrRemap       = errors.New("vm: page already mapped")
	ErrNotMapped   = errors.New("vm: page not mapped")
	ErrMisaligned  = errors.New("vm: address not page aligned")
	ErrInvalidProt = errors.New("vm: invalid protection bits")
	ErrTooLarge    = errors.New("vm: length too large")
	ErrBadAddress  = errors.New("vm: bad user address")
)

// FaultKind classifies page-table invariant violations.
type FaultKind uint8

const (
	FaultNone FaultKind = iota
	FaultWalk
	FaultNotLeaf
	FaultLeaf
	FaultMisaligned
)

func (k FaultKind) String() string {
	switch k {
	case FaultNone:
		return "none"
	case FaultWalk:
		return "walk past MaxVA"
	case FaultNotLeaf:
		return "unmap of a non-leaf entry"
	case FaultLeaf:
		return "leaf left in a table being freed"
	case FaultMisaligned:
		return "misaligned unmap"
	default:
		return "unknown"
	}
}

// Fault is the panic value for page-table corruption.
type Fault struct {
	Kind FaultKind
	VA   uint64
}

func (f *Fault) Error() string {
	return fmt.Sprintf("vm: %s (va %#x)", f.Kind, f.VA)
}
