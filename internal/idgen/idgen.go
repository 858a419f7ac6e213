// Package idgen generates opaque identifiers such as the boot id.
package idgen

import "github.com/google/uuid"

// NewFunc is replaced in tests to make identifiers deterministic.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }
