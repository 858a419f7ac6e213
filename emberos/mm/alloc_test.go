package mm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, frames int) *Allocator {
	t.Helper()
	kernelEnd := KernelBase + 4*PageSize
	top := kernelEnd + uint64(frames+1)*PageSize
	mem := NewMemory(KernelBase, top)
	return New(mem, kernelEnd, top)
}

func TestNewReservesMetadataInFrontOfFrames(t *testing.T) {
	a := newTestAllocator(t, 16)
	kernelEnd := KernelBase + 4*PageSize

	require.Greater(t, a.Frames(), 0)
	assert.GreaterOrEqual(t, a.Start(), kernelEnd+uint64(a.Frames())*pageMetaSize)
	assert.LessOrEqual(t, a.End(), a.Memory().Top())
	assert.Equal(t, a.Frames(), a.FreeFrames())
	assert.True(t, Aligned(a.Start()))
}

func TestAllocReusesMostRecentlyFreed(t *testing.T) {
	a := newTestAllocator(t, 8)

	fa := a.Alloc()
	fb := a.Alloc()
	fc := a.Alloc()
	require.NotZero(t, fa)
	require.NotZero(t, fb)
	require.NotZero(t, fc)

	a.Free(fb)
	a.Free(fc)

	got := a.Alloc()
	assert.Equal(t, fc, got)
	assert.Equal(t, bytes.Repeat([]byte{junkAlloc}, PageSize), a.Memory().Page(got))
}

func TestFreeFillsJunk(t *testing.T) {
	a := newTestAllocator(t, 4)
	pa := a.Alloc()
	copy(a.Memory().Page(pa), "secret")
	a.Free(pa)
	assert.Equal(t, bytes.Repeat([]byte{junkFree}, PageSize), a.Memory().Page(pa))
}

func TestAllocNeverAliasesLiveFrames(t *testing.T) {
	a := newTestAllocator(t, 32)
	total := a.FreeFrames()

	seen := make(map[uint64]bool)
	for {
		pa := a.Alloc()
		if pa == 0 {
			break
		}
		require.False(t, seen[pa], "frame %#x handed out twice", pa)
		require.True(t, pa >= a.Start() && pa < a.End())
		seen[pa] = true
	}
	assert.Len(t, seen, total)
	assert.Zero(t, a.FreeFrames())
	assert.Zero(t, a.Alloc(), "exhausted allocator must return 0")

	for pa := range seen {
		a.Free(pa)
	}
	assert.Equal(t, total, a.FreeFrames())
}

func TestFreeRejectsFatally(t *testing.T) {
	a := newTestAllocator(t, 4)

	tests := []struct {
		name string
		pa   func() uint64
		kind FaultKind
	}{
		{name: "never allocated", pa: func() uint64 { return a.Start() }, kind: FaultDoubleFree},
		{name: "misaligned", pa: func() uint64 { return a.Start() + 1 }, kind: FaultBadFree},
		{name: "below region", pa: func() uint64 { return KernelBase }, kind: FaultBadFree},
		{name: "past region", pa: func() uint64 { return a.End() }, kind: FaultBadFree},
		{name: "already released", pa: func() uint64 {
			pa := a.Alloc()
			a.Free(pa)
			return pa
		}, kind: FaultDoubleFree},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pa := tc.pa()
			defer func() {
				r := recover()
				require.NotNil(t, r, "Free(%#x) did not panic", pa)
				f, ok := r.(*Fault)
				require.True(t, ok, "panic value %T", r)
				assert.Equal(t, tc.kind, f.Kind)
				assert.Equal(t, pa, f.Addr)
			}()
			a.Free(pa)
		})
	}
}

func TestAcquireRelease(t *testing.T) {
	a := newTestAllocator(t, 4)
	pa := a.Alloc()
	free := a.FreeFrames()

	require.NoError(t, a.Acquire(pa))
	ref, err := a.Ref(pa)
	require.NoError(t, err)
	assert.Equal(t, 2, ref)

	a.Free(pa)
	ref, _ = a.Ref(pa)
	assert.Equal(t, 1, ref)
	assert.Equal(t, free, a.FreeFrames(), "frame with references left must stay allocated")

	left, err := a.Release(pa)
	require.NoError(t, err)
	assert.Zero(t, left)
	assert.Equal(t, free+1, a.FreeFrames())

	assert.ErrorIs(t, a.Acquire(pa), ErrNotAllocated)
	assert.ErrorIs(t, a.Acquire(pa+1), ErrInvalid)
	_, err = a.Release(a.End())
	assert.ErrorIs(t, err, ErrInvalid)

	assert.Panics(t, func() { _, _ = a.Release(pa) })
}
