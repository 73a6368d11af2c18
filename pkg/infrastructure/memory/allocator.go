// Package memory provides the Arrow allocator used for columnar result export.
package memory

import (
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TrackedAllocator wraps a memory.Allocator and tracks live and peak bytes
// held by Arrow builders and records during export.
type TrackedAllocator struct {
	underlying  memory.Allocator
	bytesUsed   atomic.Int64
	peakBytes   atomic.Int64
	allocations atomic.Int64
}

// Usage is a point-in-time view of a TrackedAllocator.
type Usage struct {
	BytesUsed   int64
	PeakBytes   int64
	Allocations int64
}

// NewTrackedAllocator creates a TrackedAllocator. A nil underlying
// allocator selects the Go allocator.
func NewTrackedAllocator(underlying memory.Allocator) *TrackedAllocator {
	if underlying == nil {
		underlying = memory.NewGoAllocator()
	}
	return &TrackedAllocator{underlying: underlying}
}

// Allocate implements memory.Allocator.
func (a *TrackedAllocator) Allocate(size int) []byte {
	a.allocations.Add(1)
	a.grow(int64(size))
	return a.underlying.Allocate(size)
}

// Reallocate implements memory.Allocator.
func (a *TrackedAllocator) Reallocate(size int, b []byte) []byte {
	a.grow(int64(size - len(b)))
	return a.underlying.Reallocate(size, b)
}

// Free implements memory.Allocator.
func (a *TrackedAllocator) Free(b []byte) {
	a.bytesUsed.Add(-int64(len(b)))
	a.underlying.Free(b)
}

func (a *TrackedAllocator) grow(delta int64) {
	used := a.bytesUsed.Add(delta)
	for {
		peak := a.peakBytes.Load()
		if used <= peak || a.peakBytes.CompareAndSwap(peak, used) {
			return
		}
	}
}

// BytesUsed returns the current number of bytes allocated.
func (a *TrackedAllocator) BytesUsed() int64 {
	return a.bytesUsed.Load()
}

// Usage returns live bytes, the high-water mark and the allocation count.
func (a *TrackedAllocator) Usage() Usage {
	return Usage{
		BytesUsed:   a.bytesUsed.Load(),
		PeakBytes:   a.peakBytes.Load(),
		Allocations: a.allocations.Load(),
	}
}
