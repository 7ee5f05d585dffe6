// Package mempool keeps size-classed sync.Pools of scratch slices so that the
// per-scene regression and classification passes do not reallocate full-scene
// buffers for every band and every escalation attempt.
package mempool

import (
	"sync"
)

const step = 1 << 16

// sizeClass rounds n up to the next multiple of step. Landsat subsets are tens of
// millions of pixels, so coarse classes keep the number of pools small.
func sizeClass(n int) int {
	if n <= step {
		return step
	}
	return ((n + step - 1) / step) * step
}

type slicePool[T any] struct {
	pools sync.Map // size class -> *sync.Pool
}

func (sp *slicePool[T]) pool(cls int) *sync.Pool {
	if p, ok := sp.pools.Load(cls); ok {
		return p.(*sync.Pool)
	}
	p, _ := sp.pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return p.(*sync.Pool)
}

func (sp *slicePool[T]) get(n int, zero bool) []T {
	cls := sizeClass(n)
	bp, ok := sp.pool(cls).Get().(*[]T)
	var buf []T
	if ok && cap(*bp) >= cls {
		buf = (*bp)[:n]
	} else {
		buf = make([]T, n, cls)
	}
	if zero {
		clear(buf)
	}
	return buf
}

func (sp *slicePool[T]) put(buf []T) {
	if buf == nil {
		return
	}
	// A buffer whose capacity is not a class boundary came from elsewhere; drop it.
	if c := cap(buf); c != sizeClass(c) {
		return
	}
	full := buf[:cap(buf)]
	sp.pool(cap(buf)).Put(&full)
}

var (
	float64s slicePool[float64]
	bools    slicePool[bool]
	int32s   slicePool[int32]
)

// GetFloat64 returns a float64 buffer of length n with unspecified contents.
// Return it with PutFloat64.
func GetFloat64(n int) []float64 { return float64s.get(n, false) }

// PutFloat64 returns a buffer obtained from GetFloat64. Nil is ignored.
func PutFloat64(buf []float64) { float64s.put(buf) }

// GetBool returns a zeroed bool buffer of length n. Return it with PutBool.
func GetBool(n int) []bool { return bools.get(n, true) }

// PutBool returns a buffer obtained from GetBool. Nil is ignored.
func PutBool(buf []bool) { bools.put(buf) }

// GetInt32 returns an int32 index buffer of length n with unspecified contents.
func GetInt32(n int) []int32 { return int32s.get(n, false) }

// PutInt32 returns a buffer obtained from GetInt32. Nil is ignored.
func PutInt32(buf []int32) { int32s.put(buf) }
