package testutil

import (
	"os"
	"sort"
	"sync"

	"github.com/MeKo-Tech/marisma/internal/raster"
)

// MemStore is a raster.Reader and raster.Writer backed by maps. Reads and
// writes copy, so callers never share buffers with the store.
type MemStore struct {
	mu    sync.RWMutex
	bands map[string]*raster.Band
	masks map[string]*raster.Mask
	reads map[string]int
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		bands: make(map[string]*raster.Band),
		masks: make(map[string]*raster.Mask),
		reads: make(map[string]int),
	}
}

// Put stores b under path.
func (m *MemStore) Put(path string, b *raster.Band) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bands[path] = b.Clone()
}

// ReadBand implements raster.Reader.
func (m *MemStore) ReadBand(path string) (*raster.Band, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bands[path]
	if !ok {
		return nil, &raster.IOError{Op: "open", Path: path, Err: os.ErrNotExist}
	}
	m.reads[path]++
	return b.Clone(), nil
}

// WriteBand implements raster.Writer.
func (m *MemStore) WriteBand(path string, b *raster.Band, _ raster.DataType) error {
	m.Put(path, b)
	return nil
}

// WriteMask implements raster.Writer.
func (m *MemStore) WriteMask(path string, mask *raster.Mask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := &raster.Mask{Grid: mask.Grid, Data: make([]int16, len(mask.Data))}
	copy(cp.Data, mask.Data)
	m.masks[path] = cp
	return nil
}

// Remove implements raster.Writer.
func (m *MemStore) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bands, path)
	delete(m.masks, path)
	return nil
}

// Band returns the band stored under path, or nil.
func (m *MemStore) Band(path string) *raster.Band {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bands[path]
}

// Mask returns the mask stored under path, or nil.
func (m *MemStore) Mask(path string) *raster.Mask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.masks[path]
}

// Reads is how often path has been read.
func (m *MemStore) Reads(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reads[path]
}

// Paths lists every stored band and mask path in order.
func (m *MemStore) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.bands)+len(m.masks))
	for p := range m.bands {
		out = append(out, p)
	}
	for p := range m.masks {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
