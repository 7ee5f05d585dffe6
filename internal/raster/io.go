package raster

import "fmt"

// DataType selects the on-disk sample type of a written band.
type DataType int

const (
	Float32 DataType = iota
	Int16
)

// Reader loads a single band raster from storage.
type Reader interface {
	ReadBand(path string) (*Band, error)
}

// Writer persists bands and masks. Remove deletes a product written earlier;
// a missing path is not an error.
type Writer interface {
	WriteBand(path string, b *Band, dt DataType) error
	WriteMask(path string, m *Mask) error
	Remove(path string) error
}

// IOError describes a failed raster read or write.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("raster %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
