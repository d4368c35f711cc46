package mmap

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/hupe1980/histore/internal/fs"
)

// Mapping is a read-only view of a blob file. Files of the local file system
// are memory-mapped; files of other file systems, e.g. a fault-injecting
// wrapper, are read into memory. Either way the contents are held until Close.
type Mapping struct {
	data   []byte
	unmap  func([]byte) error // nil when data was read
	closed atomic.Bool
}

// Open opens name through fsys, or the local file system if nil, and maps
// it read-only with the given read-ahead hint.
func Open(fsys fs.FileSystem, name string, access AccessPattern) (*Mapping, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := fi.Size()
	if size < 0 || int64(int(size)) != size {
		return nil, ErrInvalidSize
	}
	if size == 0 {
		return &Mapping{}, nil
	}

	if osf, ok := f.(*os.File); ok {
		data, unmap, err := osMap(osf, int(size))
		if err == nil {
			// the hint is advisory
			_ = osAdvise(data, access)
			return &Mapping{data: data, unmap: unmap}, nil
		}
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, size), data); err != nil {
		return nil, err
	}
	return &Mapping{data: data}, nil
}

// Mapped reports whether the contents are memory-mapped.
func (m *Mapping) Mapped() bool { return m.unmap != nil }

// Close releases the contents. It is idempotent.
func (m *Mapping) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	data := m.data
	m.data = nil
	if m.unmap != nil && data != nil {
		return m.unmap(data)
	}
	return nil
}

// Bytes returns the contents. The slice must not be retained past Close.
func (m *Mapping) Bytes() ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	return m.data, nil
}

// Size returns the size of the contents in bytes.
func (m *Mapping) Size() int64 { return int64(len(m.data)) }

// ReadAt implements io.ReaderAt. Reads at or past the end return io.EOF.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	if m.closed.Load() {
		return 0, ErrClosed
	}
	if off < 0 {
		return 0, ErrInvalidOffset
	}
	if len(p) == 0 {
		return 0, nil
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
