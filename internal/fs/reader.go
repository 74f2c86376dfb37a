package fs

import (
	"errors"
	"io"
	"os"
)

// MaxMappedBytes bounds how much of a single file is ever searched.
//
// Files up to this size are memory-mapped where the platform allows it. Larger
// files are read into the reader's scratch buffer, and only their first
// MaxMappedBytes bytes are searched: matches past that offset are silently
// missed. Memory per reader stays bounded regardless of file size.
const MaxMappedBytes = 4 << 20

// Reader turns paths into byte views using the cheapest strategy for their size.
//
// A Reader is not safe for concurrent use: views returned by the buffered path
// alias the reader's scratch buffer and are invalidated by the next Read. Give
// every search job its own Reader.
type Reader struct {
	limit   int
	mapping bool
	scratch []byte
}

// NewReader returns a reader using the platform's mapping support.
func NewReader() *Reader {
	return newReader(MaxMappedBytes, mmapSupported)
}

func newReader(limit int, mapping bool) *Reader {
	if limit <= 0 {
		limit = MaxMappedBytes
	}
	return &Reader{limit: limit, mapping: mapping}
}

// View is the content of one file. Release must be called once the bytes are
// no longer needed; it is safe to call more than once.
type View struct {
	data    []byte
	mapped  bool
	release func()
}

// NewView wraps bytes that are already in memory.
func NewView(data []byte) *View {
	return &View{data: data}
}

// Bytes returns the viewed content. The slice is invalid after Release.
func (v *View) Bytes() []byte {
	if v == nil {
		return nil
	}
	return v.data
}

// Mapped reports whether the view is backed by a memory mapping.
func (v *View) Mapped() bool {
	return v != nil && v.mapped
}

// Release drops the mapping, if any.
func (v *View) Release() {
	if v == nil {
		return
	}
	release := v.release
	v.release = nil
	v.data = nil
	if release != nil {
		release()
	}
}

// Read returns a view of path. ok is false when the file cannot be stat'd,
// opened or read; callers walking a tree treat that as "skip this file", not as
// an error.
func (r *Reader) Read(path string) (view *View, ok bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, false
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, false
	}
	defer func() {
		_ = f.Close()
	}()

	size := info.Size()
	if r.mapping && size <= int64(r.limit) {
		if mapped, err := mapFile(f, int(size)); err == nil {
			return mapped, true
		}
	}

	want := r.limit
	if size < int64(want) {
		want = int(size)
	}
	buf := r.buffer()
	n, err := f.ReadAt(buf[:want], 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false
	}
	return &View{data: buf[:n]}, true
}

func (r *Reader) buffer() []byte {
	if len(r.scratch) < r.limit {
		r.scratch = make([]byte, r.limit)
	}
	return r.scratch
}
