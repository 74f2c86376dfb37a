package fs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestReaderMapsSmallFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "small.txt")
	writeFile(t, path, []byte("hello\nworld\n"))

	r := NewReader()
	view, ok := r.Read(path)
	if !ok {
		t.Fatalf("expected small file to be readable")
	}
	defer view.Release()

	if string(view.Bytes()) != "hello\nworld\n" {
		t.Fatalf("unexpected content %q", view.Bytes())
	}
	if mmapSupported && !view.Mapped() {
		t.Fatalf("expected small file to be memory-mapped on this platform")
	}
}

func TestReaderBufferedFallbackReusesScratch(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.txt")
	second := filepath.Join(dir, "b.txt")
	writeFile(t, first, []byte("first file"))
	writeFile(t, second, []byte("second"))

	r := newReader(MaxMappedBytes, false)
	view, ok := r.Read(first)
	if !ok || string(view.Bytes()) != "first file" {
		t.Fatalf("unexpected first read: ok=%v data=%q", ok, view.Bytes())
	}
	if view.Mapped() {
		t.Fatalf("buffered read must not report a mapping")
	}
	scratch := &r.scratch[0]
	view.Release()

	view, ok = r.Read(second)
	if !ok || string(view.Bytes()) != "second" {
		t.Fatalf("unexpected second read: ok=%v data=%q", ok, view.Bytes())
	}
	if &r.scratch[0] != scratch {
		t.Fatalf("expected the scratch buffer to be reused between reads")
	}
	view.Release()
}

func TestReaderOnlyReadsHeadOfLargeFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "large.log")
	data := bytes.Repeat([]byte("x"), MaxMappedBytes+4096)
	copy(data[10:], "EARLY")
	copy(data[MaxMappedBytes+100:], "LATE")
	writeFile(t, path, data)

	r := NewReader()
	view, ok := r.Read(path)
	if !ok {
		t.Fatalf("expected large file to be readable")
	}
	defer view.Release()

	if len(view.Bytes()) != MaxMappedBytes {
		t.Fatalf("expected %d bytes, got %d", MaxMappedBytes, len(view.Bytes()))
	}
	if !bytes.Contains(view.Bytes(), []byte("EARLY")) {
		t.Fatalf("expected content before the threshold to be present")
	}
	if bytes.Contains(view.Bytes(), []byte("LATE")) {
		t.Fatalf("content past the threshold must not be read")
	}
}

func TestReaderMissingFileIsSkipped(t *testing.T) {
	r := NewReader()
	if view, ok := r.Read(filepath.Join(t.TempDir(), "missing.txt")); ok || view != nil {
		t.Fatalf("expected missing file to be reported as unreadable")
	}
}

func TestReaderDirectoryIsSkipped(t *testing.T) {
	r := NewReader()
	if _, ok := r.Read(t.TempDir()); ok {
		t.Fatalf("expected directory to be reported as unreadable")
	}
}

func TestReaderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty")
	writeFile(t, path, nil)

	view, ok := NewReader().Read(path)
	if !ok {
		t.Fatalf("expected empty file to be readable")
	}
	if len(view.Bytes()) != 0 {
		t.Fatalf("expected no content, got %q", view.Bytes())
	}
	view.Release()
	view.Release()
}
