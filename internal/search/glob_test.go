package search

import (
	"errors"
	"reflect"
	"testing"
)

func TestGlobFilter(t *testing.T) {
	tests := []struct {
		glob string
		path string
		want bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "a/b/main.go", true},
		{"*.go", "main.gox", false},
		{"src/*.go", "src/a.go", true},
		{"src/*.go", "src/x/a.go", false},
		{"src/**/*.go", "src/a.go", true},
		{"src/**/*.go", "src/x/y/a.go", true},
		{"src/**/*.go", "lib/a.go", false},
		{"*.{ts,tsx}", "a.ts", true},
		{"*.{ts,tsx}", "b/c.tsx", true},
		{"*.{ts,tsx}", "a.js", false},
		{"{a,b}/{x,y}.txt", "b/y.txt", true},
		{"{a,b}/{x,y}.txt", "c/y.txt", false},
		{`dir\sub\*.md`, "dir/sub/r.md", true},
		{"[!a]*.txt", "b.txt", true},
		{"[!a]*.txt", "a.txt", false},
	}

	for _, tt := range tests {
		filter, err := NewGlobFilter(tt.glob)
		if err != nil {
			t.Fatalf("NewGlobFilter(%q): %v", tt.glob, err)
		}
		if got := filter.Match(tt.path); got != tt.want {
			t.Errorf("glob %q match %q = %v, want %v", tt.glob, tt.path, got, tt.want)
		}
	}
}

func TestGlobFilterEmptyMatchesAll(t *testing.T) {
	filter, err := NewGlobFilter("  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filter != nil || !filter.Match("any/path.bin") {
		t.Fatalf("empty glob should yield a nil filter that matches everything")
	}
}

func TestGlobFilterInvalid(t *testing.T) {
	for _, glob := range []string{"{abc", "abc}", "[", "a/[b"} {
		if _, err := NewGlobFilter(glob); !errors.Is(err, ErrInvalidGlob) {
			t.Errorf("NewGlobFilter(%q) error = %v, want ErrInvalidGlob", glob, err)
		}
	}
}

func TestExpandBraces(t *testing.T) {
	got, err := expandBraces("x.{a,{b,c}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"x.a", "x.b", "x.c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expandBraces = %v, want %v", got, want)
	}
}

func TestTypeFilter(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"ts", "app/x.TSX", true},
		{"typescript", "a.mts", true},
		{"ts", "a.js", false},
		{"python", "a.py", true},
		{"docker", "Dockerfile", true},
		{"docker", "Dockerfile.dev", false},
		{"make", "sub/Makefile", true},
		{"vue", "comp.vue", true},
		{".go", "main.go", true},
		{"go", "Makefile", false},
	}

	for _, tt := range tests {
		if got := NewTypeFilter(tt.name).Match(tt.path); got != tt.want {
			t.Errorf("type %q match %q = %v, want %v", tt.name, tt.path, got, tt.want)
		}
	}

	if NewTypeFilter(" ") != nil {
		t.Fatalf("blank type should yield nil filter")
	}
}
