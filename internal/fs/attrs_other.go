//go:build !windows

package fs

// IsHidden reports whether name is a dot-file. fullPath is unused outside Windows.
func IsHidden(_ string, name string) bool {
	return len(name) > 0 && name[0] == '.'
}

// IsProtected is always false outside Windows.
func IsProtected(_, _ string) bool {
	return false
}
