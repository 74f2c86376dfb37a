//go:build windows

package fs

import (
	"os"

	"golang.org/x/sys/windows"
)

// IsHidden reports whether the entry carries the hidden attribute. Entries whose
// attributes cannot be read fall back to the dot-file convention.
func IsHidden(fullPath, name string) bool {
	attrs, err := attributes(fullPath, name)
	if err != nil {
		return len(name) > 0 && name[0] == '.'
	}
	return attrs&windows.FILE_ATTRIBUTE_HIDDEN != 0
}

// IsProtected reports system reparse points (compatibility junctions such as
// "Application Data") that are never walked, even when hidden files are included.
func IsProtected(fullPath, name string) bool {
	if fullPath == "" && name == "" {
		return false
	}
	attrs, err := attributes(fullPath, name)
	if err != nil {
		return false
	}
	const mask = windows.FILE_ATTRIBUTE_SYSTEM | windows.FILE_ATTRIBUTE_REPARSE_POINT
	return attrs&mask == mask
}

func attributes(fullPath, name string) (uint32, error) {
	candidates := make([]string, 0, 2)
	if fullPath != "" {
		candidates = append(candidates, fullPath)
	}
	if name != "" && name != fullPath {
		candidates = append(candidates, name)
	}
	if len(candidates) == 0 {
		return 0, os.ErrInvalid
	}

	var lastErr error
	for _, candidate := range candidates {
		ptr, err := windows.UTF16PtrFromString(candidate)
		if err != nil {
			lastErr = err
			continue
		}
		attrs, err := windows.GetFileAttributes(ptr)
		if err == nil {
			return attrs, nil
		}
		lastErr = err
		if !os.IsNotExist(err) {
			break
		}
	}
	return 0, lastErr
}
