//go:build !unix

package fs

import (
	"errors"
	"os"
)

// Mapping is not used on Windows; every read goes through the scratch buffer.
const mmapSupported = false

var errMappingUnsupported = errors.New("memory mapping unsupported on this platform")

func mapFile(_ *os.File, _ int) (*View, error) {
	return nil, errMappingUnsupported
}
