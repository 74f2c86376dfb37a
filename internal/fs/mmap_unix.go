//go:build unix

package fs

import (
	"os"

	"golang.org/x/sys/unix"
)

const mmapSupported = true

func mapFile(f *os.File, size int) (*View, error) {
	if size == 0 {
		return &View{data: []byte{}}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &View{
		data:   data,
		mapped: true,
		release: func() {
			_ = unix.Munmap(data)
		},
	}, nil
}
