//go:build linux

package imaging

import (
	"os"

	"golang.org/x/sys/unix"
)

// rawDevicePath is the identity on Linux: block nodes have no separate
// raw sibling.
func rawDevicePath(path string) string {
	return path
}

// bypassPageCache advises the kernel that pages written through fd will
// not be read back, so they can be dropped immediately.
func bypassPageCache(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_DONTNEED)
}
