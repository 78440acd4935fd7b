//go:build darwin

package imaging

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// rawDevicePath maps a buffered /dev/diskN node to its unbuffered
// /dev/rdiskN sibling. Writes to the raw node skip the buffer cache and
// are dramatically faster for large sequential transfers.
func rawDevicePath(path string) string {
	if strings.HasPrefix(path, "/dev/disk") {
		return strings.Replace(path, "/dev/disk", "/dev/rdisk", 1)
	}
	return path
}

// bypassPageCache asks the kernel not to cache data moving through fd.
func bypassPageCache(f *os.File) error {
	_, err := unix.FcntlInt(f.Fd(), unix.F_NOCACHE, 1)
	return err
}
