//go:build !darwin && !linux

package imaging

import "os"

func rawDevicePath(path string) string {
	return path
}

func bypassPageCache(_ *os.File) error {
	return nil
}
