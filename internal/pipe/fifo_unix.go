//go:build unix

package pipe

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Create makes the FIFO at path. A leftover entry from an earlier session
// is removed first, so creation is idempotent: two sessions in a row reuse
// the same path without leaking the first session's FIFO.
func Create(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pipe: remove stale fifo: %w", err)
	}
	if err := unix.Mkfifo(path, 0o644); err != nil {
		return fmt.Errorf("pipe: mkfifo %s: %w", path, err)
	}
	return nil
}

// Remove deletes the FIFO entry. Removing an already-removed FIFO is not
// an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pipe: remove fifo: %w", err)
	}
	return nil
}

// Exists reports whether path currently names a FIFO.
func Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode()&os.ModeNamedPipe != 0
}
