package imaging

import (
	"fmt"
	"io"
	"os"
)

// Target is the exclusively-owned write handle for one copy operation. The
// copy engine seeks and writes through it and syncs it before reporting
// success.
type Target struct {
	f *os.File

	// Path is the node actually opened, after raw-node substitution.
	Path string
}

// OpenTarget opens the block device at path for exclusive writing. Where
// the platform offers an unbuffered "raw" node for the same disk it is
// preferred, and the handle is flagged to bypass the page cache: image
// data is written once and never read back, so caching it only evicts
// useful pages.
func OpenTarget(path string) (*Target, error) {
	raw := rawDevicePath(path)
	f, err := os.OpenFile(raw, os.O_WRONLY|os.O_EXCL, 0)
	if err != nil {
		if raw == path {
			return nil, fmt.Errorf("%w: %s: %v", ErrTargetOpen, path, err)
		}
		// Raw node unavailable, fall back to the buffered node.
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_EXCL, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTargetOpen, path, err)
		}
		raw = path
	}
	// Best effort: when the request fails the write path still works,
	// just through the cache.
	_ = bypassPageCache(f)
	return &Target{f: f, Path: raw}, nil
}

func (t *Target) Write(p []byte) (int, error) {
	return t.f.Write(p)
}

func (t *Target) Seek(off int64, whence int) (int64, error) {
	return t.f.Seek(off, whence)
}

// Sync flushes written data down to the device.
func (t *Target) Sync() error {
	return t.f.Sync()
}

func (t *Target) Close() error {
	return t.f.Close()
}

var _ io.WriteSeeker = (*Target)(nil)
