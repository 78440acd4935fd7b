package imaging

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceOpen indicates the image source could not be opened.
	ErrSourceOpen = errors.New("imaging: cannot open source")

	// ErrTargetOpen indicates the target device could not be opened.
	ErrTargetOpen = errors.New("imaging: cannot open target")
)

// Op identifies which I/O operation failed.
type Op string

const (
	OpSeek  Op = "seek"
	OpRead  Op = "read"
	OpWrite Op = "write"
)

// IOError is a fatal I/O failure at a specific absolute byte offset. The
// offset is the position already consumed when the failure surfaced, kept
// for diagnostics.
type IOError struct {
	Op     Op
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("imaging: %s failed at offset %d", e.Op, e.Offset)
	}
	return fmt.Sprintf("imaging: %s failed at offset %d: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// VerifyError reports a per-range checksum mismatch.
type VerifyError struct {
	Start    uint64
	End      uint64
	Expected string
	Actual   string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("imaging: checksum mismatch for blocks %d-%d: have %s, want %s",
		e.Start, e.End, e.Actual, e.Expected)
}
