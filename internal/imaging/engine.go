// Package imaging streams the mapped ranges of a sparse image onto a block
// device. Unmapped regions are never read or written, which is the entire
// performance rationale of bmap-driven copying over a full linear copy.
package imaging

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"log/slog"

	"github.com/deploymenttheory/go-bmap-writer/internal/bmap"
)

// DefaultBufferSize is the intermediate copy buffer size.
const DefaultBufferSize = 1 << 20 // 1 MiB

// ProgressFunc receives a 0-100 percentage after each completed range.
// Values are monotonically non-decreasing within one copy.
type ProgressFunc func(percent int)

// Engine performs range-restricted copies described by a bmap.
type Engine struct {
	// BufferSize bounds individual read/write calls. Zero means
	// DefaultBufferSize.
	BufferSize int

	// Verify enables per-range checksum verification against the bmap's
	// chksum attributes. Only sha256 documents are verifiable; other
	// algorithms log a warning and copy unverified.
	Verify bool

	Log *slog.Logger
}

// Copy streams every mapped range of bm from src to dst in ascending
// order, then syncs dst if it supports syncing. Progress is pushed to sink
// once per completed range. Any I/O failure aborts the copy with an
// *IOError carrying the absolute byte offset.
func (e *Engine) Copy(ctx context.Context, bm *bmap.Bmap, src Source, dst io.WriteSeeker, sink ProgressFunc) error {
	bufSize := e.BufferSize
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	buf := make([]byte, bufSize)

	verify := e.Verify && bm.ChecksumType == "sha256"
	if e.Verify && !verify && e.Log != nil {
		e.Log.Warn("checksum algorithm not supported, copying unverified",
			"algorithm", bm.ChecksumType)
	}

	var copied uint64
	for _, r := range bm.Ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.copyRange(bm, r, src, dst, buf, verify); err != nil {
			return err
		}
		copied += r.BlockCount()
		sink(percent(copied, bm.MappedBlocksCount))
	}

	if s, ok := dst.(interface{ Sync() error }); ok {
		if err := s.Sync(); err != nil {
			return &IOError{Op: OpWrite, Offset: int64(copied * bm.BlockSize), Err: err}
		}
	}
	return nil
}

func (e *Engine) copyRange(bm *bmap.Bmap, r bmap.Range, src Source, dst io.WriteSeeker, buf []byte, verify bool) error {
	offset := int64(r.Start * bm.BlockSize)
	length := int64(r.BlockCount() * bm.BlockSize)

	// The image tail may not be block-aligned; clamp the final range to
	// the real image size.
	if bm.ImageSize > 0 && uint64(offset)+uint64(length) > bm.ImageSize {
		length = int64(bm.ImageSize) - offset
	}
	if length <= 0 {
		return nil
	}

	if err := src.SeekTo(offset); err != nil {
		return &IOError{Op: OpSeek, Offset: offset, Err: err}
	}
	if _, err := dst.Seek(offset, io.SeekStart); err != nil {
		return &IOError{Op: OpSeek, Offset: offset, Err: err}
	}

	var sum hash.Hash
	if verify && r.Checksum != "" {
		sum = sha256.New()
	}

	pos := offset
	for remaining := length; remaining > 0; {
		n := int64(len(buf))
		if n > remaining {
			n = remaining
		}
		// ReadFull retries short reads internally; a zero-byte read
		// before the range is satisfied surfaces as an EOF here and is
		// fatal, tagged with the offset already consumed.
		rn, err := io.ReadFull(src, buf[:n])
		if err != nil {
			return &IOError{Op: OpRead, Offset: pos + int64(rn), Err: err}
		}
		wn, err := dst.Write(buf[:rn])
		if err == nil && wn < rn {
			err = io.ErrShortWrite
		}
		if err != nil {
			return &IOError{Op: OpWrite, Offset: pos + int64(wn), Err: err}
		}
		if sum != nil {
			sum.Write(buf[:rn])
		}
		pos += int64(rn)
		remaining -= int64(rn)
	}

	if sum != nil {
		actual := hex.EncodeToString(sum.Sum(nil))
		if actual != r.Checksum {
			return &VerifyError{Start: r.Start, End: r.End, Expected: r.Checksum, Actual: actual}
		}
	}
	return nil
}

// percent computes floor(copied * 100 / mapped), clamped to 100 so a
// mapped-count understatement cannot overshoot.
func percent(copied, mapped uint64) int {
	if mapped == 0 {
		mapped = 1
	}
	p := int(copied * 100 / mapped)
	if p > 100 {
		p = 100
	}
	return p
}
