package imaging

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// Source is a readable image positioned by absolute byte offsets identical
// to the offsets implied by the bmap's block numbering. Plain and
// gzip-compressed images satisfy it identically, so callers never sniff
// formats themselves.
type Source interface {
	io.ReadCloser

	// SeekTo positions the next Read at the absolute offset off.
	SeekTo(off int64) error
}

// OpenSource opens the image at path behind the transparent-decompression
// layer. Gzip sources are recognized by their two-byte magic.
func OpenSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceOpen, path, err)
	}

	br := bufio.NewReaderSize(f, 1<<16)
	magic, err := br.Peek(2)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceOpen, path, err)
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: %s: %v", ErrSourceOpen, path, err)
		}
		return &gzipSource{f: f, br: br, zr: zr}, nil
	}
	return &plainSource{f: f, br: br}, nil
}

// plainSource reads an uncompressed image with real seeks.
type plainSource struct {
	f  *os.File
	br *bufio.Reader
}

func (s *plainSource) Read(p []byte) (int, error) {
	return s.br.Read(p)
}

func (s *plainSource) SeekTo(off int64) error {
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return err
	}
	s.br.Reset(s.f)
	return nil
}

func (s *plainSource) Close() error {
	return s.f.Close()
}

// gzipSource reads a gzip-compressed image. The decompressed stream cannot
// seek, so forward seeks discard bytes and backward seeks restart the
// stream from the beginning. The copy engine visits ranges in ascending
// order, so in practice every seek is forward.
type gzipSource struct {
	f   *os.File
	br  *bufio.Reader
	zr  *gzip.Reader
	pos int64
}

func (s *gzipSource) Read(p []byte) (int, error) {
	n, err := s.zr.Read(p)
	s.pos += int64(n)
	return n, err
}

func (s *gzipSource) SeekTo(off int64) error {
	if off < s.pos {
		if _, err := s.f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		s.br.Reset(s.f)
		if err := s.zr.Reset(s.br); err != nil {
			return err
		}
		s.pos = 0
	}
	if off == s.pos {
		return nil
	}
	n, err := io.CopyN(io.Discard, s.zr, off-s.pos)
	s.pos += n
	return err
}

func (s *gzipSource) Close() error {
	s.zr.Close()
	return s.f.Close()
}
