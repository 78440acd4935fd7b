// Package bmap implements the block-map ("bmap") side-file format: an XML
// document describing which blocks of a sparse disk image actually contain
// data. A copy driven by a bmap skips the unmapped regions entirely.
package bmap

const (
	// DefaultBlockSize is assumed when the document carries no usable
	// BlockSize element.
	DefaultBlockSize = 4096

	// DefaultChecksumType is assumed when the document carries no usable
	// ChecksumType element.
	DefaultChecksumType = "sha256"
)

// Range is one run of mapped blocks, inclusive on both ends.
type Range struct {
	Start uint64
	End   uint64

	// Checksum is the verbatim content of the range's chksum attribute,
	// empty when absent. It is not validated at parse time.
	Checksum string
}

// BlockCount returns the number of blocks covered by the range.
func (r Range) BlockCount() uint64 {
	return r.End - r.Start + 1
}

// Bmap is the immutable in-memory form of a parsed bmap document. It is
// built once per copy operation and never modified afterwards.
type Bmap struct {
	ImageSize         uint64
	BlockSize         uint64
	BlocksCount       uint64
	MappedBlocksCount uint64
	ChecksumType      string

	// Ranges is sorted ascending by Start. The document's own ordering is
	// not trusted.
	Ranges []Range
}

// MappedBytes returns the total number of bytes the ranges cover.
func (b *Bmap) MappedBytes() uint64 {
	var blocks uint64
	for _, r := range b.Ranges {
		blocks += r.BlockCount()
	}
	return blocks * b.BlockSize
}
