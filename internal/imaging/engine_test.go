package imaging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bmap-writer/internal/bmap"
)

// memDevice is an in-memory stand-in for a block device.
type memDevice struct {
	buf    []byte
	pos    int64
	synced bool

	failWriteAfter int // bytes accepted before writes start failing, -1 = never
	accepted       int
}

func newMemDevice(size int) *memDevice {
	d := &memDevice{buf: make([]byte, size), failWriteAfter: -1}
	for i := range d.buf {
		d.buf[i] = 0xEE // sentinel, proves unmapped regions stay untouched
	}
	return d
}

func (d *memDevice) Seek(off int64, whence int) (int64, error) {
	// The engine only ever seeks absolutely.
	d.pos = off
	return off, nil
}

func (d *memDevice) Write(p []byte) (int, error) {
	if d.failWriteAfter >= 0 && d.accepted+len(p) > d.failWriteAfter {
		n := d.failWriteAfter - d.accepted
		if n < 0 {
			n = 0
		}
		copy(d.buf[d.pos:], p[:n])
		d.pos += int64(n)
		d.accepted += n
		return n, errors.New("device write fault")
	}
	n := copy(d.buf[d.pos:], p)
	d.pos += int64(n)
	d.accepted += n
	return n, nil
}

func (d *memDevice) Sync() error {
	d.synced = true
	return nil
}

func writeImage(t *testing.T, data []byte, compress bool) string {
	t.Helper()
	name := "image.img"
	if compress {
		name = "image.img.gz"
	}
	path := filepath.Join(t.TempDir(), name)
	if compress {
		var b bytes.Buffer
		zw := gzip.NewWriter(&b)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = b.Bytes()
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// patternImage builds a 4-block image where every block is filled with its
// own block number.
func patternImage(blocks int, blockSize uint64) []byte {
	data := make([]byte, uint64(blocks)*blockSize)
	for b := 0; b < blocks; b++ {
		for i := uint64(0); i < blockSize; i++ {
			data[uint64(b)*blockSize+i] = byte(b + 1)
		}
	}
	return data
}

func holeModel() *bmap.Bmap {
	return &bmap.Bmap{
		ImageSize:         4 * 4096,
		BlockSize:         4096,
		BlocksCount:       4,
		MappedBlocksCount: 3,
		Ranges: []bmap.Range{
			{Start: 0, End: 0},
			{Start: 2, End: 3},
		},
	}
}

func TestCopySkipsUnmappedRegions(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		name := "plain"
		if compressed {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			data := patternImage(4, 4096)
			src, err := OpenSource(writeImage(t, data, compressed))
			require.NoError(t, err)
			defer src.Close()

			dst := newMemDevice(len(data))
			var reported []int
			e := &Engine{}
			err = e.Copy(context.Background(), holeModel(), src, dst, func(p int) {
				reported = append(reported, p)
			})
			require.NoError(t, err)

			assert.Equal(t, data[0:4096], dst.buf[0:4096], "block 0 must be written")
			assert.Equal(t, data[8192:16384], dst.buf[8192:16384], "blocks 2-3 must be written")
			for i := 4096; i < 8192; i++ {
				require.Equal(t, byte(0xEE), dst.buf[i], "unmapped block 1 must never be touched")
			}
			assert.True(t, dst.synced, "target must be synced on success")
			assert.Equal(t, []int{33, 100}, reported)
		})
	}
}

func TestCopyProgressMonotonic(t *testing.T) {
	data := patternImage(4, 4096)
	src, err := OpenSource(writeImage(t, data, false))
	require.NoError(t, err)
	defer src.Close()

	var reported []int
	e := &Engine{}
	err = e.Copy(context.Background(), holeModel(), src, newMemDevice(len(data)), func(p int) {
		reported = append(reported, p)
	})
	require.NoError(t, err)

	require.NotEmpty(t, reported)
	for i := 1; i < len(reported); i++ {
		assert.GreaterOrEqual(t, reported[i], reported[i-1])
	}
	assert.Equal(t, 100, reported[len(reported)-1])
	for _, p := range reported[:len(reported)-1] {
		assert.Less(t, p, 100, "100 must only be reported after the final range")
	}
}

func TestCopyShortSourceTagsOffset(t *testing.T) {
	// Image ends inside the final range: 3 blocks present, range needs 4.
	data := patternImage(3, 4096)
	src, err := OpenSource(writeImage(t, data, false))
	require.NoError(t, err)
	defer src.Close()

	model := holeModel() // wants blocks 0, 2, 3; block 3 is missing
	model.ImageSize = 4 * 4096

	e := &Engine{}
	err = e.Copy(context.Background(), model, src, newMemDevice(4*4096), func(int) {})
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, OpRead, ioErr.Op)
	assert.Equal(t, int64(3*4096), ioErr.Offset, "offset must equal bytes already consumed")
}

func TestCopyWriteFailureTagsOffset(t *testing.T) {
	data := patternImage(4, 4096)
	src, err := OpenSource(writeImage(t, data, false))
	require.NoError(t, err)
	defer src.Close()

	dst := newMemDevice(len(data))
	dst.failWriteAfter = 4096 + 1024 // fails 1 KiB into the second mapped range

	e := &Engine{}
	err = e.Copy(context.Background(), holeModel(), src, dst, func(int) {})
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, OpWrite, ioErr.Op)
	assert.Equal(t, int64(8192+1024), ioErr.Offset)
}

func TestCopyClampsFinalRangeToImageSize(t *testing.T) {
	// Image is half a block short of 4 full blocks.
	full := patternImage(4, 4096)
	data := full[:len(full)-2048]
	src, err := OpenSource(writeImage(t, data, false))
	require.NoError(t, err)
	defer src.Close()

	model := holeModel()
	model.ImageSize = uint64(len(data))

	dst := newMemDevice(4 * 4096)
	e := &Engine{}
	require.NoError(t, e.Copy(context.Background(), model, src, dst, func(int) {}))
	assert.Equal(t, data[8192:], dst.buf[8192:int64(len(data))])
	assert.Equal(t, byte(0xEE), dst.buf[len(full)-1], "bytes past the image size stay untouched")
}

func TestCopyVerify(t *testing.T) {
	data := patternImage(4, 4096)

	sum := func(b []byte) string {
		h := sha256.Sum256(b)
		return hex.EncodeToString(h[:])
	}

	model := holeModel()
	model.ChecksumType = "sha256"
	model.Ranges[0].Checksum = sum(data[0:4096])
	model.Ranges[1].Checksum = sum(data[8192:16384])

	t.Run("matching checksums pass", func(t *testing.T) {
		src, err := OpenSource(writeImage(t, data, false))
		require.NoError(t, err)
		defer src.Close()

		e := &Engine{Verify: true}
		require.NoError(t, e.Copy(context.Background(), model, src, newMemDevice(len(data)), func(int) {}))
	})

	t.Run("mismatch fails the range", func(t *testing.T) {
		corrupted := append([]byte(nil), data...)
		corrupted[9000] ^= 0xFF
		src, err := OpenSource(writeImage(t, corrupted, false))
		require.NoError(t, err)
		defer src.Close()

		e := &Engine{Verify: true}
		err = e.Copy(context.Background(), model, src, newMemDevice(len(data)), func(int) {})
		var vErr *VerifyError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, uint64(2), vErr.Start)
		assert.Equal(t, uint64(3), vErr.End)
	})
}

func TestCopyHonorsCancellation(t *testing.T) {
	data := patternImage(4, 4096)
	src, err := OpenSource(writeImage(t, data, false))
	require.NoError(t, err)
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := &Engine{}
	err = e.Copy(ctx, holeModel(), src, newMemDevice(len(data)), func(int) {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestOpenSourceMissingFile(t *testing.T) {
	_, err := OpenSource(filepath.Join(t.TempDir(), "nope.img"))
	require.ErrorIs(t, err, ErrSourceOpen)
}

func TestGzipSourceBackwardSeek(t *testing.T) {
	data := patternImage(4, 4096)
	src, err := OpenSource(writeImage(t, data, true))
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.SeekTo(8192))
	buf := make([]byte, 16)
	_, err = io.ReadFull(src, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(3), buf[0])

	// Rewind; the layer restarts the stream transparently.
	require.NoError(t, src.SeekTo(0))
	_, err = io.ReadFull(src, buf)
	require.NoError(t, err)
	assert.Equal(t, byte(1), buf[0])
}
