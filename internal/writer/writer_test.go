//go:build unix

package writer

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-bmap-writer/internal/pipe"
)

const testBmap = `<bmap>
	<ImageSize>16384</ImageSize>
	<BlockSize>4096</BlockSize>
	<BlocksCount>4</BlocksCount>
	<MappedBlocksCount>3</MappedBlocksCount>
	<BlockMap>
		<Range>0</Range>
		<Range>2-3</Range>
	</BlockMap>
</bmap>`

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunFullSession(t *testing.T) {
	dir := t.TempDir()

	image := make([]byte, 16384)
	for i := range image {
		image[i] = byte(i / 4096 * 7)
	}
	imagePath := filepath.Join(dir, "image.img")
	bmapPath := filepath.Join(dir, "image.bmap")
	devicePath := filepath.Join(dir, "device")
	pipePath := filepath.Join(dir, "session.progress")

	require.NoError(t, os.WriteFile(imagePath, image, 0o644))
	require.NoError(t, os.WriteFile(bmapPath, []byte(testBmap), 0o644))
	require.NoError(t, os.WriteFile(devicePath, bytes.Repeat([]byte{0xEE}, 16384), 0o644))

	require.NoError(t, pipe.Create(pipePath))
	defer pipe.Remove(pipePath)
	r, err := pipe.OpenReader(pipePath)
	require.NoError(t, err)
	updates := r.Watch()

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), Options{
			ImagePath:  imagePath,
			BmapPath:   bmapPath,
			DevicePath: devicePath,
			PipePath:   pipePath,
			Log:        discard(),
		})
	}()

	var got []int
	for len(got) < 2 {
		got = append(got, <-updates)
	}
	require.NoError(t, <-done)
	r.Close()

	assert.Equal(t, []int{33, 100}, got)

	written, err := os.ReadFile(devicePath)
	require.NoError(t, err)
	assert.Equal(t, image[:4096], written[:4096])
	assert.Equal(t, image[8192:], written[8192:])
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 4096), written[4096:8192],
		"unmapped region must stay untouched")
}

func TestRunFailsBeforeDeviceOnBadBmap(t *testing.T) {
	dir := t.TempDir()
	bmapPath := filepath.Join(dir, "image.bmap")
	devicePath := filepath.Join(dir, "device")
	require.NoError(t, os.WriteFile(bmapPath, []byte("<bmap><BlockMap>"), 0o644))
	require.NoError(t, os.WriteFile(devicePath, bytes.Repeat([]byte{0xEE}, 4096), 0o644))

	err := Run(context.Background(), Options{
		ImagePath:  filepath.Join(dir, "missing.img"),
		BmapPath:   bmapPath,
		DevicePath: devicePath,
		Log:        discard(),
	})
	require.Error(t, err)

	written, readErr := os.ReadFile(devicePath)
	require.NoError(t, readErr)
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 4096), written,
		"a parse failure must never touch the device")
}

func TestRunCreatesAndRemovesOwnPipe(t *testing.T) {
	dir := t.TempDir()

	image := make([]byte, 4096)
	imagePath := filepath.Join(dir, "image.img")
	bmapPath := filepath.Join(dir, "image.bmap")
	devicePath := filepath.Join(dir, "device")
	pipePath := filepath.Join(dir, "standalone.progress")

	doc := `<bmap><ImageSize>4096</ImageSize><MappedBlocksCount>1</MappedBlocksCount>
		<BlockMap><Range>0</Range></BlockMap></bmap>`
	require.NoError(t, os.WriteFile(imagePath, image, 0o644))
	require.NoError(t, os.WriteFile(bmapPath, []byte(doc), 0o644))
	require.NoError(t, os.WriteFile(devicePath, make([]byte, 4096), 0o644))

	done := make(chan error, 1)
	go func() {
		done <- Run(context.Background(), Options{
			ImagePath:  imagePath,
			BmapPath:   bmapPath,
			DevicePath: devicePath,
			PipePath:   pipePath,
			Log:        discard(),
		})
	}()

	// The standalone writer creates the FIFO itself; attach and drain it
	// so the writer's blocking open completes.
	for !pipe.Exists(pipePath) {
		time.Sleep(time.Millisecond)
	}
	r, err := pipe.OpenReader(pipePath)
	require.NoError(t, err)
	updates := r.Watch()
	for p := range updates {
		if p == 100 {
			break
		}
	}
	r.Close()

	require.NoError(t, <-done)
	assert.False(t, pipe.Exists(pipePath), "standalone writer must remove its own FIFO")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "parsing-bmap", StateParsingBmap.String())
	assert.Equal(t, "copying", StateCopying.String())
	assert.Equal(t, "succeeded", StateSucceeded.String())
	assert.Equal(t, "failed", StateFailed.String())
}
