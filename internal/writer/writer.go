// Package writer hosts the privileged side of an imaging session: parse
// the bmap, stream the mapped ranges onto the device, report progress
// through the FIFO, exit. It is the only code that runs elevated, and it
// is kept deliberately small so that surface stays auditable.
package writer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/deploymenttheory/go-bmap-writer/internal/bmap"
	"github.com/deploymenttheory/go-bmap-writer/internal/imaging"
	"github.com/deploymenttheory/go-bmap-writer/internal/pipe"
)

// State tracks the writer through its lifecycle.
type State int

const (
	StateIdle State = iota
	StateParsingBmap
	StateCopying
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsingBmap:
		return "parsing-bmap"
	case StateCopying:
		return "copying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures one writer run.
type Options struct {
	ImagePath  string
	BmapPath   string
	DevicePath string

	// PipePath is the progress FIFO; empty disables progress reporting.
	PipePath string

	Verify     bool
	StrictBmap bool
	BufferSize int

	Log *slog.Logger
}

// Run executes one imaging session. A nil error means every mapped range
// was written and synced to the device; the caller maps the result to the
// process exit code.
func Run(ctx context.Context, opts Options) error {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	state := StateParsingBmap
	log.Info("parsing bmap", "path", opts.BmapPath)

	parser := &bmap.Parser{Strict: opts.StrictBmap, Log: log}
	model, err := parser.Parse(opts.BmapPath)
	if err != nil {
		return fail(log, state, err)
	}
	log.Info("bmap parsed",
		"blockSize", model.BlockSize,
		"mappedBlocks", model.MappedBlocksCount,
		"totalBlocks", model.BlocksCount,
		"ranges", len(model.Ranges))

	src, err := imaging.OpenSource(opts.ImagePath)
	if err != nil {
		return fail(log, state, err)
	}
	defer src.Close()

	dst, err := imaging.OpenTarget(opts.DevicePath)
	if err != nil {
		return fail(log, state, err)
	}
	// The handle is released on every exit path; on success it has
	// already been synced by the engine.
	defer dst.Close()

	sink := imaging.ProgressFunc(func(int) {})
	if opts.PipePath != "" {
		emit, cleanup, err := openProgress(opts.PipePath, log)
		if err != nil {
			return fail(log, state, err)
		}
		defer cleanup()
		sink = emit
	}

	state = StateCopying
	log.Info("copying", "image", opts.ImagePath, "device", dst.Path)

	engine := &imaging.Engine{
		BufferSize: opts.BufferSize,
		Verify:     opts.Verify,
		Log:        log,
	}
	if err := engine.Copy(ctx, model, src, dst, sink); err != nil {
		return fail(log, state, err)
	}

	state = StateSucceeded
	log.Info("copy complete", "state", state.String())
	return nil
}

// openProgress attaches to the session FIFO. The orchestrator normally
// creates the FIFO before spawning this process; a standalone run creates
// it here and then owns its removal.
func openProgress(path string, log *slog.Logger) (imaging.ProgressFunc, func(), error) {
	created := false
	if !pipe.Exists(path) {
		if err := pipe.Create(path); err != nil {
			return nil, nil, err
		}
		created = true
	}

	w, err := pipe.OpenWriter(path)
	if err != nil {
		if created {
			pipe.Remove(path)
		}
		return nil, nil, err
	}

	emit := func(percent int) {
		if err := w.Emit(percent); err != nil {
			log.Warn("progress emit failed", "error", err)
		}
	}
	cleanup := func() {
		w.Close()
		if created {
			pipe.Remove(path)
		}
	}
	return emit, cleanup, nil
}

func fail(log *slog.Logger, state State, err error) error {
	log.Error("imaging failed", "state", state.String(), "error", err)
	return err
}
