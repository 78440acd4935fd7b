// Package orchestrate runs one imaging session end to end from the
// unprivileged side: unmount the target, locate the privileged writer,
// spawn it with elevated rights and a progress FIFO, and fan its three
// output channels (stdout, stderr, FIFO) into a single ordered event
// stream for the presentation layer.
package orchestrate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-bmap-writer/internal/device"
	"github.com/deploymenttheory/go-bmap-writer/internal/pipe"
)

// Options configures one imaging session.
type Options struct {
	ImagePath  string
	BmapPath   string
	DevicePath string

	// Credential, when non-empty, is fed to sudo on stdin. Empty lets
	// sudo prompt on the controlling terminal.
	Credential string

	// WriterPath overrides writer binary discovery.
	WriterPath string

	// PipeDir is where the session FIFO is created; empty means the
	// system temp directory.
	PipeDir string

	Verify     bool
	StrictBmap bool

	// BufferSize is handed to the writer; zero keeps its default.
	BufferSize int
}

// Run executes the session and returns its event stream. The stream is
// terminated by exactly one EventTerminal. Cancelling ctx kills the
// writer; since the writer has no internal checkpointing this leaves the
// device in an indeterminate state, and the terminal event says so.
func Run(ctx context.Context, opts Options) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)
		run(ctx, opts, events)
	}()
	return events
}

func run(ctx context.Context, opts Options, events chan<- Event) {
	fail := func(stage string, err error, code int) {
		events <- Event{Kind: EventTerminal, Err: &StageError{Stage: stage, Err: err}, ExitCode: code}
	}

	// Every failure from here on happens before any byte is written.
	if err := device.Unmount(opts.DevicePath); err != nil {
		fail("unmount", err, -1)
		return
	}

	writerBin, err := LocateWriter(opts.WriterPath)
	if err != nil {
		fail("locate-writer", err, -1)
		return
	}

	pipeDir := opts.PipeDir
	if pipeDir == "" {
		pipeDir = os.TempDir()
	}
	// Session-scoped FIFO: created by this side, removed by this side.
	pipePath := filepath.Join(pipeDir, fmt.Sprintf("bmapflash-%s.progress", uuid.NewString()))
	if err := pipe.Create(pipePath); err != nil {
		fail("launch", err, -1)
		return
	}
	defer pipe.Remove(pipePath)

	cmd, stdin, err := writerCommand(writerBin, opts, pipePath)
	if err != nil {
		fail("launch", err, -1)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		fail("launch", err, -1)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		fail("launch", err, -1)
		return
	}

	reader, err := pipe.OpenReader(pipePath)
	if err != nil {
		fail("launch", err, -1)
		return
	}
	defer reader.Close()

	if err := cmd.Start(); err != nil {
		fail("launch", err, -1)
		return
	}
	// Three producers, one consumer: stdout lines, stderr lines and the
	// progress FIFO all land in the single ordered event stream.
	var stdioWG, pipeWG sync.WaitGroup
	if stdin != nil {
		stdioWG.Add(1)
		go func() {
			defer stdioWG.Done()
			feedCredential(stdin, opts.Credential, events)
		}()
	}
	stdioWG.Add(2)
	go func() {
		defer stdioWG.Done()
		relayLines(stdout, events)
	}()
	go func() {
		defer stdioWG.Done()
		relayLines(stderr, events)
	}()
	pipeWG.Add(1)
	go func() {
		defer pipeWG.Done()
		for p := range reader.Watch() {
			events <- Event{Kind: EventProgress, Percent: p}
		}
	}()

	// Cooperative cancellation: killing the process is all we can do.
	cancelled := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Kill()
		case <-cancelled:
		}
	}()

	// The stdio scanners hit EOF when the process exits and must finish
	// before Wait closes their pipes under them.
	stdioWG.Wait()
	waitErr := cmd.Wait()
	close(cancelled)
	// The FIFO never EOFs while this side holds it open; give buffered
	// progress lines a moment to land, then cut the watch loose.
	reader.Drain(500 * time.Millisecond)
	pipeWG.Wait()

	if ctx.Err() != nil {
		events <- Event{Kind: EventTerminal, ExitCode: -1, Err: &StageError{
			Stage: "copy",
			Err:   fmt.Errorf("cancelled; device left in an indeterminate state"),
		}}
		return
	}
	if waitErr != nil {
		code := -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		events <- Event{Kind: EventTerminal, ExitCode: code, Err: &StageError{
			Stage: "copy",
			Err:   fmt.Errorf("writer exited with code %d", code),
		}}
		return
	}
	events <- Event{Kind: EventTerminal}
}

// runningAsRoot is a hook so tests can exercise the spawn path without
// privileges.
var runningAsRoot = func() bool { return os.Geteuid() == 0 }

// writerCommand builds the privileged invocation: direct when already
// root, through sudo otherwise. The returned stdin is non-nil only when a
// credential must be fed to sudo.
func writerCommand(writerBin string, opts Options, pipePath string) (*exec.Cmd, io.WriteCloser, error) {
	args := []string{opts.ImagePath, opts.BmapPath, opts.DevicePath, "--progress-pipe", pipePath}
	if opts.Verify {
		args = append(args, "--verify")
	}
	if opts.StrictBmap {
		args = append(args, "--strict-bmap")
	}
	if opts.BufferSize > 0 {
		args = append(args, "--buffer-size", strconv.Itoa(opts.BufferSize))
	}

	if runningAsRoot() {
		return exec.Command(writerBin, args...), nil, nil
	}

	sudoArgs := []string{}
	if opts.Credential != "" {
		sudoArgs = append(sudoArgs, "-S")
	}
	sudoArgs = append(sudoArgs, writerBin)
	sudoArgs = append(sudoArgs, args...)
	cmd := exec.Command("sudo", sudoArgs...)

	if opts.Credential == "" {
		return cmd, nil, nil
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, err
	}
	return cmd, stdin, nil
}

// feedCredential writes the sudo password and closes the pipe. A failed
// write means sudo went away before reading it; that surfaces as a log
// event instead of being dropped.
func feedCredential(stdin io.WriteCloser, credential string, events chan<- Event) {
	if _, err := io.WriteString(stdin, credential+"\n"); err != nil {
		events <- Event{Kind: EventLog, Line: fmt.Sprintf("feeding credential to sudo failed: %v", err)}
	}
	stdin.Close()
}

// relayLines turns every line of r into a log event.
func relayLines(r io.Reader, events chan<- Event) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		events <- Event{Kind: EventLog, Line: line}
	}
}
