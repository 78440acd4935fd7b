// Package pipe carries copy progress across the privilege boundary. The
// privileged writer emits "PROGRESS <n>" lines into a filesystem FIFO and
// the unprivileged orchestrator reads them; anything not matching that
// exact shape is ignored by the reader.
package pipe

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const progressPrefix = "PROGRESS "

// FormatProgress renders one protocol line, newline included.
func FormatProgress(percent int) string {
	return fmt.Sprintf("%s%d\n", progressPrefix, percent)
}

// ParseProgress extracts the percentage from one protocol line. ok is
// false for anything that is not exactly a progress line with a 0-100
// integer.
func ParseProgress(line string) (percent int, ok bool) {
	rest, found := strings.CutPrefix(line, progressPrefix)
	if !found {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 0 || n > 100 {
		return 0, false
	}
	return n, true
}

// Writer is the producing half of the progress channel.
type Writer struct {
	f *os.File
}

// OpenWriter opens the FIFO at path for writing. The open blocks until a
// reader attaches.
func OpenWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pipe: open writer: %w", err)
	}
	return &Writer{f: f}, nil
}

// Emit writes one progress line.
func (w *Writer) Emit(percent int) error {
	_, err := io.WriteString(w.f, FormatProgress(percent))
	return err
}

func (w *Writer) Close() error {
	return w.f.Close()
}

// Reader is the consuming half of the progress channel.
type Reader struct {
	f *os.File
}

// OpenReader opens the FIFO at path for reading. The FIFO is opened
// read-write so the open never blocks waiting for the producer and reads
// do not EOF before the producer attaches; the owner closes the reader
// once the producing process has exited.
func OpenReader(path string) (*Reader, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pipe: open reader: %w", err)
	}
	return &Reader{f: f}, nil
}

// Watch delivers progress percentages until the FIFO is closed. Lines
// that do not match the protocol are dropped.
func (r *Reader) Watch() <-chan int {
	out := make(chan int)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r.f)
		for sc.Scan() {
			if p, ok := ParseProgress(sc.Text()); ok {
				out <- p
			}
		}
	}()
	return out
}

// Drain gives buffered lines a grace period to be consumed and then
// forces pending reads to fail so Watch terminates. A reader opened
// read-write never sees EOF on its own, so this is how the owner ends the
// watch once the producer has exited.
func (r *Reader) Drain(grace time.Duration) error {
	return r.f.SetReadDeadline(time.Now().Add(grace))
}

func (r *Reader) Close() error {
	return r.f.Close()
}
