package orchestrate

import "fmt"

// EventKind tags the entries of the session event stream.
type EventKind int

const (
	// EventProgress carries a 0-100 percentage from the progress FIFO.
	EventProgress EventKind = iota

	// EventLog carries one free-text diagnostic line from the writer's
	// stdout or stderr. Lines from the two streams arrive on independent
	// channels and have no guaranteed relative order.
	EventLog

	// EventTerminal is the last event of a session: Err nil means
	// success, anything else failure. Exactly one is delivered.
	EventTerminal
)

// Event is one entry of the ordered log/progress stream a session
// produces.
type Event struct {
	Kind    EventKind
	Percent int
	Line    string

	// Terminal outcome
	Err      error
	ExitCode int
}

// StageError attributes a failure to the stage that produced it, so every
// terminal failure names what failed: unmount, locate-writer, launch,
// parse or copy.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
