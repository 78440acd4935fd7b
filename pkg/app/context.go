// Package app carries CLI-wide state: output preferences and the progress
// callback the presentation layer hangs its rendering on.
package app

import (
	"context"
	"fmt"
	"os"
)

// Context holds application-wide configuration and state for one CLI
// invocation.
type Context struct {
	context.Context

	// Output preferences
	Verbose bool
	Quiet   bool

	// ProgressCallback receives 0-100 percentages as the imaging session
	// advances. Nil is fine.
	ProgressCallback func(percent int)
}

// NewContext creates a new application context.
func NewContext(ctx context.Context) *Context {
	return &Context{Context: ctx}
}

// Progress reports progress if a callback is set.
func (c *Context) Progress(percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(percent)
	}
}

// Log outputs a message when verbose output is enabled.
func (c *Context) Log(message string) {
	if c.Verbose && !c.Quiet {
		fmt.Fprintln(os.Stderr, message)
	}
}

// Error outputs an error message unless quiet.
func (c *Context) Error(message string) {
	if !c.Quiet {
		fmt.Fprintln(os.Stderr, "Error:", message)
	}
}
