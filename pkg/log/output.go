package log

import (
	"io"
	"os"
	"sync"
)

// ConsoleOutput writes formatted entries to stderr (errors) or stdout.
type ConsoleOutput struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
}

// NewConsoleOutput returns a ConsoleOutput bound to the process streams.
func NewConsoleOutput() *ConsoleOutput {
	return &ConsoleOutput{stdout: os.Stdout, stderr: os.Stderr}
}

// Write sends warn+ entries to stderr and the rest to stdout.
func (o *ConsoleOutput) Write(entry *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	w := o.stdout
	if entry.Level >= WarnLevel {
		w = o.stderr
	}
	_, err := w.Write(formatted)
	return err
}

// Close is a no-op for console streams.
func (o *ConsoleOutput) Close() error { return nil }

// WriterOutput adapts any io.Writer into an Output. Used by tests and by
// file-backed logging.
type WriterOutput struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterOutput wraps w as an Output.
func NewWriterOutput(w io.Writer) *WriterOutput { return &WriterOutput{w: w} }

// Write writes the formatted entry.
func (o *WriterOutput) Write(_ *Entry, formatted []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(formatted)
	return err
}

// Close closes the underlying writer when it is a closer.
func (o *WriterOutput) Close() error {
	if c, ok := o.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// NullOutput discards everything. Useful to silence a component.
type NullOutput struct{}

// Write discards the entry.
func (NullOutput) Write(*Entry, []byte) error { return nil }

// Close is a no-op.
func (NullOutput) Close() error { return nil }
