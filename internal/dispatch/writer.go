package dispatch

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Writer prints messages instead of sending them. It is used for dry runs.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer printing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (p *Writer) Send(_ context.Context, msg Message) error {
	text, err := msg.format("\n")
	if err != nil {
		return fmt.Errorf("print: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = fmt.Fprintf(p.w, "%s\n\n", text)
	return err
}
