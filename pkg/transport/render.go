package transport

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// WriterRenderer renders chat input as lines on an io.Writer. InjectText
// replaces the pending input, like filling a text box; Submit writes it.
type WriterRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	prefix  string
	pending strings.Builder
}

// NewWriterRenderer returns a renderer writing to w, each line prefixed.
func NewWriterRenderer(w io.Writer, prefix string) *WriterRenderer {
	return &WriterRenderer{w: w, prefix: prefix}
}

func (r *WriterRenderer) InjectText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending.Reset()
	r.pending.WriteString(text)
	return nil
}

func (r *WriterRenderer) Submit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return errors.New("renderer has no writer")
	}
	line := r.prefix + strings.ReplaceAll(r.pending.String(), "\n", " ") + "\n"
	r.pending.Reset()
	_, err := io.WriteString(r.w, line)
	return err
}
