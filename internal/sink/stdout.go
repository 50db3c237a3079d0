package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// StdoutPublisher writes one JSON event per line.
type StdoutPublisher struct {
	mu sync.Mutex
	w  io.Writer
}

// NewStdoutPublisher writes to w, or os.Stdout when w is nil.
func NewStdoutPublisher(w io.Writer) *StdoutPublisher {
	if w == nil {
		w = os.Stdout
	}
	return &StdoutPublisher{w: w}
}

func (p *StdoutPublisher) PublishChanges(_ context.Context, events []cdc.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, evt := range events {
		data, err := Encode(evt)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(p.w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write change event: %w", err)
		}
	}
	return nil
}

func (p *StdoutPublisher) Close() error { return nil }
