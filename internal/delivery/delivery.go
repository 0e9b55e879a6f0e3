// Package delivery pushes reminder text to a chat recipient.
package delivery

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Dispatcher sends one message to one recipient. Implementations wrap
// failures in errors.ErrDelivery and do not retry.
type Dispatcher interface {
	Deliver(ctx context.Context, recipientID, text string) error
}

// DryRun writes messages to w instead of sending them.
type DryRun struct {
	mu sync.Mutex
	w  io.Writer
}

func NewDryRun(w io.Writer) *DryRun {
	return &DryRun{w: w}
}

func (d *DryRun) Deliver(ctx context.Context, recipientID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := fmt.Fprintf(d.w, "[DryRun] %s: %s\n", recipientID, text)
	return err
}
