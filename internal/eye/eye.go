// Package eye forwards recording commands to the eye camera processes.
package eye

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrClosed is returned when sending on a channel whose receiver is gone.
	ErrClosed = errors.New("eye: channel closed")
	// ErrFull is returned when the receiver is not keeping up.
	ErrFull = errors.New("eye: channel full")
)

// Message tells an eye process to start recording into Path, or to stop
// when both fields are nil.
type Message struct {
	Path *string `json:"path"`
	Mode *bool   `json:"mode"`
}

// Start builds a start message. raw selects MJPEG dumping in the eye process.
func Start(path string, raw bool) Message {
	return Message{Path: &path, Mode: &raw}
}

// Stop builds the stop message.
func Stop() Message {
	return Message{}
}

// IsStop reports whether m is a stop message.
func (m Message) IsStop() bool {
	return m.Path == nil && m.Mode == nil
}

func (m Message) String() string {
	if m.IsStop() {
		return "stop"
	}
	path, raw := "", false
	if m.Path != nil {
		path = *m.Path
	}
	if m.Mode != nil {
		raw = *m.Mode
	}
	return fmt.Sprintf("start(%s, raw=%t)", path, raw)
}

// Channel is a one-way, fire-and-forget link to an eye process.
type Channel interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// Broadcast sends msg to every channel concurrently. A failing channel
// does not prevent delivery to the others; all failures are returned joined.
func Broadcast(ctx context.Context, channels []Channel, msg Message) error {
	errs := make([]error, len(channels))

	var g errgroup.Group
	for i, ch := range channels {
		i, ch := i, ch
		g.Go(func() error {
			if err := ch.Send(ctx, msg); err != nil {
				errs[i] = fmt.Errorf("eye channel %d: %w", i, err)
			}
			return nil
		})
	}
	g.Wait()

	return errors.Join(errs...)
}
