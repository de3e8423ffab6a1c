package state

import (
	"context"
	"sync"
)

// Event is a one-shot signal. Set is idempotent and Wait returns once it
// was called.
type Event struct {
	once sync.Once
	ch   chan struct{}
}

func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set fires the event. It reports whether this call was the one that fired it.
func (e *Event) Set() bool {
	fired := false
	e.once.Do(func() {
		close(e.ch)
		fired = true
	})
	return fired
}

func (e *Event) IsSet() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

func (e *Event) Done() <-chan struct{} {
	return e.ch
}

// Wait blocks until the event is set or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	select {
	case <-e.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
