// Package registry maps connection ids to their outbound send capability.
// It is the only path by which a message reaches a connected party.
package registry

import (
	"fmt"
	"sync"
)

// Conn is the send side of a live connection.
type Conn interface {
	// Send enqueues data for delivery without blocking.
	Send(data []byte) error
	// Close asks the transport to close the connection once queued data is flushed.
	Close() error
}

// Outbox is a Conn backed by a buffered channel. The transport's write pump
// drains Events and treats a closed channel as a request to close the socket.
type Outbox struct {
	id     string
	events chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the given connection id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an Outbox with an open events channel of at least one slot.
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:     id,
		events: make(chan []byte, bufferSize),
	}
}

// ID returns the connection id this outbox belongs to.
func (o *Outbox) ID() string {
	return o.id
}

// Send enqueues data for the write pump.
//
// Precondition: data must be a non-nil byte slice.
// Postcondition: data is enqueued, or an error if the outbox is closed or full.
func (o *Outbox) Send(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("connection %s is closed", o.id)
	}
	select {
	case o.events <- data:
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", o.id)
	}
}

// Events returns the read-only events channel consumed by the write pump.
func (o *Outbox) Events() <-chan []byte {
	return o.events
}

// Close marks the outbox closed and closes the events channel. Idempotent.
//
// Postcondition: Further Send calls return an error.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.events)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
