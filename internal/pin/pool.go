// Package pin provides the finite pool of fixed-width numeric codes that serve
// both as game identifiers and as join secrets.
package pin

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when fewer codes remain than were requested.
var ErrExhausted = errors.New("pin pool exhausted")

// MaxDigits bounds the code width so the pool stays a small in-memory set.
const MaxDigits = 6

// Pool holds every code not currently held by a live game.
//
// Codes are shuffled once at construction and consumed FIFO afterwards;
// released codes rejoin at the tail. A Pool is not safe for concurrent use:
// the session coordinator owns it and serializes access.
//
// Invariant: every code is either in the queue exactly once or outstanding.
type Pool struct {
	digits    int
	capacity  int
	queue     []string
	available map[string]bool
}

// NewPool creates a shuffled pool of all 10^digits zero-padded codes.
//
// Precondition: 1 <= digits <= MaxDigits; src must be non-nil.
// Postcondition: Returns a Pool with Available() == 10^digits, or an error.
func NewPool(digits int, src Source) (*Pool, error) {
	if digits < 1 || digits > MaxDigits {
		return nil, fmt.Errorf("pin digits must be 1-%d, got %d", MaxDigits, digits)
	}
	if src == nil {
		return nil, errors.New("pin source must not be nil")
	}

	capacity := 1
	for i := 0; i < digits; i++ {
		capacity *= 10
	}

	queue := make([]string, capacity)
	for i := range queue {
		queue[i] = fmt.Sprintf("%0*d", digits, i)
	}
	for i := len(queue) - 1; i > 0; i-- {
		j := src.Intn(i + 1)
		queue[i], queue[j] = queue[j], queue[i]
	}

	available := make(map[string]bool, capacity)
	for _, code := range queue {
		available[code] = true
	}

	return &Pool{
		digits:    digits,
		capacity:  capacity,
		queue:     queue,
		available: available,
	}, nil
}

// Allocate removes n distinct codes from the front of the pool.
//
// Precondition: n >= 1.
// Postcondition: Returns n distinct codes no longer available, or ErrExhausted
// with the pool unchanged.
func (p *Pool) Allocate(n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("pin allocation size must be >= 1, got %d", n)
	}
	if len(p.queue) < n {
		return nil, fmt.Errorf("allocating %d pins with %d available: %w", n, len(p.queue), ErrExhausted)
	}

	codes := make([]string, n)
	copy(codes, p.queue[:n])
	p.queue = p.queue[n:]
	for _, code := range codes {
		delete(p.available, code)
	}
	return codes, nil
}

// Release returns an outstanding code to the tail of the pool.
//
// Precondition: code must belong to this pool and be outstanding. Panics otherwise,
// since a double release would let two live games share a pin.
// Postcondition: code is available for a later Allocate.
func (p *Pool) Release(code string) {
	if !p.valid(code) {
		panic(fmt.Sprintf("pin: Release of foreign code %q", code))
	}
	if p.available[code] {
		panic(fmt.Sprintf("pin: Release of code %q that is not outstanding", code))
	}
	p.available[code] = true
	p.queue = append(p.queue, code)
}

// IsAvailable reports whether code is currently in the pool.
func (p *Pool) IsAvailable(code string) bool {
	return p.available[code]
}

// Available returns the number of codes that can still be allocated.
func (p *Pool) Available() int {
	return len(p.queue)
}

// Capacity returns the total number of codes the pool was built with.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Digits returns the fixed width of every code.
func (p *Pool) Digits() int {
	return p.digits
}

func (p *Pool) valid(code string) bool {
	if len(code) != p.digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
