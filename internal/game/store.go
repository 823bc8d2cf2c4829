package game

import (
	"fmt"
	"sort"
	"time"
)

// Store maps game pins to live games.
//
// A Store is not safe for concurrent use; the coordinator owns it and
// serializes every call.
type Store struct {
	games map[string]*Game
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		games: make(map[string]*Game),
	}
}

// Add registers a new game.
//
// Precondition: g must be non-nil with a non-empty Pin.
// Postcondition: Returns an error if a game with the same pin already exists.
func (s *Store) Add(g *Game) error {
	if _, exists := s.games[g.Pin]; exists {
		return fmt.Errorf("game %q already exists", g.Pin)
	}
	s.games[g.Pin] = g
	return nil
}

// Get returns the game for pin.
//
// Postcondition: Returns (game, true) if found, or (nil, false) otherwise.
func (s *Store) Get(pin string) (*Game, bool) {
	g, ok := s.games[pin]
	return g, ok
}

// Remove deletes the game for pin and returns it.
func (s *Store) Remove(pin string) (*Game, bool) {
	g, ok := s.games[pin]
	if ok {
		delete(s.games, pin)
	}
	return g, ok
}

// Len returns the number of live games.
func (s *Store) Len() int {
	return len(s.games)
}

// Stale returns the pins of every game idle for longer than window, sorted.
func (s *Store) Stale(now time.Time, window time.Duration) []string {
	var pins []string
	for pin, g := range s.games {
		if g.IsStale(now, window) {
			pins = append(pins, pin)
		}
	}
	sort.Strings(pins)
	return pins
}

// Pins returns the pin of every live game, sorted.
func (s *Store) Pins() []string {
	pins := make([]string, 0, len(s.games))
	for pin := range s.games {
		pins = append(pins, pin)
	}
	sort.Strings(pins)
	return pins
}
