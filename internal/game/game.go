// Package game holds the authoritative in-memory record of each live game:
// its roster, submissions and task state.
package game

import (
	"sort"
	"time"
)

// Role is the part a connection plays within a game.
type Role string

const (
	RoleHost        Role = "host"
	RoleDisplay     Role = "display"
	RoleParticipant Role = "participant"
)

// Game is one live session, keyed by its game pin.
//
// A Game is not safe for concurrent use; the coordinator serializes access.
//
// Invariant: len(Displays) <= 1.
// Invariant: every index in NonRejected and OwnerByIndex is < len(Submissions).
type Game struct {
	// Pin identifies the game.
	Pin string
	// DisplayPin and ParticipantPin are the join secrets for the two guest roles.
	DisplayPin     string
	ParticipantPin string
	// SID is the session secret that lets a host rebind after a reconnect.
	SID string
	// Mod is the current host connection id; empty while the host is away.
	Mod string

	Displays     map[string]struct{}
	Participants map[string]struct{}

	// Submissions lists content hashes in submission order for the current task.
	Submissions []string
	// ContentByHash maps a content hash to its base64 payload.
	ContentByHash map[string]string
	// OwnerByIndex records which participant produced each submission.
	OwnerByIndex map[int]string
	// NonRejected holds submission indices the host has not rejected.
	NonRejected map[int]struct{}

	TaskRunning  bool
	ShowIndex    *int
	LastActivity time.Time
}

// New creates a game hosted by mod.
//
// Precondition: all pins are distinct and non-empty; sid is non-empty.
// Postcondition: Returns a Game with empty rosters, no task running, LastActivity == now.
func New(gamePin, displayPin, participantPin, sid, mod string, now time.Time) *Game {
	return &Game{
		Pin:            gamePin,
		DisplayPin:     displayPin,
		ParticipantPin: participantPin,
		SID:            sid,
		Mod:            mod,
		Displays:       make(map[string]struct{}),
		Participants:   make(map[string]struct{}),
		ContentByHash:  make(map[string]string),
		OwnerByIndex:   make(map[int]string),
		NonRejected:    make(map[int]struct{}),
		LastActivity:   now,
	}
}

// Pins returns the three codes this game holds from the pin pool.
func (g *Game) Pins() []string {
	return []string{g.Pin, g.DisplayPin, g.ParticipantPin}
}

// Touch refreshes the activity timestamp.
func (g *Game) Touch(now time.Time) {
	g.LastActivity = now
}

// IsStale reports whether the game has been idle for longer than window.
func (g *Game) IsStale(now time.Time, window time.Duration) bool {
	return now.Sub(g.LastActivity) > window
}

// HasDisplay reports whether the single display slot is taken.
func (g *Game) HasDisplay() bool {
	return len(g.Displays) > 0
}

// IsDisplay reports whether id is bound as this game's display.
func (g *Game) IsDisplay(id string) bool {
	_, ok := g.Displays[id]
	return ok
}

// IsParticipant reports whether id is bound as a participant.
func (g *Game) IsParticipant(id string) bool {
	_, ok := g.Participants[id]
	return ok
}

// AddDisplay binds id to the display slot.
//
// Precondition: HasDisplay() is false. Returns false without mutation otherwise.
func (g *Game) AddDisplay(id string) bool {
	if g.HasDisplay() {
		return false
	}
	g.Displays[id] = struct{}{}
	return true
}

// RemoveDisplay unbinds id from the display slot.
func (g *Game) RemoveDisplay(id string) {
	delete(g.Displays, id)
}

// AddParticipant binds id as a participant.
func (g *Game) AddParticipant(id string) {
	g.Participants[id] = struct{}{}
}

// RemoveParticipant unbinds a participant. Its past submissions keep their owner
// entry so reactions can still be attempted; delivery is skipped once it is gone.
func (g *Game) RemoveParticipant(id string) {
	delete(g.Participants, id)
}

// DisplayIDs returns the bound display ids in sorted order.
func (g *Game) DisplayIDs() []string {
	return sortedKeys(g.Displays)
}

// ParticipantIDs returns the bound participant ids in sorted order.
func (g *Game) ParticipantIDs() []string {
	return sortedKeys(g.Participants)
}

// Members returns every display and participant id.
func (g *Game) Members() []string {
	return append(g.DisplayIDs(), g.ParticipantIDs()...)
}

// Recipients returns the ids that receive stats updates: the host, if present,
// followed by the displays.
func (g *Game) Recipients() []string {
	ids := make([]string, 0, 1+len(g.Displays))
	if g.Mod != "" {
		ids = append(ids, g.Mod)
	}
	return append(ids, g.DisplayIDs()...)
}

func sortedKeys(m map[string]struct{}) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
