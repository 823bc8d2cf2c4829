package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/argos/internal/game"
	"github.com/cory-johannsen/argos/internal/pin"
	"github.com/cory-johannsen/argos/internal/registry"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []map[string]any
	closed bool
}

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	f.frames = append(f.frames, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// all returns every frame with the given command.
func (f *fakeConn) all(command string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, m := range f.frames {
		if m["command"] == command {
			out = append(out, m)
		}
	}
	return out
}

// last returns the most recent frame with the given command, or nil.
func (f *fakeConn) last(command string) map[string]any {
	frames := f.all(command)
	if len(frames) == 0 {
		return nil
	}
	return frames[len(frames)-1]
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

type recordingSink struct {
	mu     sync.Mutex
	hashes []string
}

func (s *recordingSink) Enqueue(hash string, _ []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = append(s.hashes, hash)
	return true
}

// tester is the subset of testing.TB that rapid.T also provides.
type tester interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	FailNow()
}

type harness struct {
	t     tester
	c     *Coordinator
	pins  *pin.Pool
	sink  *recordingSink
	conns map[string]*fakeConn
	now   time.Time
}

func newHarness(t testing.TB, digits int, opts Options) *harness {
	return buildHarness(t, zaptest.NewLogger(t), digits, opts)
}

func buildHarness(t tester, logger *zap.Logger, digits int, opts Options) *harness {
	pool, err := pin.NewPool(digits, pin.NewCryptoSource())
	require.NoError(t, err)

	h := &harness{
		t:     t,
		pins:  pool,
		sink:  &recordingSink{},
		conns: map[string]*fakeConn{},
		now:   time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	opts.Clock = func() time.Time { return h.now }
	h.c = New(opts, pool, registry.New(), h.sink, logger)
	return h
}

func (h *harness) connect(id string) *fakeConn {
	conn := &fakeConn{}
	require.NoError(h.t, h.c.Connect(id, conn))
	h.conns[id] = conn
	return conn
}

func (h *harness) do(id, frame string) error {
	return h.c.HandleMessage(id, []byte(frame))
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

// newGame connects hostID if needed and creates a game, returning its become_host reply.
func (h *harness) newGame(hostID string) map[string]any {
	if _, ok := h.conns[hostID]; !ok {
		h.connect(hostID)
	}
	require.NoError(h.t, h.do(hostID, `{"command":"new"}`))
	reply := h.conns[hostID].last("become_host")
	require.NotNil(h.t, reply)
	return reply
}

func (h *harness) join(id, code string) error {
	if _, ok := h.conns[id]; !ok {
		h.connect(id)
	}
	return h.do(id, fmt.Sprintf(`{"command":"pin","pin":%q}`, code))
}

func (h *harness) game(gamePin string) *game.Game {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	g, ok := h.c.games.Get(gamePin)
	require.True(h.t, ok, "game %s not found", gamePin)
	return g
}

// checkInvariants verifies every structural guarantee of the coordinator state.
func checkInvariants(t tester, c *Coordinator) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	seenPins := map[string]string{}
	rosterOf := map[string]string{}
	addRoster := func(id, gamePin string) {
		if prev, dup := rosterOf[id]; dup {
			t.Fatalf("connection %s in rosters of %s and %s", id, prev, gamePin)
		}
		rosterOf[id] = gamePin
	}

	games := 0
	for _, gamePin := range c.games.Pins() {
		games++
		g, _ := c.games.Get(gamePin)
		for _, code := range g.Pins() {
			if other, dup := seenPins[code]; dup {
				t.Fatalf("pin %s shared by %s and %s", code, other, gamePin)
			}
			seenPins[code] = gamePin
			if c.pins.IsAvailable(code) {
				t.Fatalf("pin %s of live game %s is available in the pool", code, gamePin)
			}
		}
		if len(g.Displays) > 1 {
			t.Fatalf("game %s has %d displays", gamePin, len(g.Displays))
		}
		if g.Mod != "" {
			addRoster(g.Mod, gamePin)
		}
		for _, id := range g.Members() {
			addRoster(id, gamePin)
		}
		if c.gameBySID[g.SID] != gamePin {
			t.Fatalf("sid of game %s not indexed", gamePin)
		}
		for idx := range g.NonRejected {
			if !g.HasSubmission(idx) {
				t.Fatalf("game %s non-rejected index %d out of range", gamePin, idx)
			}
		}
	}
	if games != c.games.Len() {
		t.Fatalf("enumerated %d games, store has %d", games, c.games.Len())
	}
	if c.pins.Available()+3*games != c.pins.Capacity() {
		t.Fatalf("pool accounting: available %d + 3*%d games != capacity %d",
			c.pins.Available(), games, c.pins.Capacity())
	}
	for code, exp := range c.expected {
		g, ok := c.games.Get(exp.GamePin)
		if !ok {
			t.Fatalf("expected pin %s points at missing game %s", code, exp.GamePin)
		}
		if code != g.DisplayPin && code != g.ParticipantPin {
			t.Fatalf("expected pin %s is not a join pin of %s", code, g.Pin)
		}
	}
	if len(c.expected) != 2*games {
		t.Fatalf("expected index has %d pins for %d games", len(c.expected), games)
	}
	for sid, gamePin := range c.gameBySID {
		g, ok := c.games.Get(gamePin)
		if !ok || g.SID != sid {
			t.Fatalf("sid index entry for %s is stale", gamePin)
		}
	}
	for id, info := range c.clients {
		if rosterOf[id] != info.gamePin {
			t.Fatalf("client %s bound to %s but rostered in %q", id, info.gamePin, rosterOf[id])
		}
	}
	for id, gamePin := range rosterOf {
		if c.clients[id].gamePin != gamePin {
			t.Fatalf("roster member %s of %s has no matching client info", id, gamePin)
		}
	}
}
