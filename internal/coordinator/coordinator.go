// Package coordinator owns every live game and connection binding and applies
// inbound commands to them one at a time.
package coordinator

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/argos/internal/game"
	"github.com/cory-johannsen/argos/internal/pin"
	"github.com/cory-johannsen/argos/internal/protocol"
	"github.com/cory-johannsen/argos/internal/registry"
)

// ContentSink receives decoded submissions for persistence. Enqueue must not block.
type ContentSink interface {
	Enqueue(hash string, data []byte) bool
}

// Options tunes coordinator behavior. Zero values fall back to the documented defaults.
type Options struct {
	// InactivityWindow is how long a game may stay idle before a sweep removes it. Default 1h.
	InactivityWindow time.Duration
	// HostDisconnect is applied when a host connection closes. Default KeepGame.
	HostDisconnect HostDisconnectPolicy
	// EnforceTaskRunning rejects png submissions while no task is running.
	EnforceTaskRunning bool
	// SecretLength is the length of generated session secrets. Default 24.
	SecretLength int
	// MaxMessageBytes caps inbound frames; zero disables the check.
	MaxMessageBytes int
	// Clock returns the current time. Default time.Now.
	Clock func() time.Time
	// Secrets generates session secrets. Default crypto/rand.
	Secrets pin.Source
}

func (o Options) withDefaults() Options {
	if o.InactivityWindow <= 0 {
		o.InactivityWindow = time.Hour
	}
	if o.HostDisconnect == "" {
		o.HostDisconnect = KeepGame
	}
	if o.SecretLength <= 0 {
		o.SecretLength = 24
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Secrets == nil {
		o.Secrets = pin.NewCryptoSource()
	}
	return o
}

// clientInfo is the binding of one connection, replaced as a whole.
type clientInfo struct {
	role    game.Role
	gamePin string
}

type expectedPin struct {
	Role    game.Role `yaml:"type"`
	GamePin string    `yaml:"game_pin"`
}

// Stats summarizes coordinator state for logs and health checks.
type Stats struct {
	Connections   int `json:"connections"`
	Clients       int `json:"clients"`
	Games         int `json:"games"`
	AvailablePins int `json:"available_pins"`
}

// Coordinator serializes every command against the shared registry, pin pool and
// game store behind a single mutex.
type Coordinator struct {
	mu sync.Mutex

	opts   Options
	conns  *registry.Registry
	pins   *pin.Pool
	games  *game.Store
	sink   ContentSink
	logger *zap.Logger

	clients   map[string]clientInfo
	expected  map[string]expectedPin
	gameBySID map[string]string
}

// New creates a Coordinator.
//
// Precondition: pins, conns and logger must be non-nil; sink may be nil to skip persistence.
// Postcondition: Returns a Coordinator with no games and no bound connections.
func New(opts Options, pins *pin.Pool, conns *registry.Registry, sink ContentSink, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		opts:      opts.withDefaults(),
		conns:     conns,
		pins:      pins,
		games:     game.NewStore(),
		sink:      sink,
		logger:    logger,
		clients:   make(map[string]clientInfo),
		expected:  make(map[string]expectedPin),
		gameBySID: make(map[string]string),
	}
}

// Connect registers a new connection and greets it.
//
// Precondition: id must be unique for the process lifetime.
// Postcondition: The connection is reachable and unbound, or an error if id is taken.
func (c *Coordinator) Connect(id string, conn registry.Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conns.Register(id, conn); err != nil {
		return err
	}
	c.send(id, protocol.NewGreeting())
	c.logStats("connected", zap.String("conn_id", id))
	return nil
}

// Disconnect forgets a closed connection and updates the game it was bound to.
func (c *Coordinator) Disconnect(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conns.Unregister(id)
	info, bound := c.clients[id]
	delete(c.clients, id)
	defer c.logStats("disconnected", zap.String("conn_id", id))
	if !bound {
		return
	}

	g, ok := c.games.Get(info.gamePin)
	if !ok {
		return
	}
	switch info.role {
	case game.RoleHost:
		if g.Mod != id {
			return
		}
		if c.opts.HostDisconnect == TeardownGame {
			c.removeGameLocked(g, "host disconnected")
			return
		}
		g.Mod = ""
		c.logger.Info("host left, game kept for rejoin", zap.String("game_pin", g.Pin))
	case game.RoleDisplay:
		g.RemoveDisplay(id)
		c.sendGameStats(g)
	case game.RoleParticipant:
		g.RemoveParticipant(id)
		c.sendGameStats(g)
	}
}

// HandleMessage decodes one inbound frame and applies it. Rejections are logged
// here and returned for callers that care; the connection stays open either way.
func (c *Coordinator) HandleMessage(id string, data []byte) error {
	cmd, err := protocol.Decode(data, c.opts.MaxMessageBytes)
	if err == nil {
		err = c.Handle(id, cmd)
	}
	if err != nil {
		name := "<undecoded>"
		if cmd != nil {
			name = cmd.Name()
		}
		level := zapcore.InfoLevel
		if Kind(err) == KindPoolExhausted || Kind(err) == KindInternal {
			level = zapcore.WarnLevel
		}
		c.logger.Log(level, "command rejected",
			zap.String("conn_id", id),
			zap.String("command", name),
			zap.String("error_kind", string(Kind(err))),
			zap.Error(err),
		)
	}
	return err
}

// Handle applies a decoded command on behalf of connection id.
//
// Postcondition: On error no state has changed, except that a `new` may have
// swept stale games before failing on pin exhaustion.
func (c *Coordinator) Handle(id string, cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.conns.Has(id) {
		return preconditionf("connection %q is not registered", id)
	}

	switch cmd := cmd.(type) {
	case protocol.Hello:
		c.send(id, protocol.NewWelcome())
		return nil
	case protocol.NewGame:
		return c.handleNewGame(id)
	case protocol.Rejoin:
		return c.handleRejoin(id, cmd)
	case protocol.RedeemPin:
		return c.handleRedeemPin(id, cmd)
	case protocol.NewTask:
		return c.handleNewTask(id)
	case protocol.EndTask:
		return c.handleEndTask(id)
	case protocol.Show:
		return c.handleShow(id, cmd)
	case protocol.Submit:
		return c.handleSubmit(id, cmd)
	case protocol.React:
		return c.handleReact(id, cmd)
	case protocol.RemoveGame:
		return c.handleRemoveGame(id)
	case protocol.Unknown:
		c.logger.Debug("ignoring unknown command",
			zap.String("conn_id", id),
			zap.String("command", cmd.Command),
		)
		return nil
	default:
		return errors.New("unhandled command type")
	}
}

// HasSession reports whether a live game holds sid.
func (c *Coordinator) HasSession(sid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.gameBySID[sid]
	return ok
}

// PinRole reports which role an outstanding join pin grants.
func (c *Coordinator) PinRole(code string) (game.Role, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.expected[code]
	return exp.Role, ok
}

// Stats returns a snapshot of coordinator counters.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statsLocked()
}

// Sweep removes every game idle for longer than the inactivity window.
//
// Postcondition: Returns the number of games removed.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked()
}

func (c *Coordinator) sweepLocked() int {
	stale := c.games.Stale(c.opts.Clock(), c.opts.InactivityWindow)
	for _, gamePin := range stale {
		if g, ok := c.games.Get(gamePin); ok {
			c.removeGameLocked(g, "inactive")
		}
	}
	return len(stale)
}

// removeGameLocked tears g down: guests are disconnected, every roster member
// is unbound, and the three pins return to the pool.
func (c *Coordinator) removeGameLocked(g *game.Game, reason string) {
	for _, id := range g.Members() {
		if err := c.conns.Close(id); err != nil && !errors.Is(err, registry.ErrNotConnected) {
			c.logger.Debug("closing guest connection", zap.String("conn_id", id), zap.Error(err))
		}
		delete(c.clients, id)
	}
	if g.Mod != "" {
		if info, ok := c.clients[g.Mod]; ok && info.gamePin == g.Pin {
			delete(c.clients, g.Mod)
		}
	}

	delete(c.expected, g.DisplayPin)
	delete(c.expected, g.ParticipantPin)
	delete(c.gameBySID, g.SID)
	c.games.Remove(g.Pin)
	for _, code := range g.Pins() {
		c.pins.Release(code)
	}

	c.logger.Info("game removed",
		zap.String("game_pin", g.Pin),
		zap.String("reason", reason),
		zap.Int("participants", len(g.Participants)),
		zap.Int("submissions", len(g.Submissions)),
	)
}

// hostGame returns the game id hosts, or a precondition failure.
func (c *Coordinator) hostGame(id string) (*game.Game, error) {
	info, ok := c.clients[id]
	if !ok || info.role != game.RoleHost {
		return nil, preconditionf("connection is not a host")
	}
	g, ok := c.games.Get(info.gamePin)
	if !ok || g.Mod != id {
		return nil, preconditionf("game %s is gone", info.gamePin)
	}
	return g, nil
}

// detachHostLocked unbinds id from the game it currently hosts, leaving that
// game running host-less.
func (c *Coordinator) detachHostLocked(id string) {
	info, ok := c.clients[id]
	if !ok || info.role != game.RoleHost {
		return
	}
	if prev, ok := c.games.Get(info.gamePin); ok && prev.Mod == id {
		prev.Mod = ""
		c.logger.Info("host moved on, previous game kept for rejoin",
			zap.String("conn_id", id),
			zap.String("game_pin", prev.Pin),
		)
	}
	delete(c.clients, id)
}

func (c *Coordinator) send(id string, msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("encoding outbound message", zap.String("conn_id", id), zap.Error(err))
		return
	}
	if err := c.conns.Send(id, data); err != nil {
		c.logger.Debug("dropping outbound message", zap.String("conn_id", id), zap.Error(err))
	}
}

func (c *Coordinator) statsLocked() Stats {
	return Stats{
		Connections:   c.conns.Len(),
		Clients:       len(c.clients),
		Games:         c.games.Len(),
		AvailablePins: c.pins.Available(),
	}
}

func (c *Coordinator) logStats(event string, fields ...zap.Field) {
	s := c.statsLocked()
	c.logger.Info(event, append(fields,
		zap.Int("clients", s.Connections),
		zap.Int("games", s.Games),
		zap.Int("available_pins", s.AvailablePins),
	)...)
}

func (c *Coordinator) dumpExpectedPins() {
	if !c.logger.Core().Enabled(zapcore.DebugLevel) {
		return
	}
	out, err := yaml.Marshal(c.expected)
	if err != nil {
		c.logger.Debug("marshalling expected pins", zap.Error(err))
		return
	}
	c.logger.Debug("expected pins", zap.String("pins", string(out)))
}
