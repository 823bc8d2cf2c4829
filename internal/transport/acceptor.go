// Package transport accepts WebSocket connections and pumps frames between
// each socket and a SessionHandler.
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/argos/internal/config"
	"github.com/cory-johannsen/argos/internal/registry"
)

// SessionHandler receives connection lifecycle events and inbound frames.
// Calls for one connection id are never concurrent with each other.
type SessionHandler interface {
	Connect(id string, conn registry.Conn) error
	Disconnect(id string)
	HandleMessage(id string, data []byte) error
}

// Acceptor upgrades HTTP requests to WebSocket sessions and dispatches them
// to a SessionHandler.
type Acceptor struct {
	cfg      config.TransportConfig
	handler  SessionHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	sockets map[string]*websocket.Conn
	stopped bool
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil.
// Postcondition: Returns an Acceptor that serves upgrades until Stop is called.
func NewAcceptor(cfg config.TransportConfig, handler SessionHandler, logger *zap.Logger) *Acceptor {
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		sockets: make(map[string]*websocket.Conn),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	return a
}

// checkOrigin admits requests without an Origin header and, when an allow
// list is configured, only the listed origins.
func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range a.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeHTTP upgrades the request and starts the session pumps.
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	stopped := a.stopped
	a.mu.Unlock()
	if stopped {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already written the error response
		a.logger.Info("websocket upgrade rejected",
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("origin", r.Header.Get("Origin")),
			zap.Error(err),
		)
		return
	}

	id := uuid.NewString()
	s := &session{
		id:     id,
		ws:     ws,
		outbox: registry.NewOutbox(id, a.cfg.SendBuffer),
		start:  time.Now(),
	}
	if a.cfg.RateLimit > 0 {
		burst := a.cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(a.cfg.RateLimit), burst)
	}

	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		_ = ws.Close()
		return
	}
	a.sockets[id] = ws
	a.wg.Add(2)
	a.mu.Unlock()

	logger := a.logger.With(zap.String("conn_id", id))
	logger.Info("client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("ws_key", key),
	)

	go a.writePump(s, logger)
	if err := a.handler.Connect(id, s.outbox); err != nil {
		logger.Error("registering connection", zap.Error(err))
		_ = s.outbox.Close()
		a.forget(id)
		a.wg.Done()
		return
	}
	go a.readPump(s, logger)
}

// Start blocks until Stop so the acceptor can run as a lifecycle service.
// Connections are accepted through ServeHTTP.
func (a *Acceptor) Start() error {
	<-a.ctx.Done()
	return nil
}

// Stop closes every live socket and waits for all pumps to exit.
//
// Postcondition: Every session has been disconnected from the handler.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.cancel()
	for _, ws := range a.sockets {
		_ = ws.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("websocket acceptor stopped")
}

// Len returns the number of live sockets.
func (a *Acceptor) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sockets)
}

func (a *Acceptor) forget(id string) {
	a.mu.Lock()
	delete(a.sockets, id)
	a.mu.Unlock()
}
