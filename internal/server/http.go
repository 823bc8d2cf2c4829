package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HTTPService serves an http.Handler as a lifecycle Service.
type HTTPService struct {
	srv     *http.Server
	timeout time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewHTTPService binds handler to addr. Stop waits up to shutdownTimeout for
// in-flight requests before forcing connections closed.
//
// Precondition: handler and logger must be non-nil.
func NewHTTPService(addr string, handler http.Handler, shutdownTimeout time.Duration, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		timeout: shutdownTimeout,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Start listens and serves until Stop.
//
// Postcondition: Returns nil after a graceful Stop, or the listen/serve error.
func (h *HTTPService) Start() error {
	ln, err := net.Listen("tcp", h.srv.Addr)
	if err != nil {
		close(h.ready)
		return err
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()
	close(h.ready)

	h.logger.Info("http listening", zap.String("addr", ln.Addr().String()))
	if err := h.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr blocks until Start has bound its listener and returns the bound address,
// or "" if binding failed.
func (h *HTTPService) Addr() string {
	<-h.ready
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (h *HTTPService) Stop() {
	ctx := context.Background()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	if err := h.srv.Shutdown(ctx); err != nil {
		h.logger.Warn("http shutdown", zap.Error(err))
		_ = h.srv.Close()
	}
}
