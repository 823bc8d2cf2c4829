package transport

import (
	"errors"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/argos/internal/registry"
)

// session is one upgraded connection. The read pump owns inbound frames and
// the handler callbacks; the write pump owns every write to ws.
type session struct {
	id      string
	ws      *websocket.Conn
	outbox  *registry.Outbox
	limiter *rate.Limiter
	start   time.Time
}

// readPump feeds inbound frames to the handler until the socket fails, then
// disconnects the session.
func (a *Acceptor) readPump(s *session, logger *zap.Logger) {
	defer a.wg.Done()
	defer func() {
		a.handler.Disconnect(s.id)
		_ = s.outbox.Close()
		a.forget(s.id)
		logger.Info("client disconnected", zap.Duration("duration", time.Since(s.start)))
	}()

	pongWait := a.cfg.PongWait
	if pongWait > 0 {
		_ = s.ws.SetReadDeadline(time.Now().Add(pongWait))
		s.ws.SetPongHandler(func(string) error {
			return s.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, r, err := s.ws.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		data, err := readFrame(r, a.cfg.MaxMessageBytes)
		if err != nil {
			logger.Debug("reading frame", zap.Error(err))
			return
		}
		if limit := a.cfg.MaxMessageBytes; limit > 0 && int64(len(data)) > limit {
			logger.Warn("oversized frame", zap.String("limit", humanize.IBytes(uint64(limit))))
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(a.ctx); err != nil {
				return
			}
		}
		// rejections are logged by the handler; the connection stays open
		_ = a.handler.HandleMessage(s.id, data)
	}
}

// readFrame reads at most limit+1 bytes of a frame and discards the rest, so
// an oversized frame is reported as such without being buffered whole.
func readFrame(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// writePump drains the outbox onto the socket and keeps the peer alive with
// pings. A closed outbox sends a close frame and ends the session.
func (a *Acceptor) writePump(s *session, logger *zap.Logger) {
	defer a.wg.Done()

	var tick <-chan time.Time
	if a.cfg.PingInterval > 0 {
		ticker := time.NewTicker(a.cfg.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer s.ws.Close()

	for {
		select {
		case msg, ok := <-s.outbox.Events():
			a.setWriteDeadline(s.ws)
			if !ok {
				err := s.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
					logger.Debug("writing close frame", zap.Error(err))
				}
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-tick:
			a.setWriteDeadline(s.ws)
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (a *Acceptor) setWriteDeadline(ws *websocket.Conn) {
	if a.cfg.WriteTimeout > 0 {
		_ = ws.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	}
}
