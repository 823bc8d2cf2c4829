// Package httpapi exposes the HTTP surface around the session coordinator:
// the WebSocket endpoint, session lookups, join QR codes, stored content and
// health.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/cory-johannsen/argos/internal/content"
	"github.com/cory-johannsen/argos/internal/coordinator"
	"github.com/cory-johannsen/argos/internal/game"
	"github.com/cory-johannsen/argos/internal/observability"
)

const (
	qrSize        = 320
	healthTimeout = 2 * time.Second
)

// Sessions is the read-only view of the coordinator the HTTP handlers need.
type Sessions interface {
	HasSession(sid string) bool
	PinRole(code string) (game.Role, bool)
	Stats() coordinator.Stats
}

// Checker reports the health of a backing service.
type Checker interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// Options configures the router.
type Options struct {
	// PublicURL is the participant page encoded in join QR codes. When empty
	// the request's own scheme and host are used.
	PublicURL string
	// AllowedOrigins feeds the CORS policy. Empty allows all origins.
	AllowedOrigins []string
	// Checkers are probed by /healthz, keyed by name.
	Checkers map[string]Checker
}

type api struct {
	sessions Sessions
	store    content.Store
	opts     Options
	logger   *zap.Logger
}

// NewRouter builds the gin engine.
//
// Precondition: ws, sessions, store and logger must be non-nil.
// Postcondition: Returns a handler serving /ws, /api/sid/:sid, /api/qr/:pin, /gen/:file and /healthz.
func NewRouter(ws http.Handler, sessions Sessions, store content.Store, opts Options, logger *zap.Logger) *gin.Engine {
	a := &api{sessions: sessions, store: store, opts: opts, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), observability.GinLogger(logger))
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	r.GET("/ws", gin.WrapH(ws))
	r.GET("/api/sid/:sid", a.checkSID)
	r.GET("/api/qr/:pin", a.joinQR)
	r.GET("/gen/:file", a.storedContent)
	r.GET("/healthz", a.health)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

// checkSID lets a returning host test its stored secret before opening a socket.
func (a *api) checkSID(c *gin.Context) {
	if a.sessions.HasSession(c.Param("sid")) {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{})
}

func (a *api) joinQR(c *gin.Context) {
	code := c.Param("pin")
	if role, ok := a.sessions.PinRole(code); !ok || role != game.RoleParticipant {
		c.Status(http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(a.joinURL(c.Request, code), qrcode.Medium, qrSize)
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (a *api) joinURL(r *http.Request, code string) string {
	base := a.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host + "/"
	}
	return base + "?pin=" + url.QueryEscape(code)
}

func (a *api) storedContent(c *gin.Context) {
	hash, ok := content.ParseFileName(c.Param("file"))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	data, err := a.store.Get(c.Request.Context(), hash)
	if errors.Is(err, content.ErrNotFound) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
		return
	}
	// content is addressed by its hash and never changes
	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.Data(http.StatusOK, "image/png", data)
}

func (a *api) health(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, checker := range a.opts.Checkers {
		if err := checker.Health(c.Request.Context(), healthTimeout); err != nil {
			a.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	c.JSON(status, gin.H{
		"service": observability.ServiceName,
		"stats":   a.sessions.Stats(),
		"checks":  checks,
	})
}
