package httpapi

import (
	"context"
	"krysselista/auth"
	"krysselista/contract"
	"krysselista/domain"
	"krysselista/errors"
	"krysselista/observability"
	"krysselista/runtime"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const viewerKey = "viewer"

// SessionOpener hands out the live session of an authenticated viewer.
type SessionOpener interface {
	Open(ctx context.Context, viewer domain.Viewer) (*runtime.Session, error)
	Close(viewerID string)
}

// clientScope names the viewing context, a device or a tab, a request acts on.
type clientScope struct {
	ClientID string `header:"X-Client-ID" binding:"required,max=128"`
}

type Server struct {
	log          *slog.Logger
	sessions     SessionOpener
	tokens       *auth.Tokens
	registry     contract.IRegistry
	monitoring   *observability.MonitoringManager
	gatherer     prometheus.Gatherer
	healthy      func(ctx context.Context) bool
	streamBuffer int
}

type Config struct {
	Log        *slog.Logger
	Sessions   SessionOpener
	Tokens     *auth.Tokens
	Registry   contract.IRegistry
	Monitoring *observability.MonitoringManager
	Gatherer   prometheus.Gatherer
	// Healthy reports the store backend state on /healthz. Nil means always healthy.
	Healthy      func(ctx context.Context) bool
	StreamBuffer int
}

func NewServer(cfg Config) *Server {
	if cfg.Healthy == nil {
		cfg.Healthy = func(context.Context) bool { return true }
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		log:          cfg.Log,
		sessions:     cfg.Sessions,
		tokens:       cfg.Tokens,
		registry:     cfg.Registry,
		monitoring:   cfg.Monitoring,
		gatherer:     cfg.Gatherer,
		healthy:      cfg.Healthy,
		streamBuffer: cfg.StreamBuffer,
	}
}

// Router wires every route on a fresh gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.health)

	v1 := r.Group("/v1", s.bearerAuth())
	v1.GET("/threads", s.listThreads)
	v1.GET("/threads/open", s.openThread)
	v1.POST("/threads/select", s.selectThread)
	v1.DELETE("/threads/select", s.deselectThread)
	v1.POST("/messages", s.sendMessage)
	v1.DELETE("/session", s.logout)
	v1.GET("/subjects/startable", s.startableSubjects)
	v1.POST("/subjects/:id/attendance", s.transition)
	v1.GET("/subjects/:id/attendance", s.history)
	v1.GET("/attendance/stats", s.attendanceStats)
	v1.GET("/events", s.events)
	v1.GET("/monitoring", s.staffOnly(), s.monitoringStats)
	return r
}

func (s *Server) health(c *gin.Context) {
	healthy := s.healthy(c.Request.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "store": healthy})
}

// bearerAuth enforces bearer JWT tokens and stores the viewer they name.
func (s *Server) bearerAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			s.abort(c, errors.ErrMissingToken)
			return
		}
		viewer, err := s.tokens.Parse(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			s.abort(c, err)
			return
		}
		c.Set(viewerKey, viewer)
		c.Next()
	}
}

func (s *Server) staffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !viewerFrom(c).IsStaff() {
			s.abort(c, errors.ErrAccess)
			return
		}
		c.Next()
	}
}

func viewerFrom(c *gin.Context) domain.Viewer {
	return c.MustGet(viewerKey).(domain.Viewer)
}

// clientID reads the X-Client-ID header or answers 400.
func (s *Server) clientID(c *gin.Context) (string, bool) {
	var scope clientScope
	if err := c.ShouldBindHeader(&scope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", false
	}
	return scope.ClientID, true
}

// session opens the viewer's session or aborts the request.
func (s *Server) session(c *gin.Context) (*runtime.Session, bool) {
	session, err := s.sessions.Open(c.Request.Context(), viewerFrom(c))
	if err != nil {
		s.abort(c, err)
		return nil, false
	}
	return session, true
}
