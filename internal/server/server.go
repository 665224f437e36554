package server

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"margin-alerts/internal/config"
	"margin-alerts/internal/fetcher"
	"margin-alerts/internal/service"
	"margin-alerts/internal/storage"
	"margin-alerts/internal/version"
)

// Checker is the part of the service the HTTP surface drives.
type Checker interface {
	Run(ctx context.Context, check service.Check) (service.Result, error)
	State(ctx context.Context) (storage.State, error)
	SendTest(ctx context.Context, text string) error
	RecurringRunning() bool
}

// Server exposes health, manual triggers and metrics.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	checker    Checker
	logger     zerolog.Logger
}

// NewServer builds the router. environment selects the gin mode.
func NewServer(cfg config.ServerConfig, environment string, checker Checker, logger zerolog.Logger) *Server {
	gin.SetMode(ginMode(environment))
	router := gin.New()
	s := &Server{
		router:  router,
		checker: checker,
		logger:  logger.With().Str("component", "http").Logger(),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.health)
	s.router.GET("/healthz", s.health)

	triggers := map[string]service.Check{
		"/run/morning":   service.CheckMorning,
		"/run/afternoon": service.CheckAfternoon,
		"/run/recurring": service.CheckRecurring,
		"/run/10":        service.CheckMorning,
		"/run/14":        service.CheckAfternoon,
		"/run/5m":        service.CheckRecurring,
	}
	for path, check := range triggers {
		s.router.GET(path, s.trigger(check))
		s.router.POST(path, s.trigger(check))
	}

	s.router.GET("/test", s.test)
	s.router.POST("/test", s.test)
	s.router.GET("/state", s.state)
	s.router.GET("/routes", s.routes)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func ginMode(environment string) string {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "development", "dev":
		return gin.DebugMode
	case "test":
		return gin.TestMode
	default:
		return gin.ReleaseMode
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"status":            "alive",
		"now_utc":           time.Now().UTC().Format(time.RFC3339),
		"version":           version.String(),
		"recurring_running": s.checker.RecurringRunning(),
	})
}

func (s *Server) trigger(check service.Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		// a client hanging up must not cut a check between persist and notify;
		// the service's check timeout bounds it instead
		res, err := s.checker.Run(context.WithoutCancel(c.Request.Context()), check)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, fetcher.ErrRetrieval) {
				status = http.StatusBadGateway
			}
			_ = c.Error(err)
			c.JSON(status, gin.H{"ok": false, "ran": check, "error": err.Error(), "result": res})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true, "ran": check, "result": res})
	}
}

func (s *Server) test(c *gin.Context) {
	text := c.Query("text")
	if err := s.checker.SendTest(context.WithoutCancel(c.Request.Context()), text); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sent": true})
}

func (s *Server) state(c *gin.Context) {
	st, err := s.checker.State(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": st, "recurring_running": s.checker.RecurringRunning()})
}

func (s *Server) routes(c *gin.Context) {
	var out []string
	for _, r := range s.router.Routes() {
		out = append(out, r.Method+" "+r.Path)
	}
	sort.Strings(out)
	c.JSON(http.StatusOK, gin.H{"routes": out})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = s.logger.Error()
		case status >= 400:
			event = s.logger.Warn()
		default:
			event = s.logger.Debug()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		event.Int("status", status).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int64("latency_ms", time.Since(start).Milliseconds()).
			Msg("request completed")
	}
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
