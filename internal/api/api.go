// Package api implements the authority's read-only HTTP debug/metrics
// surface. See SPEC_FULL.md §2.5 and §5.7. Grounded in
// rustyguts-bken/server/api.go's pattern of a small REST surface
// running alongside the main protocol loop.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// SessionView is the read-only surface the HTTP handlers are allowed to
// touch. The authority implements this with its own exported
// accessors; the handler goroutine never reaches into the authority's
// mutex directly.
type SessionView interface {
	ClientCount() int
	ClickCount() int
	IsGameOver() bool
}

// Server is the authority's debug/metrics HTTP surface.
type Server struct {
	session SessionView
	echo    *echo.Echo
	log     *logrus.Entry
}

// New constructs a Server with routes registered but not yet listening.
// promHandler may be nil, in which case /metrics serves the default
// Prometheus registry through promhttp.Handler().
func New(session SessionView, promHandler http.Handler, log *logrus.Entry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{session: session, echo: e, log: log}

	e.GET("/health", s.handleHealth)
	e.GET("/api/session", s.handleSession)
	if promHandler != nil {
		e.GET("/metrics", echo.WrapHandler(promHandler))
	} else {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	return s
}

// Run starts listening on addr (e.g. ":12001") and blocks until ctx is
// canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutCtx)
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Clients: s.session.ClientCount(),
	})
}

// SessionResponse is the payload for GET /api/session (spec.md §2.5).
type SessionResponse struct {
	Clients    int  `json:"clients"`
	ClickCount int  `json:"click_count"`
	GameOver   bool `json:"game_over"`
}

func (s *Server) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, SessionResponse{
		Clients:    s.session.ClientCount(),
		ClickCount: s.session.ClickCount(),
		GameOver:   s.session.IsGameOver(),
	})
}
