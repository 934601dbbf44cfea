// Package health runs a loopback-only diagnostic HTTP server exposing
// /healthz and /debugz. It is not part of the wire protocol to the control
// server — it exists purely so an operator on the same machine can inspect
// daemon state with curl.
//
// Grounded on the Echo + otelecho + graceful-shutdown block every teacher
// cmd/*/main.go repeats (closest: apps/public-api-service/cmd or main.go),
// and on packages/go-core/middleware/null_to_empty.go, folded in here since
// the multi-tenant header-propagation concerns in that package no longer
// apply to a single-user daemon.
package health

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time view of daemon state, supplied by the caller
// on every /debugz request rather than cached — DaemonCore owns the real
// state, this package only renders it.
type Snapshot struct {
	Connected     bool           `json:"connected"`
	ServerAddress string         `json:"serverAddress,omitempty"`
	WriterHeld    bool           `json:"writerHeld"`
	WatchedCount  int            `json:"watchedSessionCount"`
	PendingCount  int            `json:"pendingApprovalCount"`
	DirectoryUp   bool           `json:"directoryUp"`
	UptimeSeconds int64          `json:"uptimeSeconds"`
	ExtraCounters map[string]int `json:"extraCounters,omitempty"`
}

// SnapshotFunc is called on every /debugz request to obtain the current
// state to render.
type SnapshotFunc func() Snapshot

// Server is the loopback diagnostic HTTP server.
type Server struct {
	echo   *echo.Echo
	logger *zap.Logger
	addr   string
}

// New builds a health server bound to addr (expected to be a loopback
// address such as "127.0.0.1:9797"). snapshot is called fresh on every
// /debugz request.
func New(addr string, snapshot SnapshotFunc, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(otelecho.Middleware("vlaude-daemon"))
	e.Use(middleware.Recover())
	e.Use(nullToEmptyArray())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	e.GET("/debugz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, snapshot())
	})

	return &Server{echo: e, logger: logger, addr: addr}
}

// Start launches the server in a background goroutine. Bind failures are
// logged, not fatal — the diagnostic server is a convenience, never a
// dependency of the daemon's core function.
func (s *Server) Start() {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server failed", zap.Error(err))
		}
	}()
}

// Shutdown gracefully stops the server with a 5-second deadline, matching
// the shutdown timeout convention of every teacher main.go's Echo instance.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// nullToEmptyArray rewrites a response body that is exactly JSON `null` to
// `[]` on successful responses, adapted from
// packages/go-core/middleware/null_to_empty.go. Fields nested inside a body
// are not rewritten; an empty ExtraCounters map is omitted from /debugz by
// its omitempty tag.
func nullToEmptyArray() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rec := &bodyInterceptor{ResponseWriter: c.Response().Writer, buf: &bytes.Buffer{}}
			c.Response().Writer = rec

			if err := next(c); err != nil {
				return err
			}

			body := rec.buf.Bytes()
			ct := c.Response().Header().Get(echo.HeaderContentType)
			isJSON := len(ct) >= 16 && ct[:16] == "application/json"
			statusOK := c.Response().Status >= 200 && c.Response().Status < 300

			if isJSON && statusOK && bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
				body = []byte("[]")
				c.Response().Header().Set("Content-Length", "2")
			}

			rec.ResponseWriter.WriteHeader(c.Response().Status)
			_, writeErr := rec.ResponseWriter.Write(body)
			return writeErr
		}
	}
}

type bodyInterceptor struct {
	http.ResponseWriter
	buf *bytes.Buffer
}

func (b *bodyInterceptor) Write(data []byte) (int, error) {
	return b.buf.Write(data)
}

func (b *bodyInterceptor) WriteHeader(_ int) {}
