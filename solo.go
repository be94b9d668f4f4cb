// Package solo supervises one long-running service process: it launches the
// service, confirms readiness from a startup marker file or from its stdout,
// reports liveness and resource usage, and tears the service down again.
// This file is the public facade for embedding; the solo binary under
// cmd/solo is a thin CLI over the same API.
package solo

import (
	"context"
	"io"
	"net/http"
	"time"

	cfg "github.com/loykin/solo/internal/config"
	"github.com/loykin/solo/internal/control"
	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/history/factory"
	"github.com/loykin/solo/internal/logtail"
	"github.com/loykin/solo/internal/metrics"
	"github.com/loykin/solo/internal/readiness"
	iapi "github.com/loykin/solo/internal/server"
	"github.com/loykin/solo/internal/status"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Config = cfg.Config

type ServiceConfig = cfg.ServiceConfig

type TLSConfig = cfg.TLSConfig

type Status = status.Status

type StartResult = control.StartResult

type StopResult = control.StopResult

type ReadinessResult = readiness.Result

type HistorySink = history.Sink

type Event = history.Event

// Readiness verdicts for StartResult.Readiness.Outcome.
const (
	ReadinessSuccess = readiness.Success
	ReadinessFailure = readiness.Failure
	ReadinessTimeout = readiness.Timeout
)

// Stop verdicts for StopResult.Outcome.
const (
	Stopped       = control.Stopped
	WasNotRunning = control.WasNotRunning
)

// Lifecycle event kinds recorded to a HistorySink.
const (
	EventStarted      = history.EventStarted
	EventStartFailed  = history.EventStartFailed
	EventStartTimeout = history.EventStartTimeout
	EventStopped      = history.EventStopped
	EventRestarted    = history.EventRestarted
)

// ErrAlreadyRunning is returned by Start when the pid record points at a live
// process.
var ErrAlreadyRunning = control.ErrAlreadyRunning

// Controller is a thin facade over internal/control.Controller.
// It provides a stable public API for embedding.
type Controller struct{ inner *control.Controller }

// New builds a controller without history recording.
func New(c *Config) *Controller { return NewWithHistory(c, nil) }

// NewWithHistory builds a controller that records lifecycle events to sink.
// A nil sink disables recording.
func NewWithHistory(c *Config, sink HistorySink) *Controller {
	return &Controller{inner: control.New(c, sink)}
}

func (c *Controller) Start(daemon bool) (StartResult, error) { return c.inner.Start(daemon) }
func (c *Controller) Stop() (StopResult, error)              { return c.inner.Stop() }
func (c *Controller) Restart(daemon bool) (StartResult, error) {
	return c.inner.Restart(daemon)
}
func (c *Controller) Status() Status  { return c.inner.Status() }
func (c *Controller) Service() string { return c.inner.Service() }

// DefaultConfig returns a normalized config for name running command, with
// every derived file placed under baseDir.
func DefaultConfig(name, command, baseDir string) *Config {
	return cfg.Default(name, command, baseDir)
}

// LoadConfig reads and normalizes a TOML config file.
func LoadConfig(path string) (*Config, error) {
	return cfg.Load(path)
}

// NewHistorySink builds a lifecycle-event sink from a DSN. Supported schemes:
// sqlite:// (or a bare file path), postgres://, clickhouse:// and
// opensearch://.
func NewHistorySink(dsn string) (HistorySink, error) {
	return factory.NewSinkFromDSN(dsn)
}

// TailLogs writes the last n lines of the service stdout log to w.
func TailLogs(c *Config, w io.Writer, n int) error {
	return logtail.Print(w, c.Service.StdoutLog, n)
}

// FollowLogs streams the service stdout log to w until ctx is cancelled.
func FollowLogs(ctx context.Context, c *Config, w io.Writer, n int) error {
	return logtail.Follow(ctx, w, c.Service.StdoutLog, n, logtail.DefaultFollowInterval)
}

// NewHTTPServer starts an HTTP server exposing the controller API.
func NewHTTPServer(addr, basePath string, c *Controller) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, c.inner)
}

// NewTLSHTTPServer is NewHTTPServer over HTTPS, using the [server] tls
// settings from the config.
func NewTLSHTTPServer(addr, basePath string, tc *TLSConfig, c *Controller) (*http.Server, error) {
	return iapi.NewTLSServer(addr, basePath, tc, c.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
