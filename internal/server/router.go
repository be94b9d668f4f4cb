package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/solo/internal/config"
	"github.com/loykin/solo/internal/control"
	"github.com/loykin/solo/internal/metrics"
	"github.com/loykin/solo/internal/tls"
)

// Router provides embeddable HTTP handlers for the managed service.
// Endpoints:
//
//	GET  {basePath}/status
//	POST {basePath}/start
//	POST {basePath}/stop
//	POST {basePath}/restart
//	GET  /healthz
//	GET  /metrics
//
// Server-side launches are always daemon mode; a foreground child would be
// tied to the server's stdio. basePath may be empty or start with '/'; no
// trailing slash.
type Router struct {
	ctl      *control.Controller
	basePath string
}

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/start, /api/stop, /api/status.
func NewRouter(ctl *control.Controller, basePath string) *Router {
	return &Router{ctl: ctl, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	g.GET("/healthz", r.handleHealthz)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// The returned server can be shut down with its Close or Shutdown methods.
func NewServer(addr, basePath string, ctl *control.Controller) (*http.Server, error) {
	server := newServer(addr, basePath, ctl)
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// NewTLSServer starts a standalone HTTPS server on addr using this router.
// The TLS settings must be enabled; certificates come either from explicit
// cert_file/key_file paths or from a managed dir, optionally auto-generated.
func NewTLSServer(addr, basePath string, tc *config.TLSConfig, ctl *control.Controller) (*http.Server, error) {
	tlsCfg, err := tls.Setup(tc)
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return nil, errors.New("tls is not enabled in the server config")
	}
	server := newServer(addr, basePath, ctl)
	server.TLSConfig = tlsCfg
	// Cert and key paths stay empty: TLSConfig.GetCertificate loads them.
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server, nil
}

func newServer(addr, basePath string, ctl *control.Controller) *http.Server {
	r := NewRouter(ctl, basePath)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type startResp struct {
	OK      bool   `json:"ok"`
	PID     int    `json:"pid"`
	Outcome string `json:"outcome"`
	Port    int    `json:"port,omitempty"`
}

type stopResp struct {
	OK      bool   `json:"ok"`
	Outcome string `json:"outcome"`
	PID     int    `json:"pid,omitempty"`
	Killed  bool   `json:"killed,omitempty"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.ctl.Status())
}

func (r *Router) handleStart(c *gin.Context) {
	res, err := r.ctl.Start(true)
	if err != nil {
		if errors.Is(err, control.ErrAlreadyRunning) {
			writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
			return
		}
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, startResp{
		OK:      true,
		PID:     res.PID,
		Outcome: res.Readiness.Outcome.String(),
		Port:    res.Readiness.Port,
	})
}

func (r *Router) handleStop(c *gin.Context) {
	res, err := r.ctl.Stop()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, stopResp{
		OK:      true,
		Outcome: res.Outcome.String(),
		PID:     res.PID,
		Killed:  res.Killed,
	})
}

func (r *Router) handleRestart(c *gin.Context) {
	res, err := r.ctl.Restart(true)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, startResp{
		OK:      true,
		PID:     res.PID,
		Outcome: res.Readiness.Outcome.String(),
		Port:    res.Readiness.Port,
	})
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"ok": true, "service": r.ctl.Service()})
}
