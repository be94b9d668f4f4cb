// Package control drives the lifecycle of the one managed service: launch,
// readiness-watched background starts, supervised shutdown, restart.
package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/loykin/solo/internal/config"
	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/pidfile"
	"github.com/loykin/solo/internal/status"
)

// ErrAlreadyRunning rejects a start while the pid record points at a live
// process.
var ErrAlreadyRunning = errors.New("service already running")

// Controller owns every lifecycle transition of the managed service. The
// mutex serializes transitions when the controller is embedded in a long
// running server; CLI invocations run one operation and exit.
type Controller struct {
	cfg  *config.Config
	reg  *pidfile.Registry
	sink history.Sink
	mu   sync.Mutex
}

// New builds a controller over cfg. sink may be nil, in which case lifecycle
// events are not exported.
func New(cfg *config.Config, sink history.Sink) *Controller {
	cfg.Normalize()
	return &Controller{cfg: cfg, reg: pidfile.New(cfg.Service.PIDFile), sink: sink}
}

// Registry exposes the pid registry, for status reporting and serve wiring.
func (c *Controller) Registry() *pidfile.Registry { return c.reg }

// Service returns the managed service's name.
func (c *Controller) Service() string { return c.cfg.Service.Name }

// Status reports whether the service runs, under which pid, and best-effort
// usage.
func (c *Controller) Status() status.Status {
	return status.Reporter{Service: c.cfg.Service.Name, Registry: c.reg}.Status()
}

func (c *Controller) record(t history.EventType, pid int, detail string) {
	if c.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	history.Record(ctx, c.sink, history.Event{
		Type:    t,
		Service: c.cfg.Service.Name,
		PID:     pid,
		Detail:  detail,
	})
}

// openLogFiles opens the two append-mode streams handed to a background
// child. Real file handles, not pipes: the child must keep logging after this
// controller process exits.
func (c *Controller) openLogFiles() (*os.File, *os.File, error) {
	svc := c.cfg.Service
	if err := os.MkdirAll(svc.LogDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	out, err := os.OpenFile(svc.StdoutLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, nil, fmt.Errorf("open stdout log: %w", err)
	}
	errLog, err := os.OpenFile(svc.StderrLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		_ = out.Close()
		return nil, nil, fmt.Errorf("open stderr log: %w", err)
	}
	return out, errLog, nil
}

// buildCommand turns the configured command line into an exec.Cmd.
func buildCommand(cmdStr string) *exec.Cmd {
	cmdStr = strings.TrimSpace(cmdStr)
	if cmdStr == "" {
		// #nosec G204
		return exec.Command("/bin/true")
	}
	// If the command already explicitly uses a shell, honor it without adding another layer.
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// Always use absolute shell path to avoid PATH dependency when Env is overridden.
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	// Fallback: when metacharacters are present, use /bin/sh -c
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	name := parts[0]
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}
	// #nosec G204
	return exec.Command(name, args...)
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// It preserves the substring after "-c " verbatim to avoid breaking quoting.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			// If after is wrapped in single or double quotes, strip one pair so that
			// we pass the actual script to the shell (the outer quotes would otherwise
			// inhibit parsing/redirection inside the script).
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}
