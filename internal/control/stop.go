package control

import (
	"log/slog"
	"syscall"
	"time"

	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/marker"
	"github.com/loykin/solo/internal/metrics"
)

// StopOutcome distinguishes a stop that had to do work from the idempotent
// no-op on an already stopped service.
type StopOutcome int

const (
	Stopped StopOutcome = iota
	WasNotRunning
)

func (o StopOutcome) String() string {
	switch o {
	case Stopped:
		return "stopped"
	case WasNotRunning:
		return "was not running"
	default:
		return "unknown"
	}
}

// StopResult describes a completed stop.
type StopResult struct {
	Outcome StopOutcome
	PID     int
	// Killed is set when the grace window expired and the one forceful
	// signal was issued.
	Killed bool
}

// Stop asks the service to exit gracefully and polls until it does. If the
// grace window is exhausted it sends exactly one SIGKILL and clears the pid
// record regardless of that signal's outcome. Stopping an already stopped
// service is a no-op that still clears stale state.
func (c *Controller) Stop() (StopResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop()
}

func (c *Controller) stop() (StopResult, error) {
	svc := c.cfg.Service
	pid, ok := c.reg.Current()
	if !ok {
		c.reg.Remove()
		marker.Remove(svc.MarkerFile)
		slog.Info("service not running", "service", svc.Name)
		return StopResult{Outcome: WasNotRunning}, nil
	}

	slog.Info("stopping service", "service", svc.Name, "pid", pid)
	_ = terminate(pid, syscall.SIGTERM)

	ticker := time.NewTicker(c.cfg.Stop.Interval)
	defer ticker.Stop()
	for attempt := 0; attempt < c.cfg.Stop.MaxAttempts; attempt++ {
		<-ticker.C
		if !c.reg.IsRunning(pid) {
			c.reg.Remove()
			marker.Remove(svc.MarkerFile)
			metrics.IncStop(svc.Name)
			metrics.SetUp(svc.Name, false)
			slog.Info("service stopped", "service", svc.Name, "pid", pid)
			c.record(history.EventStopped, pid, "graceful")
			return StopResult{Outcome: Stopped, PID: pid}, nil
		}
	}

	// Grace window exhausted: one forceful signal, and the record goes away
	// no matter what the signal itself does.
	killErr := terminate(pid, syscall.SIGKILL)
	c.reg.Remove()
	marker.Remove(svc.MarkerFile)
	metrics.IncStop(svc.Name)
	metrics.IncKill(svc.Name)
	metrics.SetUp(svc.Name, false)
	if killErr != nil {
		slog.Warn("grace window exhausted and kill signal failed", "service", svc.Name, "pid", pid, "error", killErr)
	} else {
		slog.Warn("grace window exhausted, killed service", "service", svc.Name, "pid", pid)
	}
	c.record(history.EventStopped, pid, "killed")
	return StopResult{Outcome: Stopped, PID: pid, Killed: true}, nil
}

// terminate signals pid's whole process group when pid leads one (daemon
// children do, via setsid) and falls back to the single pid otherwise.
func terminate(pid int, sig syscall.Signal) error {
	if err := syscall.Kill(-pid, sig); err == nil {
		return nil
	}
	return syscall.Kill(pid, sig)
}
