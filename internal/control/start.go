package control

import (
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/marker"
	"github.com/loykin/solo/internal/metrics"
	"github.com/loykin/solo/internal/readiness"
)

// StartResult describes a completed launch attempt.
type StartResult struct {
	PID    int
	Daemon bool
	// Readiness is only meaningful for daemon launches; foreground runs
	// resolve through the child's own exit.
	Readiness readiness.Result
}

// Start launches the service. Foreground mode attaches the child to the
// caller's terminal and blocks until it exits. Daemon mode detaches the child
// from this process's lifetime, records its pid optimistically, and then
// waits for the readiness watch to resolve. A readiness timeout is soft: the
// result carries it, but no error is returned.
func (c *Controller) Start(daemon bool) (StartResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start(daemon)
}

func (c *Controller) start(daemon bool) (StartResult, error) {
	svc := c.cfg.Service
	if pid, ok := c.reg.Current(); ok {
		return StartResult{PID: pid}, fmt.Errorf("%w with pid %d", ErrAlreadyRunning, pid)
	}
	// Whatever record or marker survived the previous run is stale now.
	c.reg.Remove()
	marker.Remove(svc.MarkerFile)

	env, err := svc.Environ()
	if err != nil {
		return StartResult{}, fmt.Errorf("resolve environment: %w", err)
	}
	if daemon {
		return c.startDaemon(env)
	}
	return c.startForeground(env)
}

// startForeground runs attached to the caller's stdio. The child stays in our
// process group so terminal signals reach it directly. A non-zero exit is
// logged, not escalated: interactive runs end however the service ends.
func (c *Controller) startForeground(env []string) (StartResult, error) {
	svc := c.cfg.Service
	cmd := buildCommand(svc.Command)
	if svc.WorkDir != "" {
		cmd.Dir = svc.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		metrics.IncStartFailure(svc.Name)
		c.record(history.EventStartFailed, 0, err.Error())
		return StartResult{}, fmt.Errorf("start %s: %w", svc.Name, err)
	}
	pid := cmd.Process.Pid
	c.reg.Write(pid)
	slog.Info("service started", "service", svc.Name, "pid", pid, "mode", "foreground")
	metrics.IncStart(svc.Name)
	metrics.SetUp(svc.Name, true)
	c.record(history.EventStarted, pid, "foreground")

	waitErr := cmd.Wait()
	c.reg.Remove()
	metrics.SetUp(svc.Name, false)
	if waitErr != nil {
		slog.Warn("service exited with error", "service", svc.Name, "pid", pid, "error", waitErr)
		c.record(history.EventStopped, pid, waitErr.Error())
	} else {
		c.record(history.EventStopped, pid, "exit 0")
	}
	return StartResult{PID: pid}, nil
}

// startDaemon spawns the child in its own session so it survives this
// process, then blocks on the readiness watch and performs whatever cleanup
// the watch's verdict demands.
func (c *Controller) startDaemon(env []string) (StartResult, error) {
	svc := c.cfg.Service
	out, errLog, err := c.openLogFiles()
	if err != nil {
		return StartResult{}, err
	}

	cmd := buildCommand(svc.Command)
	if svc.WorkDir != "" {
		cmd.Dir = svc.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.Stdout = out
	cmd.Stderr = errLog
	// New session: detach from our terminal and lifetime. The child becomes
	// a group leader, which is what lets stop signal its whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	spawned := time.Now()
	if err := cmd.Start(); err != nil {
		_ = out.Close()
		_ = errLog.Close()
		metrics.IncStartFailure(svc.Name)
		c.record(history.EventStartFailed, 0, err.Error())
		return StartResult{}, fmt.Errorf("start %s: %w", svc.Name, err)
	}
	pid := cmd.Process.Pid
	// The child holds its own copies of the log handles.
	_ = out.Close()
	_ = errLog.Close()
	// Optimistic record; the readiness verdict decides whether it stays.
	c.reg.Write(pid)
	// Reap a child that dies while we poll, so liveness sees the death
	// instead of a zombie.
	go func() { _ = cmd.Wait() }()

	slog.Info("service starting", "service", svc.Name, "pid", pid, "mode", "daemon")

	det := &readiness.Detector{
		Registry:       c.reg,
		MarkerPath:     svc.MarkerFile,
		StdoutLog:      svc.StdoutLog,
		Interval:       c.cfg.Readiness.Interval,
		MaxTicks:       c.cfg.Readiness.MaxTicks,
		ScanLines:      c.cfg.Readiness.ScanLines,
		SuccessMarker:  c.cfg.Readiness.SuccessMarker,
		FailureMarkers: c.cfg.Readiness.FailureMarkers,
	}
	res := det.Wait(pid)
	result := StartResult{PID: pid, Daemon: true, Readiness: res}

	switch res.Outcome {
	case readiness.Success:
		metrics.IncStart(svc.Name)
		metrics.SetUp(svc.Name, true)
		metrics.ObserveStartDuration(svc.Name, time.Since(spawned).Seconds())
		if res.Port > 0 {
			slog.Info("service ready", "service", svc.Name, "pid", pid, "signal", res.Cause, "port", res.Port)
		} else {
			slog.Info("service ready", "service", svc.Name, "pid", pid, "signal", res.Cause)
		}
		c.record(history.EventStarted, pid, causeDetail(res))
		return result, nil

	case readiness.Timeout:
		metrics.IncStartTimeout(svc.Name)
		metrics.SetUp(svc.Name, true)
		slog.Warn("readiness not confirmed within budget, assuming the service is still starting",
			"service", svc.Name, "pid", pid)
		c.record(history.EventStartTimeout, pid, "")
		return result, nil

	default: // readiness.Failure
		if res.Cause == readiness.CauseLogFailure {
			// The child is alive but declared itself broken; ask it to leave.
			_ = terminate(pid, syscall.SIGTERM)
		}
		c.reg.Remove()
		marker.Remove(svc.MarkerFile)
		metrics.IncStartFailure(svc.Name)
		metrics.SetUp(svc.Name, false)
		c.record(history.EventStartFailed, pid, causeDetail(res))
		return result, c.failureError(res, pid)
	}
}

func (c *Controller) failureError(res readiness.Result, pid int) error {
	svc := c.cfg.Service
	switch res.Cause {
	case readiness.CauseProcessExit:
		return fmt.Errorf("service %s (pid %d) exited during startup, logs: %s %s",
			svc.Name, pid, svc.StdoutLog, svc.StderrLog)
	case readiness.CauseLogFailure:
		return fmt.Errorf("service %s reported startup failure: %s", svc.Name, res.Line)
	default:
		return fmt.Errorf("service %s failed to start", svc.Name)
	}
}

func causeDetail(res readiness.Result) string {
	switch res.Cause {
	case readiness.CauseMarker:
		return fmt.Sprintf("marker port %d", res.Port)
	case readiness.CauseLogSuccess:
		return "log marker"
	case readiness.CauseLogFailure:
		return res.Line
	case readiness.CauseProcessExit:
		return "exited during startup"
	default:
		return ""
	}
}
