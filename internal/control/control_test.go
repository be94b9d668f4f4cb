package control

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/loykin/solo/internal/config"
	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/readiness"
)

func newController(t *testing.T, command string) (*Controller, *config.Config) {
	t.Helper()
	cfg := config.Default("svc", command, t.TempDir())
	// Compressed budgets so the full state machines run in test time.
	cfg.Readiness.Interval = 20 * time.Millisecond
	cfg.Readiness.MaxTicks = 50
	cfg.Stop.Interval = 20 * time.Millisecond
	cfg.Stop.MaxAttempts = 50
	cfg.Restart.Delay = 50 * time.Millisecond
	return New(cfg, nil), cfg
}

// reapGroup makes sure no test leaves a detached sleeper behind.
func reapGroup(t *testing.T, pid int) {
	t.Helper()
	t.Cleanup(func() {
		_ = syscall.Kill(-pid, syscall.SIGKILL)
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartStopLifecycleWithMarker(t *testing.T) {
	ctl, cfg := newController(t, "placeholder")
	// $$ inside the script is the pid of the spawned shell itself, which is
	// exactly the pid the launch recorded.
	cfg.Service.Command = `echo "{\"pid\": $$, \"port\": 3000}" > ` + cfg.Service.MarkerFile + `; sleep 30`

	res, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reapGroup(t, res.PID)

	if res.Readiness.Outcome != readiness.Success || res.Readiness.Cause != readiness.CauseMarker {
		t.Fatalf("expected marker success, got %+v", res.Readiness)
	}
	if res.Readiness.Port != 3000 {
		t.Fatalf("expected port 3000, got %d", res.Readiness.Port)
	}

	st := ctl.Status()
	if !st.Running || st.PID != res.PID {
		t.Fatalf("status should report the spawned pid, got %+v", st)
	}

	stopRes, err := ctl.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopRes.Outcome != Stopped || stopRes.PID != res.PID {
		t.Fatalf("unexpected stop result %+v", stopRes)
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file must be gone after stop")
	}
	if _, err := os.Stat(cfg.Service.MarkerFile); !os.IsNotExist(err) {
		t.Fatal("marker file must be gone after stop")
	}
	if ctl.Registry().IsRunning(res.PID) {
		t.Fatal("service still alive after stop")
	}

	// Second stop is the idempotent no-op.
	again, err := ctl.Stop()
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if again.Outcome != WasNotRunning {
		t.Fatalf("expected was-not-running, got %+v", again)
	}
}

func TestStartDaemonLogSuccessFallback(t *testing.T) {
	ctl, _ := newController(t, `echo "listening on :8080"; sleep 30`)

	res, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reapGroup(t, res.PID)

	if res.Readiness.Outcome != readiness.Success || res.Readiness.Cause != readiness.CauseLogSuccess {
		t.Fatalf("expected log success, got %+v", res.Readiness)
	}
	if _, err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartDaemonFailureMarkerTerminatesChild(t *testing.T) {
	ctl, cfg := newController(t, `echo "panic: cannot bind"; sleep 30`)

	res, err := ctl.Start(true)
	if res.PID != 0 {
		reapGroup(t, res.PID)
	}
	if err == nil {
		t.Fatal("expected start error for failure marker")
	}
	if res.Readiness.Outcome != readiness.Failure || res.Readiness.Cause != readiness.CauseLogFailure {
		t.Fatalf("expected log failure, got %+v", res.Readiness)
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file must be absent after failed launch")
	}
	waitFor(t, 2*time.Second, func() bool {
		return !ctl.Registry().IsRunning(res.PID)
	}, "child should be terminated after failure verdict")
}

func TestStartDaemonChildExitsEarly(t *testing.T) {
	ctl, cfg := newController(t, "/bin/false")

	res, err := ctl.Start(true)
	if err == nil {
		t.Fatal("expected start error when child exits during startup")
	}
	if res.Readiness.Cause != readiness.CauseProcessExit {
		t.Fatalf("expected process-exit cause, got %+v", res.Readiness)
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file must be absent after failed launch")
	}
}

func TestStartDaemonTimeoutKeepsRecord(t *testing.T) {
	ctl, cfg := newController(t, "sleep 30")
	cfg.Readiness.MaxTicks = 5

	res, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("timeout must not be an error: %v", err)
	}
	reapGroup(t, res.PID)

	if res.Readiness.Outcome != readiness.Timeout {
		t.Fatalf("expected timeout, got %+v", res.Readiness)
	}
	pid, ok := ctl.Registry().PID()
	if !ok || pid != res.PID {
		t.Fatalf("pid record must survive a soft timeout, got pid=%d ok=%v", pid, ok)
	}
	if _, err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartRejectedWhileRunning(t *testing.T) {
	ctl, cfg := newController(t, "sleep 30")
	cfg.Readiness.MaxTicks = 3

	res, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reapGroup(t, res.PID)

	if _, err := ctl.Start(true); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStopClearsStaleRecord(t *testing.T) {
	ctl, cfg := newController(t, "sleep 30")

	cmd := exec.Command("/bin/true")
	if err := cmd.Start(); err != nil {
		t.Skipf("cannot start helper process: %v", err)
	}
	stale := cmd.Process.Pid
	_ = cmd.Wait()
	ctl.Registry().Write(stale)

	res, err := ctl.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if res.Outcome != WasNotRunning {
		t.Fatalf("expected was-not-running for stale record, got %+v", res)
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("stale pid file must be cleared")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	ctl, cfg := newController(t, `trap "" TERM; while true; do sleep 0.1; done`)
	cfg.Readiness.MaxTicks = 3
	cfg.Stop.MaxAttempts = 5

	res, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reapGroup(t, res.PID)

	stopRes, err := ctl.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopRes.Outcome != Stopped || !stopRes.Killed {
		t.Fatalf("expected a forced stop, got %+v", stopRes)
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file must be removed after forced kill")
	}
	waitFor(t, 2*time.Second, func() bool {
		return !ctl.Registry().IsRunning(res.PID)
	}, "child should be dead after SIGKILL")
}

func TestRestartReplacesPid(t *testing.T) {
	ctl, cfg := newController(t, "sleep 30")
	cfg.Readiness.MaxTicks = 3

	first, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reapGroup(t, first.PID)

	second, err := ctl.Restart(true)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	reapGroup(t, second.PID)

	if second.PID == first.PID {
		t.Fatalf("restart must produce a fresh pid, got %d twice", first.PID)
	}
	if ctl.Registry().IsRunning(first.PID) {
		t.Fatal("old pid still alive after restart")
	}
	pid, ok := ctl.Registry().PID()
	if !ok || pid != second.PID {
		t.Fatalf("pid record should hold the new pid, got %d ok=%v", pid, ok)
	}
	if _, err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartForegroundRunsToCompletion(t *testing.T) {
	ctl, cfg := newController(t, "/bin/true")

	res, err := ctl.Start(false)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.PID == 0 {
		t.Fatal("expected a pid for the foreground run")
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file must be cleared after foreground exit")
	}
}

func TestStartForegroundNonZeroExitIsNotAnError(t *testing.T) {
	ctl, cfg := newController(t, "/bin/false")

	if _, err := ctl.Start(false); err != nil {
		t.Fatalf("non-zero child exit should only warn, got %v", err)
	}
	if _, err := os.Stat(cfg.Service.PIDFile); !os.IsNotExist(err) {
		t.Fatal("pid file must be cleared after foreground exit")
	}
}

type memorySink struct {
	mu     sync.Mutex
	events []history.Event
}

func (m *memorySink) Send(_ context.Context, e history.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) types() []history.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]history.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func TestLifecycleEventsReachSink(t *testing.T) {
	cfg := config.Default("svc", `echo "listening on :1234"; sleep 30`, t.TempDir())
	cfg.Readiness.Interval = 20 * time.Millisecond
	cfg.Stop.Interval = 20 * time.Millisecond
	sink := &memorySink{}
	ctl := New(cfg, sink)

	res, err := ctl.Start(true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reapGroup(t, res.PID)
	if _, err := ctl.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	types := sink.types()
	if len(types) != 2 || types[0] != history.EventStarted || types[1] != history.EventStopped {
		t.Fatalf("expected started then stopped, got %v", types)
	}
}

func TestBuildCommand(t *testing.T) {
	cases := []struct {
		in       string
		wantArg0 string
		wantLen  int
	}{
		{"", "/bin/true", 1},
		{"/bin/sleep 5", "/bin/sleep", 2},
		{"echo hello > /tmp/out", "/bin/sh", 3},
		{`sh -c 'echo hello'`, "/bin/sh", 3},
	}
	for _, tc := range cases {
		cmd := buildCommand(tc.in)
		if cmd.Args[0] != tc.wantArg0 {
			t.Errorf("buildCommand(%q) argv0 = %q, want %q", tc.in, cmd.Args[0], tc.wantArg0)
		}
		if len(cmd.Args) != tc.wantLen {
			t.Errorf("buildCommand(%q) argv len = %d, want %d", tc.in, len(cmd.Args), tc.wantLen)
		}
	}
	// The explicit shell form must shed its outer quotes.
	cmd := buildCommand(`sh -c 'echo hello'`)
	if cmd.Args[2] != "echo hello" {
		t.Errorf("explicit shell arg = %q, want %q", cmd.Args[2], "echo hello")
	}
}
