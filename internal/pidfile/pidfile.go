package pidfile

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// Registry persists the PID of the currently managed process. The file holds a
// single decimal PID and is the sole source of truth for "is something
// running". The controller is the only writer; staleness (a recorded PID whose
// process is gone) is a valid transient state every reader tolerates.
type Registry struct {
	path string
}

func New(path string) *Registry { return &Registry{path: path} }

func (r *Registry) Path() string { return r.path }

// PID returns the recorded pid. Any read or parse failure is treated as
// absence of the record.
func (r *Registry) PID() (int, bool) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Debug("pid file unreadable", "path", r.path, "error", err)
		}
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		slog.Debug("pid file content invalid", "path", r.path)
		return 0, false
	}
	return pid, true
}

// Write records pid best-effort: I/O failures are logged, never returned, and
// the caller proceeds as if the record were in place.
func (r *Registry) Write(pid int) {
	if r.path == "" || pid <= 0 {
		return
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o750); err != nil {
		slog.Warn("pid file dir create failed", "path", r.path, "error", err)
	}
	if err := os.WriteFile(r.path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		slog.Warn("pid file write failed", "path", r.path, "error", err)
	}
}

// Remove deletes the record best-effort.
func (r *Registry) Remove() {
	if r.path == "" {
		return
	}
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("pid file remove failed", "path", r.path, "error", err)
	}
}

// IsRunning probes pid with signal 0. Every probe failure, ESRCH and EPERM
// alike, collapses to "not running": a pid the controller cannot signal is not
// one it manages. A zombie also counts as not running.
func (r *Registry) IsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	if runtime.GOOS == "linux" && isZombie(pid) {
		return false
	}
	return true
}

// Current reads the record and probes it in one step.
func (r *Registry) Current() (int, bool) {
	pid, ok := r.PID()
	if !ok {
		return 0, false
	}
	return pid, r.IsRunning(pid)
}

// isZombie reports whether /proc/<pid>/status shows state Z.
func isZombie(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
