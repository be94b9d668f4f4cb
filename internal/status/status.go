// Package status reports the observed state of the managed service: whether
// it runs, under which pid, and a best-effort OS view of its resource usage.
package status

import (
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/solo/internal/pidfile"
)

// Status is the answer to "what is the service doing right now".
type Status struct {
	Service string `json:"service"`
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Usage   *Usage `json:"usage,omitempty"`
}

// Usage carries OS-level process metrics. A nil Usage on a running service
// means the query failed, not that the service is unhealthy.
type Usage struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float32   `json:"memory_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	StartedAt     time.Time `json:"started_at"`
	Cmdline       string    `json:"cmdline,omitempty"`
}

// Elapsed is the wall-clock time since the process started.
func (u *Usage) Elapsed() time.Duration {
	if u == nil || u.StartedAt.IsZero() {
		return 0
	}
	return time.Since(u.StartedAt).Round(time.Second)
}

// Collect queries the OS for usage of pid. Any failure to reach the process
// yields nil; failures of individual fields leave them zero.
func Collect(pid int) *Usage {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		slog.Debug("usage query failed", "pid", pid, "error", err)
		return nil
	}
	u := &Usage{}
	if cpu, err := proc.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if memPct, err := proc.MemoryPercent(); err == nil {
		u.MemoryPercent = memPct
	}
	if memInfo, err := proc.MemoryInfo(); err == nil {
		u.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	}
	if created, err := proc.CreateTime(); err == nil {
		u.StartedAt = time.UnixMilli(created)
	}
	if cmdline, err := proc.Cmdline(); err == nil {
		u.Cmdline = cmdline
	}
	return u
}

// Reporter assembles the status of one service from its pid record.
type Reporter struct {
	Service  string
	Registry *pidfile.Registry
}

func (r Reporter) Status() Status {
	pid, ok := r.Registry.Current()
	if !ok {
		return Status{Service: r.Service}
	}
	return Status{
		Service: r.Service,
		Running: true,
		PID:     pid,
		Usage:   Collect(pid),
	}
}
