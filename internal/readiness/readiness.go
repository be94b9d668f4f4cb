// Package readiness watches a freshly spawned background service until it
// proves it came up, proves it failed, or exhausts the poll budget.
package readiness

import (
	"strings"
	"time"

	"github.com/loykin/solo/internal/logtail"
	"github.com/loykin/solo/internal/marker"
	"github.com/loykin/solo/internal/pidfile"
)

// Outcome is the terminal state of a readiness watch.
type Outcome int

const (
	Success Outcome = iota
	Failure
	Timeout
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Timeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Cause records which signal resolved the watch.
type Cause int

const (
	CauseNone Cause = iota
	// CauseMarker means the startup marker appeared carrying the spawned pid.
	CauseMarker
	// CauseLogSuccess means the success substring showed up in recent stdout.
	CauseLogSuccess
	// CauseLogFailure means a failure substring showed up in recent stdout.
	CauseLogFailure
	// CauseProcessExit means the child died before signalling anything.
	CauseProcessExit
)

func (ca Cause) String() string {
	switch ca {
	case CauseMarker:
		return "marker"
	case CauseLogSuccess:
		return "log"
	case CauseLogFailure:
		return "log failure"
	case CauseProcessExit:
		return "process exit"
	default:
		return "none"
	}
}

// Result is the terminal outcome plus whatever the winning signal carried.
type Result struct {
	Outcome Outcome
	Cause   Cause
	Port    int    // bound port from the marker, 0 otherwise
	Line    string // matching log line for the log causes
}

// Detector polls a spawned pid for startup signals. Each tick it checks, in
// order: liveness, the structured startup marker, then a scan of the trailing
// stdout lines. The marker outranks the log scan within the same tick because
// it is correlated to the launch by pid; the log scan exists for services that
// flush their marker late or not at all.
//
// The detector only observes. Clearing the pid record and signalling a failed
// child are the caller's job.
type Detector struct {
	Registry       *pidfile.Registry
	MarkerPath     string
	StdoutLog      string
	Interval       time.Duration
	MaxTicks       int
	ScanLines      int
	SuccessMarker  string
	FailureMarkers []string
}

// Wait blocks until the watch resolves. The budget is Interval times MaxTicks;
// exhausting it yields Timeout, the soft outcome that assumes the service is
// merely slow to come up.
func (d *Detector) Wait(pid int) Result {
	interval := d.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	maxTicks := d.MaxTicks
	if maxTicks <= 0 {
		maxTicks = 30
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for tick := 0; tick < maxTicks; tick++ {
		<-ticker.C
		if res, resolved := d.check(pid); resolved {
			return res
		}
	}
	return Result{Outcome: Timeout, Cause: CauseNone}
}

func (d *Detector) check(pid int) (Result, bool) {
	if !d.Registry.IsRunning(pid) {
		return Result{Outcome: Failure, Cause: CauseProcessExit}, true
	}

	// A marker that fails to parse is likely mid-write; retry next tick.
	if m, err := marker.Read(d.MarkerPath); err == nil && m.PID == pid {
		return Result{Outcome: Success, Cause: CauseMarker, Port: m.Port}, true
	}

	scan := d.ScanLines
	if scan <= 0 {
		scan = 30
	}
	lines, err := logtail.LastLines(d.StdoutLog, scan)
	if err != nil {
		return Result{}, false
	}
	for _, ln := range lines {
		if d.SuccessMarker != "" && strings.Contains(ln, d.SuccessMarker) {
			return Result{Outcome: Success, Cause: CauseLogSuccess, Line: ln}, true
		}
	}
	for _, ln := range lines {
		for _, fm := range d.FailureMarkers {
			if fm != "" && strings.Contains(ln, fm) {
				return Result{Outcome: Failure, Cause: CauseLogFailure, Line: ln}, true
			}
		}
	}
	return Result{}, false
}
