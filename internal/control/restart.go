package control

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/solo/internal/history"
	"github.com/loykin/solo/internal/metrics"
)

// Restart stops the service if needed, waits the configured delay so OS
// resources such as bound ports can release, then starts it again. The two
// halves are sequential, not transactional: another process could claim a
// port during the gap, and the relaunch then fails like any other start.
func (c *Controller) Restart(daemon bool) (StartResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	svc := c.cfg.Service
	stopRes, err := c.stop()
	if err != nil {
		return StartResult{}, fmt.Errorf("restart %s: %w", svc.Name, err)
	}

	slog.Info("waiting for resources to release", "service", svc.Name, "delay", c.cfg.Restart.Delay)
	time.Sleep(c.cfg.Restart.Delay)

	res, err := c.start(daemon)
	if err != nil {
		return res, err
	}
	metrics.IncRestart(svc.Name)
	if stopRes.Outcome == Stopped {
		c.record(history.EventRestarted, res.PID, fmt.Sprintf("previous pid %d", stopRes.PID))
	} else {
		c.record(history.EventRestarted, res.PID, "was not running")
	}
	return res, nil
}
