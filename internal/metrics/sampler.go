package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/loykin/solo/internal/status"
)

// DefaultSampleInterval is how often serve mode refreshes the usage gauges.
const DefaultSampleInterval = 5 * time.Second

// Sampler keeps the up and usage gauges fresh while serve mode runs. The
// CLI one-shot commands never need one; they read usage directly.
type Sampler struct {
	service  string
	interval time.Duration
	current  func() (pid int, ok bool)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSampler builds a sampler for one service. current must report the live
// pid of the managed service, or ok=false when it is down.
func NewSampler(service string, interval time.Duration, current func() (int, bool)) *Sampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Sampler{
		service:  service,
		interval: interval,
		current:  current,
		stopCh:   make(chan struct{}),
	}
}

// Start begins periodic sampling until ctx is cancelled or Stop is called.
func (s *Sampler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

// Stop halts sampling and waits for the worker to exit.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Sampler) sample() {
	pid, ok := s.current()
	SetUp(s.service, ok)
	if !ok {
		return
	}
	if u := status.Collect(pid); u != nil {
		SetUsage(s.service, u.CPUPercent, u.MemoryPercent, u.MemoryMB)
	}
}
