package manager

import (
	"time"

	"github.com/benbjohnson/clock"
)

// scheduler fires a callback on a fixed wall-clock cadence, aligned to
// minute boundaries. It is owned by the manager and stopped synchronously
// during shutdown.
type scheduler struct {
	clk      clock.Clock
	interval time.Duration
	fn       func()
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newScheduler(clk clock.Clock, interval time.Duration, fn func()) *scheduler {
	s := &scheduler{
		clk:      clk,
		interval: interval,
		fn:       fn,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *scheduler) run() {
	defer close(s.doneCh)

	// Align the first tick to the next boundary.
	now := s.clk.Now()
	first := now.Truncate(s.interval).Add(s.interval)
	timer := s.clk.Timer(first.Sub(now))
	select {
	case <-s.stopCh:
		timer.Stop()
		return
	case <-timer.C:
		s.fn()
	}

	ticker := s.clk.Ticker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fn()
		}
	}
}

// stop cancels the schedule and waits for the run loop to exit.
func (s *scheduler) stop() {
	close(s.stopCh)
	<-s.doneCh
}
