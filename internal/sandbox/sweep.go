package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Sweeper periodically removes containers that have been idle too long.
// Ticks follow a cron expression so deployments can align sweeps with
// their maintenance windows.
type Sweeper struct {
	manager  *Manager
	schedule string
	idleFor  time.Duration
	stop     chan struct{}
	done     chan struct{}
}

// NewSweeper validates the schedule and returns a sweeper that is not
// yet running. idleMinutes <= 0 disables sweeping entirely.
func NewSweeper(m *Manager, schedule string, idleMinutes int) (*Sweeper, error) {
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	gx := gronx.New()
	if !gx.IsValid(schedule) {
		return nil, fmt.Errorf("invalid sweep schedule: %s", schedule)
	}
	return &Sweeper{
		manager:  m,
		schedule: schedule,
		idleFor:  time.Duration(idleMinutes) * time.Minute,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	if s.idleFor <= 0 {
		close(s.done)
		return
	}
	go s.run()
	slog.Debug("container sweeper started", "schedule", s.schedule, "idle_for", s.idleFor)
}

// Stop halts the loop and waits for a sweep in flight to finish.
func (s *Sweeper) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)
	for {
		next, err := gronx.NextTickAfter(s.schedule, time.Now(), false)
		if err != nil {
			slog.Error("sweeper: failed to compute next tick", "schedule", s.schedule, "error", err)
			return
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-s.stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if n := s.manager.sweepIdle(ctx, s.idleFor); n > 0 {
			slog.Info("sweep completed", "removed", n)
		}
		cancel()
	}
}
