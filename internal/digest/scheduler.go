package digest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the dispatcher on a cron schedule. Overlapping runs are
// skipped rather than queued; a run that outlives its slot simply absorbs
// the next tick.
type Scheduler struct {
	cron       *cron.Cron
	dispatcher *Dispatcher
}

// NewScheduler creates a scheduler that invokes the dispatcher per the
// given cron spec (standard five field format).
func NewScheduler(spec string, dispatcher *Dispatcher) (*Scheduler, error) {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DefaultLogger),
	))

	s := &Scheduler{
		cron:       c,
		dispatcher: dispatcher,
	}

	if _, err := c.AddFunc(spec, s.runOnce); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}

	return s, nil
}

// Start begins scheduled dispatching in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("digest scheduler started")
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("digest scheduler stopped")
}

func (s *Scheduler) runOnce() {
	result, err := s.dispatcher.Run(context.Background())
	if err != nil {
		slog.Error("scheduled digest run failed", "error", err)
		return
	}

	if result.Processed > 0 {
		slog.Info("scheduled digest run complete",
			"processed", result.Processed,
			"sent", result.Sent,
			"failed", result.Failed,
		)
	}
}
