package batch

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
)

// Scheduler fires the daily runner on a cron expression when the service is
// configured to self-schedule (external pollers can hit the daily endpoint
// instead).
type Scheduler struct {
	expr   *cronexpr.Expression
	runner *DailyRunner
	logger *log.Logger
}

// NewScheduler parses spec; an empty spec disables scheduling and returns
// nil with no error.
func NewScheduler(spec string, runner *DailyRunner) (*Scheduler, error) {
	if spec == "" {
		return nil, nil
	}
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		expr:   expr,
		runner: runner,
		logger: log.New(log.Writer(), "[SCHED] ", log.LstdFlags),
	}, nil
}

// Run blocks until ctx is cancelled, firing the daily run at each cron tick.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := s.expr.Next(time.Now())
		if next.IsZero() {
			s.logger.Printf("cron expression yields no future runs; scheduler stopping")
			return
		}
		s.logger.Printf("next daily discovery at %s", next.Format(time.RFC3339))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}
		if _, err := s.runner.Run(ctx); err != nil {
			s.logger.Printf("scheduled daily discovery: %v", err)
		}
	}
}
