package reporter

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler triggers a publish cycle on a fixed interval.
type Scheduler struct {
	reporter *Reporter
	interval time.Duration
	log      *logrus.Entry
}

func NewScheduler(r *Reporter, interval time.Duration, log *logrus.Entry) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Scheduler{reporter: r, interval: interval, log: log}
}

// Run ticks until ctx is done and returns nil. A cycle reporting translation defects
// stops the loop and its error is returned. Run does not perform the final drain; the
// caller invokes OnShutdown once every producer has stopped.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := s.reporter.OnTick(ctx)
			if err != nil {
				return err
			}
			if report.Samples > 0 {
				s.log.WithFields(logrus.Fields{
					"cycle":    report.ID.String(),
					"samples":  report.Samples,
					"labels":   report.Translated,
					"skipped":  report.Skipped,
					"duration": report.Duration,
				}).Debug("published samples")
			}
		}
	}
}
