// Package scheduler runs the periodic catalog refresh.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/mCat-0/mCat-ac/internal/catalog"
)

// Refresher is the operation the scheduler triggers.
type Refresher interface {
	RefreshCatalog(ctx context.Context, force bool) (*catalog.RefreshReport, error)
}

type Scheduler struct {
	cron *cron.Cron
	r    Refresher
	log  logrus.FieldLogger
}

// New registers a non-forced refresh on schedule, a standard cron expression or
// a descriptor such as "@every 480h". Overlapping runs are skipped.
func New(r Refresher, schedule string, log logrus.FieldLogger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Scheduler{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		r:    r,
		log:  log,
	}
	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduled catalog refresh started")
}

// Stop halts the schedule and waits for a running refresh to finish or ctx
// to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run() {
	report, err := s.r.RefreshCatalog(context.Background(), false)
	if err != nil {
		s.log.WithError(err).Error("scheduled catalog refresh failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"downloaded": len(report.Downloaded),
		"failed":     len(report.Failed),
		"total":      report.TotalAchievements,
	}).Info("scheduled catalog refresh done")
}
