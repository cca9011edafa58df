package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

const (
	defaultRetentionCron   = "0 * * * *"
	defaultRetentionPeriod = 720 * time.Hour
)

// RetentionWorker deletes finished request records older than the retention
// period, on a cron schedule.
type RetentionWorker struct {
	requests *RequestStore
	schedule string
	period   time.Duration
	logger   Logger
	now      func() time.Time
}

func NewRetentionWorker(requests *RequestStore, schedule string, period time.Duration, logger Logger) (*RetentionWorker, error) {
	if schedule == "" {
		schedule = defaultRetentionCron
	}
	if !gronx.New().IsValid(schedule) {
		return nil, fmt.Errorf("invalid retention schedule %q", schedule)
	}
	if period <= 0 {
		period = defaultRetentionPeriod
	}
	return &RetentionWorker{
		requests: requests,
		schedule: schedule,
		period:   period,
		logger:   logger.NewSystem("retention-worker"),
		now:      time.Now,
	}, nil
}

func (w *RetentionWorker) Start(ctx context.Context) {
	w.logger.Info("retention worker started", "schedule", w.schedule, "period", w.period)
	defer w.logger.Info("retention worker stopped")

	for {
		next, err := gronx.NextTickAfter(w.schedule, w.now(), false)
		if err != nil {
			w.logger.Error("failed to compute next retention run", "error", err)
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			w.RunOnce()
		}
	}
}

// RunOnce deletes the expired records and returns how many were removed.
func (w *RetentionWorker) RunOnce() int64 {
	cutoff := w.now().Add(-w.period)
	deleted, err := w.requests.DeleteOlderThan(cutoff)
	if err != nil {
		w.logger.Error("failed to delete expired requests", "cutoff", cutoff, "error", err)
		return 0
	}
	if deleted > 0 {
		w.logger.Info("deleted expired requests", "count", deleted, "cutoff", cutoff)
	}
	return deleted
}
