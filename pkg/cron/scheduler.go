// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const versionDateLayout = "2006-01-02"

// IngestJob runs one ingestion for the given catalogue version date.
type IngestJob func(ctx context.Context, versionDate string) error

// Scheduler runs an ingestion job on a cron expression.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	job     IngestJob
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewScheduler validates spec (standard 5-field format or a descriptor such as
// "@daily") and creates a scheduler. A run still in progress when the next one
// is due makes that next run skip.
func NewScheduler(spec string, job IngestJob, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}

	cronLogger := cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	return &Scheduler{
		cron:    c,
		spec:    spec,
		job:     job,
		timeout: timeout,
		now:     time.Now,
		logger:  logger,
	}, nil
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runScheduled); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.String("spec", s.spec),
		slog.Time("next_run", s.Next()),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs. The returned context is done once
// a running job has finished.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// Next is the time of the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow manually triggers an ingestion (for testing/admin).
func (s *Scheduler) RunNow() {
	go s.runScheduled()
}

// runScheduled ingests the edition dated on the day the run starts.
func (s *Scheduler) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	versionDate := s.now().Format(versionDateLayout)
	start := time.Now()
	s.logger.Info("starting scheduled ingestion", slog.String("version_date", versionDate))

	if err := s.job(ctx, versionDate); err != nil {
		s.logger.Error("scheduled ingestion failed",
			slog.String("version_date", versionDate),
			slog.Any("error", err),
		)
		return
	}

	s.logger.Info("scheduled ingestion completed",
		slog.String("version_date", versionDate),
		slog.Duration("duration", time.Since(start)),
	)
}
