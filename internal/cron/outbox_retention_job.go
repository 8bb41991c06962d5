package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultRetentionDays  = 30
	defaultRetentionBatch = 500
	// maxRetentionBatches caps one cycle; a backlog is drained over the next ticks.
	maxRetentionBatches = 20
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository publishedOutboxPurger
	Retention  int // days
	BatchSize  int
}

type publishedOutboxPurger interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob deletes published outbox rows older than the
// retention window. Unpublished and dead-lettered rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	days := params.Retention
	if days <= 0 {
		days = defaultRetentionDays
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultRetentionBatch
	}
	return &outboxRetentionJob{
		logg:   params.Logger,
		purger: params.Repository,
		keep:   time.Duration(days) * 24 * time.Hour,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg   *logger.Logger
	purger publishedOutboxPurger
	keep   time.Duration
	batch  int
	now    func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.keep)
	deleted, drained, err := j.sweep(ctx, cutoff)

	ctx = j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	})
	if err != nil {
		return fmt.Errorf("outbox retention after %d rows: %w", deleted, err)
	}
	if !drained {
		j.logg.Warn(ctx, "outbox retention stopped at batch cap, backlog remains")
		return nil
	}
	j.logg.Info(ctx, "outbox retention cleanup complete")
	return nil
}

// sweep deletes in batches until a short batch shows nothing older remains.
func (j *outboxRetentionJob) sweep(ctx context.Context, cutoff time.Time) (int64, bool, error) {
	var total int64
	for range maxRetentionBatches {
		if err := ctx.Err(); err != nil {
			return total, false, err
		}
		n, err := j.purger.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return total, false, err
		}
		total += n
		if n < int64(j.batch) {
			return total, true, nil
		}
	}
	return total, false, nil
}
