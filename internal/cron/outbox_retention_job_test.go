package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type scriptedPurger struct {
	cutoffs []time.Time
	limits  []int
	deletes []int64
	err     error
}

func (p *scriptedPurger) DeletePublishedBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	p.cutoffs = append(p.cutoffs, cutoff)
	p.limits = append(p.limits, limit)
	if p.err != nil {
		return 0, p.err
	}
	if len(p.deletes) == 0 {
		return 0, nil
	}
	n := p.deletes[0]
	p.deletes = p.deletes[1:]
	return n, nil
}

func retentionJob(t *testing.T, purger *scriptedPurger, days, batch int) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}),
		Repository: purger,
		Retention:  days,
		BatchSize:  batch,
	})
	require.NoError(t, err)
	require.IsType(t, &outboxRetentionJob{}, job)
	return job.(*outboxRetentionJob)
}

func TestOutboxRetentionUsesDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 0, 0, 0, time.FixedZone("EST", -5*3600))
	purger := &scriptedPurger{deletes: []int64{7}}
	job := retentionJob(t, purger, 0, 0)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, purger.cutoffs, 1)
	assert.Equal(t, now.UTC().AddDate(0, 0, -defaultRetentionDays), purger.cutoffs[0])
	assert.Equal(t, time.UTC, purger.cutoffs[0].Location())
	assert.Equal(t, []int{defaultRetentionBatch}, purger.limits)
}

func TestOutboxRetentionDrainsFullBatches(t *testing.T) {
	purger := &scriptedPurger{deletes: []int64{10, 10, 3}}
	job := retentionJob(t, purger, 7, 10)

	deleted, drained, err := job.sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.True(t, drained)
	assert.Equal(t, int64(23), deleted)
	assert.Len(t, purger.cutoffs, 3)
}

func TestOutboxRetentionStopsAtBatchCap(t *testing.T) {
	full := make([]int64, maxRetentionBatches+5)
	for i := range full {
		full[i] = 2
	}
	purger := &scriptedPurger{deletes: full}
	job := retentionJob(t, purger, 7, 2)

	deleted, drained, err := job.sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, drained)
	assert.Equal(t, int64(2*maxRetentionBatches), deleted)
	assert.NoError(t, job.Run(context.Background()))
}

func TestOutboxRetentionReportsFailures(t *testing.T) {
	purger := &scriptedPurger{err: errors.New("boom")}
	job := retentionJob(t, purger, 0, 0)
	assert.ErrorIs(t, job.Run(context.Background()), purger.err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := retentionJob(t, &scriptedPurger{}, 0, 0).sweep(ctx, time.Now())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewOutboxRetentionJobValidates(t *testing.T) {
	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{})
	assert.Error(t, err)
	_, err = NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logger.New(logger.Options{Output: &bytes.Buffer{}})})
	assert.Error(t, err)
}
