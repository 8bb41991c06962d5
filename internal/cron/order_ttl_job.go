package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultPendingTTL  = 24 * time.Hour
	defaultExpiryBatch = 200
)

// OrderTTLJobParams configure the stale checkout expiry job.
type OrderTTLJobParams struct {
	Logger     *logger.Logger
	Orders     staleOrderExpirer
	PendingTTL time.Duration
	BatchSize  int
}

type staleOrderExpirer interface {
	ExpireStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// NewOrderTTLJob builds the cron job that fails orders whose checkout was
// never paid.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    ttl,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders staleOrderExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

// Run expires one batch per cycle. A full batch means more may be waiting,
// which the next cycle picks up.
func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpireStale(ctx, cutoff, j.batch)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
		"batch":   j.batch,
	})
	if err != nil {
		return fmt.Errorf("expire stale orders: %w", err)
	}
	j.logg.Info(logCtx, "order expiration loop complete")
	return nil
}
