package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	before := time.Now().Unix()

	m.ObserveDuration("order-ttl", 250*time.Millisecond)
	m.IncSuccess("order-ttl")
	m.IncFailure("outbox-retention")
	m.IncFailure("")
	m.IncCycleSkipped()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	got, err := fetchCounterValue(mfs, "storefront_cron_job_success_total", "job", "order-ttl")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = fetchCounterValue(mfs, "storefront_cron_job_failure_total", "job", "unknown")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	sum, err := fetchHistogramSum(mfs, "storefront_cron_job_duration_seconds", "job", "order-ttl")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, sum, 0.001)

	assert.GreaterOrEqual(t, testutil.ToFloat64(m.lastSuccess.WithLabelValues("order-ttl")), float64(before))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped))
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("order-ttl")
	m.IncCycleSkipped()

	noop := NewCronJobMetrics(nil)
	noop.ObserveDuration("order-ttl", time.Second)
	noop.IncSuccess("order-ttl")
	noop.IncFailure("order-ttl")
}
