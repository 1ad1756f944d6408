package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"confline/internal/core/domain"
	"confline/pkg/circuitbreaker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheusCollector(reg)

	p.SetNetworkQuality(domain.NetworkLow)
	assert.Equal(t, 1.0, testutil.ToFloat64(p.networkQuality.WithLabelValues("low")))
	assert.Equal(t, 0.0, testutil.ToFloat64(p.networkQuality.WithLabelValues("high")))

	p.SetNetworkQuality(domain.NetworkHigh)
	assert.Equal(t, 0.0, testutil.ToFloat64(p.networkQuality.WithLabelValues("low")))

	p.SetConstraintTier(domain.Tier3)
	assert.Equal(t, 3.0, testutil.ToFloat64(p.constraintTier))

	p.IncConstraintApply("failed")
	p.IncConstraintApply("failed")
	assert.Equal(t, 2.0, testutil.ToFloat64(p.constraintApply.WithLabelValues("failed")))

	p.IncConferenceEvent(domain.EventConferenceEnded)
	p.ObserveDirectoryRequest("list", "200", 0.02)
	p.SetCircuitState("directory", int(circuitbreaker.StateOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.circuitState.WithLabelValues("directory")))

	count, err := testutil.GatherAndCount(reg, "confline_directory_request_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestHealthChecker(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck("redis", func(ctx context.Context) error { return nil }, time.Second)
	assert.True(t, h.IsReady(context.Background()))

	state := circuitbreaker.StateClosed
	h.AddBreakerCheck("directory", func() circuitbreaker.State { return state })
	assert.True(t, h.IsReady(context.Background()))

	state = circuitbreaker.StateOpen
	status := h.CheckAll(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["redis"])
	assert.Equal(t, "circuit open", status.Checks["directory"])

	h.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return errors.New("timed out")
	}, 5*time.Millisecond)
	assert.Equal(t, "timed out", h.CheckAll(context.Background()).Checks["slow"])
}
