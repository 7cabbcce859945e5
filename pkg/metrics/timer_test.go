package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), first)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_publish_seconds",
		Help: "Test histogram",
	})

	NewTimer().ObserveDuration(histogram)
	NewTimer().ObserveDuration(histogram)

	var out dto.Metric
	require.NoError(t, histogram.Write(&out))
	assert.Equal(t, uint64(2), out.Histogram.GetSampleCount())
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_query_seconds",
		Help: "Test histogram vec",
	}, []string{"kind"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "sa")
	timer.ObserveDurationVec(vec, "ike")
	timer.ObserveDurationVec(vec, "ike")

	var out dto.Metric
	require.NoError(t, vec.WithLabelValues("ike").(prometheus.Histogram).Write(&out))
	assert.Equal(t, uint64(2), out.Histogram.GetSampleCount())
}
