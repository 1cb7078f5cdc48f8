package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}
	return byName
}

func TestScope_Count(t *testing.T) {
	assert := assert.New(t)

	scope := NewScope("subscriptions", nil)
	scope.Increment("executed", Tags{"entity": "events"})
	scope.Increment("executed", Tags{"entity": "events"})
	scope.Count("executed", 3, Tags{"entity": "transactions"})

	families := gather(t, scope.Registry())
	family, ok := families["subscriptions_executed"]
	require.True(t, ok)
	require.Len(t, family.Metric, 2)

	totals := make(map[string]float64)
	for _, m := range family.Metric {
		totals[m.Label[0].GetValue()] = m.Counter.GetValue()
	}
	assert.Equal(2.0, totals["events"])
	assert.Equal(3.0, totals["transactions"])
}

func TestScope_Gauge(t *testing.T) {
	assert := assert.New(t)

	scope := NewScope("migrations", nil)
	scope.Gauge("pending", 4, nil)
	scope.Gauge("pending", 2, nil)

	families := gather(t, scope.Registry())
	family, ok := families["migrations_pending"]
	require.True(t, ok)
	assert.Equal(2.0, family.Metric[0].Gauge.GetValue())
}

func TestScope_Time(t *testing.T) {
	assert := assert.New(t)

	scope := NewScope("processors", nil)
	err := scope.Time("apply", Tags{"processor": "prewhere"}, func() error {
		time.Sleep(time.Millisecond)
		return nil
	})
	assert.NoError(err)

	families := gather(t, scope.Registry())
	family, ok := families["processors_apply"]
	require.True(t, ok)
	assert.Equal(uint64(1), family.Metric[0].Histogram.GetSampleCount())
	assert.Greater(family.Metric[0].Histogram.GetSampleSum(), 0.0)
}
