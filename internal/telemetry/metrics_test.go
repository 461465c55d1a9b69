package telemetry

import (
	"testing"

	"depthfeed/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegistrySetUpdatesGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.Set(model.Metrics{MessagesPerSecond: 12.5, FPS: 60, TabCount: 3})

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "depthfeed_tab_count" {
			found = true
			require.Len(t, mf.Metric, 1)
			require.Equal(t, float64(3), mf.Metric[0].GetGauge().GetValue())
		}
	}
	require.True(t, found, "expected depthfeed_tab_count to be registered")
}
