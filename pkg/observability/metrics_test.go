package observability_test

import (
	"testing"
	"time"

	"github.com/aretw0/arepl/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.Evaluated(time.Second, false)
		m.Restarted("crash")
		m.Interrupted()
		m.CommunicationError()
		m.Rendered(true)
	})
}

func TestMetrics_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.Evaluated(10*time.Millisecond, false)
	m.Evaluated(20*time.Millisecond, true)
	m.Restarted("crash")
	m.Interrupted()
	m.Interrupted()

	count, err := testutil.GatherAndCount(reg, "arepl_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per outcome label")

	count, err = testutil.GatherAndCount(reg, "arepl_interrupted_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
