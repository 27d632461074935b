package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.BlockDone(OpUpload, 10)
		m.BlockFailed(OpUpload)
		m.BlockRetried(OpDownload)
		m.Committed()
	})
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BlockDone(OpUpload, 100)
	m.BlockDone(OpUpload, 50)
	m.BlockDone(OpDownload, 7)
	m.BlockFailed(OpDownload)
	m.BlockRetried(OpDownload)
	m.Committed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlocksTotal.WithLabelValues(OpUpload)))
	assert.Equal(t, 150.0, testutil.ToFloat64(m.BytesTotal.WithLabelValues(OpUpload)))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.BytesTotal.WithLabelValues(OpDownload)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockErrorsTotal.WithLabelValues(OpDownload)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RetriesTotal.WithLabelValues(OpDownload)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestNewWithoutRegistry(t *testing.T) {
	m := New(nil)
	m.Committed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CommitsTotal))
}
