package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpUpload   = "upload"
	OpDownload = "download"
)

// Metrics provides Prometheus counters for block transfers.
//
// All metrics use the blobsync_ prefix. Methods handle a nil receiver so
// the engine can run without metrics.
type Metrics struct {
	// BlocksTotal counts blocks transferred by operation
	BlocksTotal *prometheus.CounterVec

	// BytesTotal counts payload bytes transferred by operation
	BytesTotal *prometheus.CounterVec

	// BlockErrorsTotal counts block transfers that failed the run
	BlockErrorsTotal *prometheus.CounterVec

	// RetriesTotal counts block attempts that were retried
	RetriesTotal *prometheus.CounterVec

	// CommitsTotal counts successful block list commits
	CommitsTotal prometheus.Counter
}

// New creates and registers the transfer metrics. Pass a nil registerer
// to create unregistered metrics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BlocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobsync_blocks_total",
				Help: "Total blocks transferred by operation",
			},
			[]string{"op"},
		),

		BytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobsync_bytes_total",
				Help: "Total block payload bytes transferred by operation",
			},
			[]string{"op"},
		),

		BlockErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobsync_block_errors_total",
				Help: "Total block transfers that failed by operation",
			},
			[]string{"op"},
		),

		RetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobsync_block_retries_total",
				Help: "Total block transfer attempts retried by operation",
			},
			[]string{"op"},
		),

		CommitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "blobsync_commits_total",
				Help: "Total block lists committed",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.BlocksTotal,
			m.BytesTotal,
			m.BlockErrorsTotal,
			m.RetriesTotal,
			m.CommitsTotal,
		)
	}

	return m
}

// BlockDone records one transferred block of n bytes.
func (m *Metrics) BlockDone(op string, n int) {
	if m == nil {
		return
	}
	m.BlocksTotal.WithLabelValues(op).Inc()
	m.BytesTotal.WithLabelValues(op).Add(float64(n))
}

func (m *Metrics) BlockFailed(op string) {
	if m == nil {
		return
	}
	m.BlockErrorsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) BlockRetried(op string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) Committed() {
	if m == nil {
		return
	}
	m.CommitsTotal.Inc()
}
