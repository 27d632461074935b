package engine

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/domain"
	"github.com/datallboy/blobsync/internal/infra/config"
	"github.com/datallboy/blobsync/internal/infra/logger"
	"github.com/datallboy/blobsync/internal/metrics"
)

// stallingBlobs fails the upload of block 0 once block 1 is in flight.
// Block 1 waits for cancellation and then fails the way net/http does,
// wrapping the cancellation cause.
type stallingBlobs struct {
	recordingBlobs
	inFlight chan struct{}
	status   int
}

func (f *stallingBlobs) PutBlock(ctx context.Context, name, id string, data []byte, checksum string) error {
	if id == domain.BlockID(0) {
		<-f.inFlight
		return &domain.TransportError{Op: "put block", Block: domain.NoBlock, Status: f.status}
	}
	close(f.inFlight)
	<-ctx.Done()
	return &domain.TransportError{Op: "put block", Block: domain.NoBlock, Err: fmt.Errorf("Put: %w", context.Cause(ctx))}
}

func newUploadRun(t *testing.T, blobs app.BlobService, size int64, retries int) (*Engine, *run, *metrics.Metrics) {
	t.Helper()

	src := filepath.Join(t.TempDir(), "file.bin")
	require.NoError(t, os.WriteFile(src, pattern(int(size)), 0644))
	f, err := os.Open(src)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	m := metrics.New(nil)
	cfg := &config.Config{Transfer: config.TransferConfig{Workers: 2, BlockSize: testBlockSize, Retries: retries}}
	e := NewEngine(&app.Context{Config: cfg, Logger: logger.NewNop(), Blobs: blobs, Metrics: m}, nil)

	r := e.newRun(ModeUpload, src)
	r.src = f
	planned, err := domain.PlanBlocks(size, testBlockSize)
	require.NoError(t, err)
	r.blocks = domain.NewBlockMap(planned...)
	return e, r, m
}

func TestWorkerPoolCountsOnlyTheFirstFailure(t *testing.T) {
	blobs := &stallingBlobs{inFlight: make(chan struct{}), status: http.StatusServiceUnavailable}
	e, r, m := newUploadRun(t, blobs, 2*testBlockSize, 0)

	err := e.runWorkerPool(t.Context(), r, r.blocks.Snapshot(), e.processUpload)

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, int64(0), te.Block)
	assert.Equal(t, http.StatusServiceUnavailable, te.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockErrorsTotal.WithLabelValues(metrics.OpUpload)))
}

func TestCancelledBlockIsNotRetried(t *testing.T) {
	blobs := &stallingBlobs{inFlight: make(chan struct{}), status: http.StatusForbidden}
	e, r, m := newUploadRun(t, blobs, 2*testBlockSize, 3)

	err := e.runWorkerPool(t.Context(), r, r.blocks.Snapshot(), e.processUpload)

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusForbidden, te.Status)
	assert.Zero(t, testutil.ToFloat64(m.RetriesTotal.WithLabelValues(metrics.OpUpload)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockErrorsTotal.WithLabelValues(metrics.OpUpload)))
}

// keepingBlobs fails every upload and remembers the buffers it was given.
type keepingBlobs struct {
	recordingBlobs
	mu   sync.Mutex
	seen []*byte
}

func (f *keepingBlobs) PutBlock(ctx context.Context, name, id string, data []byte, checksum string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, &data[0])
	return &domain.TransportError{Op: "put block", Block: domain.NoBlock, Status: http.StatusInternalServerError}
}

func TestFailedUploadDoesNotRecycleBuffer(t *testing.T) {
	blobs := &keepingBlobs{}
	e, r, _ := newUploadRun(t, blobs, testBlockSize, 0)

	b, ok := r.blocks.Get(domain.BlockID(0))
	require.True(t, ok)
	require.Error(t, e.processUpload(t.Context(), r, b))
	require.Len(t, blobs.seen, 1)

	bufp := e.bufferPool.Get().(*[]byte)
	assert.NotSame(t, blobs.seen[0], &(*bufp)[0], "a buffer the transport may still read is not reused")
}
