package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/segmentio/ksuid"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/domain"
	"github.com/datallboy/blobsync/internal/infra/logger"
	"github.com/datallboy/blobsync/internal/metrics"
	"github.com/datallboy/blobsync/internal/processor"
)

type Mode string

const (
	ModeUpload   Mode = "upload"
	ModeDownload Mode = "download"
)

// Result summarises one finished run.
type Result struct {
	RunID string
	Mode  Mode
	Name  string
	// Blocks is the number of blocks the object consists of.
	Blocks int
	// Transferred and Bytes count only the work done by this run.
	Transferred int
	Bytes       int64
	// Committed reports whether a block list was committed.
	Committed bool
	Elapsed   time.Duration
}

// Run converts r into a history record finished at the given time.
func (r *Result) Run(finishedAt time.Time) domain.TransferRun {
	return domain.TransferRun{
		ID:          r.RunID,
		Mode:        string(r.Mode),
		Name:        r.Name,
		Blocks:      r.Blocks,
		Transferred: r.Transferred,
		Bytes:       r.Bytes,
		Committed:   r.Committed,
		Elapsed:     r.Elapsed,
		FinishedAt:  finishedAt,
	}
}

// Engine moves one file to or from the block store.
type Engine struct {
	ctx       *app.Context
	blobs     app.BlobService
	resume    app.ResumeProvider
	metrics   *metrics.Metrics
	writer    *FileWriter
	processor *processor.FileProcessor

	blockSize  int64
	workers    int
	retries    int
	retryDelay time.Duration

	progress   Progress
	bufferPool sync.Pool
}

func NewEngine(appCtx *app.Context, writer *FileWriter) *Engine {
	if appCtx.Logger == nil {
		appCtx.Logger = logger.NewNop()
	}
	if writer == nil {
		writer = NewFileWriter()
	}

	e := &Engine{
		ctx:        appCtx,
		blobs:      appCtx.Blobs,
		resume:     appCtx.Resume,
		metrics:    appCtx.Metrics,
		writer:     writer,
		processor:  processor.NewFileProcessor(appCtx.Logger, writer),
		blockSize:  domain.DefaultBlockSize,
		workers:    2,
		retryDelay: 500 * time.Millisecond,
	}

	if cfg := appCtx.Config; cfg != nil {
		if cfg.Transfer.BlockSize > 0 {
			e.blockSize = cfg.Transfer.BlockSize
		}
		if cfg.Transfer.Workers > 0 {
			e.workers = cfg.Transfer.Workers
		}
		if cfg.Transfer.RetryDelay > 0 {
			e.retryDelay = cfg.Transfer.RetryDelay
		}
		e.retries = cfg.Transfer.Retries
	}

	// Upload buffers are reused across blocks and runs
	blockSize := e.blockSize
	e.bufferPool.New = func() any {
		buf := make([]byte, blockSize)
		return &buf
	}

	return e
}

// Progress exposes the counters of the run in flight.
func (e *Engine) Progress() *Progress {
	return &e.progress
}

// run is the state of one Sync call.
type run struct {
	id     string
	mode   Mode
	name   string
	target string
	blocks *domain.BlockMap
	log    *logger.Logger

	// upload
	src *os.File

	// download
	dataPath   string
	length     int64
	exactSizes bool
	resume     app.ResumeStore
	persistMu  sync.Mutex

	transferred atomic.Int64
	bytes       atomic.Int64
}

func (e *Engine) newRun(mode Mode, target string) *run {
	id := ksuid.New().String()
	return &run{
		id:     id,
		mode:   mode,
		name:   filepath.Base(target),
		target: target,
		log:    e.ctx.Logger.With("run", id),
	}
}

func (r *run) result(started time.Time, committed bool) *Result {
	return &Result{
		RunID:       r.id,
		Mode:        r.mode,
		Name:        r.name,
		Blocks:      r.blocks.Len(),
		Transferred: int(r.transferred.Load()),
		Bytes:       r.bytes.Load(),
		Committed:   committed,
		Elapsed:     time.Since(started),
	}
}

// Sync uploads target when it exists locally and downloads it otherwise.
// The remote object is named after the base name of target.
func (e *Engine) Sync(ctx context.Context, target string) (*Result, error) {
	info, err := os.Stat(target)
	switch {
	case err == nil:
		if info.IsDir() {
			return nil, &domain.LocalIOError{Op: "sync", Path: target, Block: domain.NoBlock, Err: errors.New("is a directory")}
		}
		return e.Upload(ctx, target)
	case errors.Is(err, fs.ErrNotExist):
		return e.Download(ctx, target)
	default:
		return nil, &domain.LocalIOError{Op: "stat", Path: target, Block: domain.NoBlock, Err: err}
	}
}

// Upload stages every block of target the store does not already hold and
// commits the block list when it changed.
func (e *Engine) Upload(ctx context.Context, target string) (*Result, error) {
	started := time.Now()
	r := e.newRun(ModeUpload, target)

	// leftovers of an interrupted download of a file that now exists locally
	e.discardDownloadState(ctx, r)

	src, err := os.Open(target)
	if err != nil {
		return nil, &domain.LocalIOError{Op: "open", Path: target, Block: domain.NoBlock, Err: err}
	}
	defer src.Close()
	r.src = src

	info, err := src.Stat()
	if err != nil {
		return nil, &domain.LocalIOError{Op: "stat", Path: target, Block: domain.NoBlock, Err: err}
	}

	planned, err := domain.PlanBlocks(info.Size(), e.blockSize)
	if err != nil {
		return nil, err
	}
	for _, b := range planned {
		b.State.Local = true
	}
	planCount := int64(len(planned))
	r.blocks = domain.NewBlockMap(planned...)

	list, err := e.blobs.GetBlockList(ctx, r.name)
	if err != nil {
		return nil, err
	}
	if _, err := Reconcile(r.blocks, list.Entries, e.blockSize); err != nil {
		return nil, err
	}
	e.dropMismatchedRemote(r, planCount)

	pending := r.blocks.Select(func(b domain.Block) bool {
		return b.Index < planCount && !b.State.UploadedStaged
	})

	r.log.Info("Uploading %s: %s in %d blocks, %d to stage",
		r.name, humanize.Bytes(uint64(info.Size())), planCount, len(pending))

	e.progress.reset(sumSizes(pending), int64(len(pending)))

	if err := e.runWorkerPool(ctx, r, pending, e.processUpload); err != nil {
		return nil, err
	}

	committed, err := e.commit(ctx, r, planCount, list.ObjectExists())
	if err != nil {
		return nil, err
	}

	res := r.result(started, committed)
	res.Blocks = int(planCount)
	r.log.Info("Upload of %s finished: staged %d blocks (%s) in %s",
		r.name, res.Transferred, humanize.Bytes(uint64(res.Bytes)), res.Elapsed.Truncate(time.Millisecond))

	return res, nil
}

// dropMismatchedRemote forgets remote knowledge of planned blocks whose
// remote size differs from the local one, so they are staged again.
func (e *Engine) dropMismatchedRemote(r *run, planCount int64) {
	stale := r.blocks.Select(func(b domain.Block) bool {
		return b.Index < planCount && b.State.RemoteKnown && b.RemoteSize > 0 && b.RemoteSize != b.Size
	})
	for _, b := range stale {
		r.log.Debug("Block #%d is %d bytes remotely and %d locally, restaging", b.Index, b.RemoteSize, b.Size)
		r.blocks.Update(b.ID, func(b *domain.Block) {
			b.State = domain.BlockState{Local: b.State.Local}
			b.RemoteSize = 0
		})
	}
}

func (e *Engine) discardDownloadState(ctx context.Context, r *run) {
	if err := e.processor.Cleanup(r.target); err != nil {
		r.log.Warn("Could not remove stale work dir for %s: %v", r.name, err)
	}
	store, err := e.resume.Open(r.target)
	if err != nil {
		r.log.Warn("Could not open resume state for %s: %v", r.name, err)
		return
	}
	if err := store.Discard(ctx); err != nil {
		r.log.Warn("Could not discard resume state for %s: %v", r.name, err)
	}
}

// Download fetches every block of the remote object that is not already in
// the working copy, then promotes the working copy to target.
func (e *Engine) Download(ctx context.Context, target string) (*Result, error) {
	started := time.Now()
	r := e.newRun(ModeDownload, target)
	r.dataPath = domain.WorkDataPath(target)

	list, err := e.blobs.GetBlockList(ctx, r.name)
	if err != nil {
		return nil, err
	}
	if !list.ObjectExists() {
		return nil, fmt.Errorf("download %s: %w", r.name, domain.ErrObjectNotFound)
	}

	r.blocks = domain.NewBlockMap()
	if _, err := Reconcile(r.blocks, list.Entries, e.blockSize); err != nil {
		return nil, err
	}

	size := list.ContentLength
	if size >= 0 {
		if err := clampToLength(r.blocks, size, e.blockSize); err != nil {
			return nil, fmt.Errorf("download %s: %w", r.name, err)
		}
		r.exactSizes = true
	} else {
		r.exactSizes = sizeFromListing(r.blocks)
		size = sumSizes(r.blocks.Snapshot())
	}
	r.length = size

	store, err := e.resume.Open(target)
	if err != nil {
		return nil, err
	}
	r.resume = store

	defer e.writer.CloseAll()

	resumed, err := e.processor.Prepare(target, size)
	if err != nil {
		return nil, err
	}
	if resumed {
		e.restoreProgress(ctx, r)
	} else if err := store.Discard(ctx); err != nil {
		// the working copy is gone, so any manifest is meaningless
		r.log.Warn("Could not discard resume state for %s: %v", r.name, err)
	}

	pending := r.blocks.Select(func(b domain.Block) bool { return !b.State.Local })

	r.log.Info("Downloading %s: %s in %d blocks, %d to fetch",
		r.name, humanize.Bytes(uint64(size)), r.blocks.Len(), len(pending))

	e.progress.reset(sumSizes(pending), int64(len(pending)))

	if err := e.runWorkerPool(ctx, r, pending, e.processDownload); err != nil {
		return nil, err
	}

	finalSize := size
	if !r.exactSizes {
		finalSize = sumSizes(r.blocks.Snapshot())
	}
	if err := e.processor.Finalize(target, finalSize); err != nil {
		return nil, err
	}
	if err := store.Discard(ctx); err != nil {
		r.log.Warn("Could not discard resume state for %s: %v", r.name, err)
	}

	res := r.result(started, false)
	r.log.Info("Download of %s finished: fetched %d blocks (%s) in %s",
		r.name, res.Transferred, humanize.Bytes(uint64(res.Bytes)), res.Elapsed.Truncate(time.Millisecond))

	return res, nil
}

// restoreProgress marks the blocks recorded in the resume manifest as local.
// An unreadable manifest only costs a full download.
func (e *Engine) restoreProgress(ctx context.Context, r *run) {
	m, err := r.resume.Load(ctx)
	if err != nil {
		r.log.Warn("Ignoring resume state for %s: %v", r.name, err)
		return
	}
	if m == nil {
		return
	}
	if m.Length != r.length {
		r.log.Warn("Ignoring resume state for %s: saved for %d bytes, remote object is %d bytes",
			r.name, m.Length, r.length)
		return
	}
	if !r.exactSizes {
		// a block saved earlier may be shorter than its nominal size
		r.log.Warn("Ignoring resume state for %s: remote block sizes are unknown", r.name)
		return
	}

	restored := 0
	for _, id := range m.Complete {
		if b, ok := r.blocks.Get(id); ok {
			r.blocks.MarkLocal(id, b.Size)
			restored++
		}
	}
	if restored > 0 {
		r.log.Info("Resuming %s: %d of %d blocks already on disk", r.name, restored, r.blocks.Len())
	}
}

// clampToLength fits the nominal block sizes to an object of length bytes.
// It fails when the committed blocks do not tile the object exactly, which
// happens when it was written with a different block size.
func clampToLength(bm *domain.BlockMap, length, blockSize int64) error {
	var covered int64
	for _, b := range bm.Snapshot() {
		size := min(b.Size, length-b.Offset(blockSize))
		if size <= 0 {
			return fmt.Errorf("block #%d starts past the end of the object (%d bytes)", b.Index, length)
		}
		if size != b.Size {
			bm.Update(b.ID, func(b *domain.Block) { b.Size = size })
		}
		covered += size
	}
	if covered != length {
		return fmt.Errorf("committed blocks cover %d of %d bytes at block size %d", covered, length, blockSize)
	}
	return nil
}

// sizeFromListing sizes blocks from the sizes the listing reported. It
// reports whether every block had one.
func sizeFromListing(bm *domain.BlockMap) bool {
	exact := true
	for _, b := range bm.Snapshot() {
		if b.RemoteSize <= 0 {
			exact = false
			continue
		}
		if b.RemoteSize != b.Size {
			bm.Update(b.ID, func(b *domain.Block) { b.Size = b.RemoteSize })
		}
	}
	return exact
}

func sumSizes(blocks []domain.Block) int64 {
	var n int64
	for _, b := range blocks {
		n += b.Size
	}
	return n
}
