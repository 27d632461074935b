package engine

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/datallboy/blobsync/internal/domain"
)

type blockFunc func(ctx context.Context, r *run, b domain.Block) error

// runWorkerPool drains pending with a fixed number of workers. The first
// failure cancels the others and is returned.
func (e *Engine) runWorkerPool(ctx context.Context, r *run, pending []domain.Block, process blockFunc) error {
	if len(pending) == 0 {
		return nil
	}

	queue := NewTransferQueue(pending)

	workerCount := min(e.workers, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	for w := 1; w <= workerCount; w++ {
		g.Go(func() error {
			return e.worker(gctx, r, queue, process)
		})
	}

	return g.Wait()
}

// worker pops blocks until the queue is empty.
func (e *Engine) worker(ctx context.Context, r *run, queue *TransferQueue, process blockFunc) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, ok := queue.TryPop()
		if !ok {
			return nil
		}

		if err := e.withRetry(ctx, r, b, process); err != nil {
			if ctx.Err() != nil {
				// another worker failed first or the caller gave up; the
				// error here only echoes that cancellation
				return err
			}
			e.metrics.BlockFailed(string(r.mode))
			r.log.Error("[FAIL] Block #%d of %s: %v", b.Index, r.name, err)
			return err
		}
	}
}

// processDownload fetches one block into the working copy and records it
// in the resume manifest.
func (e *Engine) processDownload(ctx context.Context, r *run, b domain.Block) error {
	if cur, ok := r.blocks.Get(b.ID); ok && cur.State.Local {
		return nil
	}

	offset := b.Offset(e.blockSize)

	data, err := e.blobs.GetRange(ctx, r.name, offset, b.Size)
	if err != nil {
		return withBlock(err, b.Index)
	}

	if len(data) == 0 || (r.exactSizes && int64(len(data)) != b.Size) {
		return &domain.TransportError{
			Op: "get range", Block: b.Index,
			Err: fmt.Errorf("got %d bytes, expected %d: %w", len(data), b.Size, io.ErrUnexpectedEOF),
		}
	}

	if err := e.writer.WriteAt(r.dataPath, data, offset); err != nil {
		return &domain.LocalIOError{Op: "write block", Path: r.dataPath, Block: b.Index, Err: err}
	}

	r.blocks.MarkLocal(b.ID, int64(len(data)))

	if err := e.persist(ctx, r); err != nil {
		return err
	}

	e.blockDone(r, len(data))
	return nil
}

// processUpload reads one block from the local file and stages it.
func (e *Engine) processUpload(ctx context.Context, r *run, b domain.Block) error {
	if cur, ok := r.blocks.Get(b.ID); ok && cur.State.UploadedStaged {
		return nil
	}

	bufp := e.bufferPool.Get().(*[]byte)

	data := (*bufp)[:b.Size]
	n, err := r.src.ReadAt(data, b.Offset(e.blockSize))
	if n < len(data) {
		e.bufferPool.Put(bufp)
		if err == nil || errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return &domain.LocalIOError{Op: "read block", Path: r.target, Block: b.Index, Err: err}
	}

	if err := e.blobs.PutBlock(ctx, r.name, b.ID, data, domain.Checksum(data)); err != nil {
		// the transport may still hold the body after a failed request,
		// so the buffer is left to the garbage collector
		return withBlock(err, b.Index)
	}
	e.bufferPool.Put(bufp)

	r.blocks.MarkStaged(b.ID)
	e.blockDone(r, n)
	return nil
}

// persist saves the ids of every local block. Snapshot and save share one
// critical section so a slower writer never replaces a newer manifest.
func (e *Engine) persist(ctx context.Context, r *run) error {
	r.persistMu.Lock()
	defer r.persistMu.Unlock()

	m := domain.Manifest{Length: r.length, Complete: r.blocks.LocalIDs()}
	if err := r.resume.Save(ctx, m); err != nil {
		return fmt.Errorf("persist resume state: %w", err)
	}
	return nil
}

func (e *Engine) blockDone(r *run, n int) {
	r.transferred.Add(1)
	r.bytes.Add(int64(n))
	e.progress.blockDone(n)
	e.metrics.BlockDone(string(r.mode), n)
}

// withBlock tags a transport error that the client could not attribute.
func withBlock(err error, index int64) error {
	var te *domain.TransportError
	if errors.As(err, &te) && te.Block == domain.NoBlock {
		te.Block = index
	}
	return err
}
