package engine

import (
	"context"
	"fmt"

	"github.com/datallboy/blobsync/internal/domain"
)

// commit makes the planned blocks the content of the remote object.
//
// The list always names every planned block in ascending index order, so
// repeating it is harmless. It is sent when a planned block is not yet
// committed, when the remote object still holds blocks past the end of the
// local file, or when an empty file has no remote object yet.
func (e *Engine) commit(ctx context.Context, r *run, planCount int64, objectExists bool) (bool, error) {
	planned := r.blocks.Select(func(b domain.Block) bool { return b.Index < planCount })

	needed := false
	ids := make([]string, 0, len(planned))
	for _, b := range planned {
		if !b.State.UploadedStaged {
			return false, fmt.Errorf("commit %s: block #%d is not staged", r.name, b.Index)
		}
		if !b.State.Committed {
			needed = true
		}
		ids = append(ids, b.ID)
	}

	if r.blocks.Len() > len(planned) {
		r.log.Info("Remote %s has %d blocks past the local end, shrinking it", r.name, r.blocks.Len()-len(planned))
		needed = true
	}
	if len(planned) == 0 && !objectExists {
		needed = true
	}

	if !needed {
		r.log.Info("%s is already committed, nothing to do", r.name)
		return false, nil
	}

	if err := e.blobs.PutBlockList(ctx, r.name, ids); err != nil {
		return false, err
	}

	r.blocks.MarkCommitted(ids)
	e.metrics.Committed()
	r.log.Debug("Committed %d blocks of %s", len(ids), r.name)

	return true, nil
}
