package engine

import (
	"fmt"

	"github.com/datallboy/blobsync/internal/domain"
)

// Reconcile merges a remote block listing into bm and returns how many
// blocks were created.
//
// A committed entry without a local block gets one, indexed by its id and
// sized blockSize until the real size is known. Staged entries only update
// blocks that already exist. Committed implies staged, and either implies
// remote-known. Reconciling the same listing twice changes nothing.
func Reconcile(bm *domain.BlockMap, entries []domain.ListEntry, blockSize int64) (created int, err error) {
	for _, e := range entries {
		switch e.Category {
		case domain.CategoryCommitted:
			index, err := domain.ParseBlockID(e.ID)
			if err != nil {
				return created, fmt.Errorf("reconcile committed block %q: %w", e.ID, err)
			}
			if bm.Ensure(e.ID, index, blockSize) {
				created++
			}
			bm.Update(e.ID, func(b *domain.Block) {
				b.State.Committed = true
				b.State.UploadedStaged = true
				b.State.RemoteKnown = true
				b.RemoteSize = e.Size
			})

		case domain.CategoryStaged:
			bm.Update(e.ID, func(b *domain.Block) {
				b.State.UploadedStaged = true
				b.State.RemoteKnown = true
				// a staged block shadows a committed one with the same id
				b.RemoteSize = e.Size
			})
		}
	}

	return created, nil
}
