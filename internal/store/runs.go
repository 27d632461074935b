package store

import (
	"context"
	"time"

	"github.com/datallboy/blobsync/internal/domain"
)

func (s *PersistentStore) RecordRun(ctx context.Context, run domain.TransferRun) error {
	query := `INSERT OR REPLACE INTO transfer_runs (id, mode, name, blocks, transferred, bytes, committed, elapsed_ms, finished_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Mode,
		run.Name,
		run.Blocks,
		run.Transferred,
		run.Bytes,
		run.Committed,
		run.Elapsed.Milliseconds(),
		run.FinishedAt.Unix(),
	)
	return err
}

// RecentRuns returns up to limit runs, newest first.
func (s *PersistentStore) RecentRuns(ctx context.Context, limit int) ([]domain.TransferRun, error) {
	rows, err := s.db.QueryContext(ctx, `
			SELECT id, mode, name, blocks, transferred, bytes, committed, elapsed_ms, finished_at
			FROM transfer_runs
			ORDER BY finished_at DESC, id DESC
			LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.TransferRun
	for rows.Next() {
		var run domain.TransferRun
		var elapsedMS, finishedAt int64

		err := rows.Scan(&run.ID, &run.Mode, &run.Name, &run.Blocks, &run.Transferred,
			&run.Bytes, &run.Committed, &elapsedMS, &finishedAt)
		if err != nil {
			return nil, err
		}

		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		run.FinishedAt = time.Unix(finishedAt, 0)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}
