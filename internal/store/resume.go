package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/datallboy/blobsync/internal/app"
	"github.com/datallboy/blobsync/internal/domain"
)

// Open scopes the resume state to target. Targets are keyed by absolute
// path so relative invocations from different directories do not collide.
func (s *PersistentStore) Open(target string) (app.ResumeStore, error) {
	abs, err := filepath.Abs(target)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", target, err)
	}
	return &ResumeState{db: s, target: abs}, nil
}

// ResumeState is the sqlite resume manifest of one download target.
type ResumeState struct {
	db     *PersistentStore
	target string
}

func (r *ResumeState) Load(ctx context.Context) (*domain.Manifest, error) {
	m := &domain.Manifest{}

	err := r.db.db.QueryRowContext(ctx,
		"SELECT length FROM resume_objects WHERE target = ?", r.target).Scan(&m.Length)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.db.QueryContext(ctx,
		"SELECT block_id FROM resume_blocks WHERE target = ? ORDER BY position", r.target)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		m.Complete = append(m.Complete, id)
	}
	return m, rows.Err()
}

// Save replaces the stored manifest in one transaction.
func (r *ResumeState) Save(ctx context.Context, m domain.Manifest) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO resume_objects (target, length) VALUES (?, ?)", r.target, m.Length)
	if err != nil {
		return fmt.Errorf("save object length: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM resume_blocks WHERE target = ?", r.target); err != nil {
		return fmt.Errorf("clear resume state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO resume_blocks (target, block_id, position) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range m.Complete {
		if _, err := stmt.ExecContext(ctx, r.target, id, i); err != nil {
			return fmt.Errorf("save block %s: %w", id, err)
		}
	}

	return tx.Commit()
}

func (r *ResumeState) Discard(ctx context.Context) error {
	tx, err := r.db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM resume_blocks WHERE target = ?", r.target); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM resume_objects WHERE target = ?", r.target); err != nil {
		return err
	}
	return tx.Commit()
}
