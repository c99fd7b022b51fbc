package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type Repository interface {
	CreateRender(ctx context.Context, r *Render) error
	CompleteRender(ctx context.Context, r *Render) error
	GetRender(ctx context.Context, id string) (*Render, error)
	ListRenders(ctx context.Context, limit int) ([]*Render, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateRender(ctx context.Context, rn *Render) error {
	if rn.Status == "" {
		rn.Status = StatusRunning
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO renders (id, source_url, video_id, status, mode, entry_count, artifact_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rn.ID, rn.SourceURL, rn.VideoID, rn.Status, rn.Mode, rn.EntryCount, len(rn.Artifacts), rn.Error,
		rn.CreatedAt.UTC().Format(time.RFC3339), rn.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// CompleteRender stores the final state of a render and replaces its
// artifact rows in one transaction.
func (r *SQLiteRepository) CompleteRender(ctx context.Context, rn *Render) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE renders SET video_id = ?, status = ?, mode = ?, entry_count = ?, artifact_count = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, rn.VideoID, rn.Status, rn.Mode, rn.EntryCount, len(rn.Artifacts), rn.Error,
		rn.UpdatedAt.UTC().Format(time.RFC3339), rn.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("render %s not found", rn.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM artifacts WHERE render_id = ?", rn.ID); err != nil {
		return err
	}
	for _, a := range rn.Artifacts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (render_id, idx, path, text, start_s, duration_s)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rn.ID, a.Index, a.Path, a.Text, a.Start, a.Duration); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetRender(ctx context.Context, id string) (*Render, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source_url, video_id, status, mode, entry_count, artifact_count, error, created_at, updated_at
		FROM renders WHERE id = ?
	`, id)

	rn, err := scanRender(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT idx, path, text, start_s, duration_s
		FROM artifacts WHERE render_id = ? ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var a Artifact
		if err := rows.Scan(&a.Index, &a.Path, &a.Text, &a.Start, &a.Duration); err != nil {
			return nil, err
		}
		rn.Artifacts = append(rn.Artifacts, a)
	}
	return rn, rows.Err()
}

// ListRenders returns the most recent renders first, without artifacts.
func (r *SQLiteRepository) ListRenders(ctx context.Context, limit int) ([]*Render, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_url, video_id, status, mode, entry_count, artifact_count, error, created_at, updated_at
		FROM renders ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var renders []*Render
	for rows.Next() {
		rn, err := scanRender(rows)
		if err != nil {
			return nil, err
		}
		renders = append(renders, rn)
	}
	return renders, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value, updated_at) VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRender(s scanner) (*Render, error) {
	var rn Render
	var createdAt, updatedAt string
	err := s.Scan(&rn.ID, &rn.SourceURL, &rn.VideoID, &rn.Status, &rn.Mode,
		&rn.EntryCount, &rn.ArtifactCount, &rn.Error, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rn.CreatedAt = parseTime(createdAt)
	rn.UpdatedAt = parseTime(updatedAt)
	return &rn, nil
}

// parseTime accepts RFC3339 written by this package and the
// "YYYY-MM-DD HH:MM:SS" form produced by SQLite's datetime().
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse(time.DateTime, s)
	return t
}
