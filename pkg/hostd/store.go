package hostd

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/astromechza/studio/pkg/model"
)

// ErrNotFound is returned for unknown project ids.
var ErrNotFound = errors.New("project not found")

// Store persists every saved version of a project as a snapshot and points
// each project at its latest one.
type Store struct {
	database *sql.DB
}

// OpenStore opens the sqlite database at dsn and ensures the tables exist.
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{database: db}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	if _, err := s.database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS projects (
		id text not null primary key,
		snapshot_id text not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create projects table: %w", err)
	}
	if _, err := s.database.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS snapshots (
		id text not null primary key,
		project_id text not null,
		content text not null,
		created_at integer not null
		)`,
	); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}
	return nil
}

// Put stores a new snapshot of p and makes it the latest.
func (s *Store) Put(ctx context.Context, p *model.Project) error {
	tx, err := s.database.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to start tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	snapshotID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, project_id, content, created_at) VALUES (?, ?, ?, ?)`,
		snapshotID, p.ID(), base64.StdEncoding.EncodeToString(p.Save()), time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("failed to persist snapshot: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, snapshot_id) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET snapshot_id = excluded.snapshot_id`,
		p.ID(), snapshotID,
	); err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Latest returns the saved document of the latest snapshot.
func (s *Store) Latest(ctx context.Context, id string) ([]byte, error) {
	var rawContent string
	if err := s.database.QueryRowContext(ctx,
		`SELECT content FROM snapshots sn INNER JOIN projects pr ON sn.id = pr.snapshot_id WHERE pr.id = ?`,
		id,
	).Scan(&rawContent); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(rawContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode: %w", err)
	}
	return raw, nil
}

// Get loads the latest version of a project.
func (s *Store) Get(ctx context.Context, id string) (*model.Project, error) {
	raw, err := s.Latest(ctx, id)
	if err != nil {
		return nil, err
	}
	return model.LoadProject(id, raw)
}

// List returns the stored project ids in order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.database.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Snapshots returns how many versions of a project were stored.
func (s *Store) Snapshots(ctx context.Context, id string) (int, error) {
	var n int
	if err := s.database.QueryRowContext(ctx, `SELECT count(*) FROM snapshots WHERE project_id = ?`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to query: %w", err)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.database.Close()
}
