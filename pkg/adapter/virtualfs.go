package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// VirtualFS is the sandboxed filesystem: files kept in a sqlite database
// instead of the OS filesystem. It has to be installed and then configured
// before use, either step can fail.
type VirtualFS struct {
	db *sql.DB
}

// InstallVirtualFS opens the backing database.
func InstallVirtualFS(ctx context.Context, dsn string) (*VirtualFS, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// a second connection to ":memory:" would see a different database
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &VirtualFS{db: db}, nil
}

// Configure creates the schema.
func (v *VirtualFS) Configure(ctx context.Context) error {
	_, err := v.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS files (
		name text not null primary key,
		content blob not null,
		modified integer not null
		)`,
	)
	return err
}

// ProvisionVirtualFS installs and configures a virtual filesystem.
func ProvisionVirtualFS(ctx context.Context, dsn string) (*VirtualFS, error) {
	v, err := InstallVirtualFS(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to install virtual filesystem: %w", err)
	}
	if err := v.Configure(ctx); err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("failed to configure virtual filesystem: %w", err)
	}
	return v, nil
}

func (v *VirtualFS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	var content []byte
	err := v.db.QueryRowContext(ctx, `SELECT content FROM files WHERE name = ?`, cleanName(name)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return content, err
}

func (v *VirtualFS) WriteFile(ctx context.Context, name string, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	_, err := v.db.ExecContext(ctx,
		`INSERT INTO files (name, content, modified) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, modified = excluded.modified`,
		cleanName(name), data, time.Now().UnixNano(),
	)
	return err
}

func (v *VirtualFS) Remove(ctx context.Context, name string) error {
	res, err := v.db.ExecContext(ctx, `DELETE FROM files WHERE name = ?`, cleanName(name))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
	}
	return nil
}

func (v *VirtualFS) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := v.db.QueryContext(ctx,
		`SELECT name FROM files WHERE substr(name, 1, length(?)) = ? ORDER BY name`, prefix, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (v *VirtualFS) Close() error {
	return v.db.Close()
}
