package adapter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

// FS is the filesystem capability the adapter exposes. Names are slash
// separated and relative to the filesystem root.
type FS interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
	// List returns the names starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// cleanName normalizes name and keeps it inside the root.
func cleanName(name string) string {
	return strings.TrimPrefix(path.Clean("/"+name), "/")
}

// LockTimeout bounds how long NativeFS waits for the directory lock before
// writing without it.
const LockTimeout = 100 * time.Millisecond

const lockName = ".studio.lock"

// NativeFS is an OS directory, used under the privileged shell. Mutations
// take an advisory lock on the directory since several windows can share it.
type NativeFS struct {
	root string
}

// NewNativeFS creates the root directory if needed.
func NewNativeFS(root string) (*NativeFS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", root, err)
	}
	return &NativeFS{root: root}, nil
}

func (n *NativeFS) path(name string) string {
	return filepath.Join(n.root, filepath.FromSlash(cleanName(name)))
}

func (n *NativeFS) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(n.path(name))
}

// lock takes the directory lock. A lock that stays busy past LockTimeout is
// skipped and the returned release does nothing.
func (n *NativeFS) lock(ctx context.Context) (func(), error) {
	fl := flock.New(filepath.Join(n.root, lockName))
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lockCtx, 10*time.Millisecond)
	if err != nil {
		if errors.Is(lockCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return func() {}, nil
		}
		return nil, fmt.Errorf("failed to lock %s: %w", n.root, err)
	}
	if !locked {
		return func() {}, nil
	}
	return func() { _ = fl.Unlock() }, nil
}

func (n *NativeFS) WriteFile(ctx context.Context, name string, data []byte) error {
	release, err := n.lock(ctx)
	if err != nil {
		return err
	}
	defer release()
	target := n.path(name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (n *NativeFS) Remove(ctx context.Context, name string) error {
	release, err := n.lock(ctx)
	if err != nil {
		return err
	}
	defer release()
	return os.Remove(n.path(name))
}

func (n *NativeFS) List(_ context.Context, prefix string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(n.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == lockName || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(n.root, p)
		if err != nil {
			return err
		}
		if name := filepath.ToSlash(rel); strings.HasPrefix(name, prefix) {
			out = append(out, name)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}
