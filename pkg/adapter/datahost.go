package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/astromechza/studio/pkg/model"
)

// ErrProjectNotFound is returned when no source knows a project id.
var ErrProjectNotFound = errors.New("project not found")

// ProjectExt is the file extension of saved projects.
const ProjectExt = ".studio"

// ProjectPath is where a project is stored inside an FS.
func ProjectPath(id string) string {
	return "projects/" + id + ProjectExt
}

// ValidProjectID rejects ids that could escape the projects directory.
func ValidProjectID(id string) bool {
	return id != "" && id != "." && id != ".." && !strings.ContainsAny(id, `/\`)
}

// DataHost is the project registry. Lookups fall back from the in-memory
// registry to the filesystem and then to the host process.
type DataHost struct {
	fs       FS
	remote   *url.URL
	client   *http.Client
	logger   *slog.Logger
	projects map[string]*model.Project
}

func NewDataHost(fsys FS, remote *url.URL, client *http.Client, logger *slog.Logger) *DataHost {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DataHost{fs: fsys, remote: remote, client: client, logger: logger, projects: make(map[string]*model.Project)}
}

// AddProject registers p, replacing a project with the same id.
func (d *DataHost) AddProject(p *model.Project) {
	d.projects[p.ID()] = p
}

// Projects returns the registered project ids, sorted.
func (d *DataHost) Projects() []string {
	out := make([]string, 0, len(d.projects))
	for id := range d.projects {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetProject looks up a project by id.
func (d *DataHost) GetProject(ctx context.Context, id string) (*model.Project, error) {
	if !ValidProjectID(id) {
		return nil, fmt.Errorf("%w: invalid id %q", ErrProjectNotFound, id)
	}
	if p, ok := d.projects[id]; ok {
		return p, nil
	}

	if d.fs != nil {
		raw, err := d.fs.ReadFile(ctx, ProjectPath(id))
		switch {
		case err == nil:
			p, err := model.LoadProject(id, raw)
			if err != nil {
				return nil, fmt.Errorf("failed to load project %s: %w", id, err)
			}
			d.AddProject(p)
			return p, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("failed to read project %s: %w", id, err)
		}
	}

	if d.remote != nil {
		p, err := d.fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		d.AddProject(p)
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
}

func (d *DataHost) fetch(ctx context.Context, id string) (*model.Project, error) {
	u := d.remote.JoinPath("projects", id, "latest")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from get: %w", err)
	}
	d.logger.Debug("fetched project from host", "project", id, "bytes", len(raw))
	return model.LoadProject(id, raw)
}

// SaveProject writes p to the filesystem and registers it.
func (d *DataHost) SaveProject(ctx context.Context, p *model.Project) error {
	if !ValidProjectID(p.ID()) {
		return fmt.Errorf("invalid project id %q", p.ID())
	}
	if d.fs == nil {
		return errors.New("no filesystem available")
	}
	if err := d.fs.WriteFile(ctx, ProjectPath(p.ID()), p.Save()); err != nil {
		return fmt.Errorf("failed to write project %s: %w", p.ID(), err)
	}
	d.AddProject(p)
	return nil
}
