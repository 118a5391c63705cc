// Package resolve decides which project the renderer starts with.
package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/store"
)

// Source tells which input provided the project.
type Source int

const (
	SourceNone Source = iota
	SourceEmbedded
	SourcePath
)

func (s Source) String() string {
	switch s {
	case SourceEmbedded:
		return "embedded"
	case SourcePath:
		return "path"
	default:
		return "none"
	}
}

const (
	projectSegment = "project"
	storeSegment   = "store"
)

// Lookup is the project registry the pipeline registers with and queries.
type Lookup interface {
	AddProject(*model.Project)
	GetProject(ctx context.Context, id string) (*model.Project, error)
}

// Result describes the outcome of Project.
type Result struct {
	Source    Source
	ProjectID string
	// Missing is the id requested by the path when no project was found for it.
	Missing string
}

// ParsePath extracts a project id from a URL path of the form /project/<id>
// or /project/<id>/store. libraries is set when the last segment is "store".
func ParsePath(path string) (id string, libraries bool, ok bool) {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 2 || segments[0] != projectSegment {
		return "", false, false
	}
	return segments[1], len(segments) > 2 && segments[len(segments)-1] == storeSegment, true
}

// Project binds at most one project to st, trying in order: the project
// embedded in the startup payload, then the project named by the URL path.
// The first source that yields a project wins and later ones are not
// consulted. Lookup failures count as not found and are only logged.
func Project(ctx context.Context, st *store.Store, embedded json.RawMessage, path string, lookup Lookup, logger *slog.Logger) Result {
	if logger == nil {
		logger = slog.Default()
	}

	if len(embedded) > 0 {
		p, err := model.ProjectFrom(embedded)
		if err == nil {
			lookup.AddProject(p)
			st.SetProject(p)
			commit(st, logger)
			return Result{Source: SourceEmbedded, ProjectID: p.ID()}
		}
		logger.Warn("ignoring embedded project", "err", err)
	}

	id, libraries, ok := ParsePath(path)
	if !ok {
		return Result{Source: SourceNone}
	}
	p, err := lookup.GetProject(ctx, id)
	if err != nil || p == nil {
		level := slog.LevelWarn
		if err == nil || errors.Is(err, adapter.ErrProjectNotFound) {
			level = slog.LevelInfo
		}
		logger.Log(ctx, level, "no project found for path", "path", path, "project", id, "err", err)
		st.SetMissingProject(id)
		st.SetActiveView(model.ViewSplashScreen)
		return Result{Source: SourceNone, Missing: id}
	}

	st.SetProject(p)
	st.SetActiveView(model.ViewPageDetail)
	if libraries {
		st.SetProjectViewMode(model.ModeLibraries)
	}
	commit(st, logger)
	return Result{Source: SourcePath, ProjectID: p.ID()}
}

func commit(st *store.Store, logger *slog.Logger) {
	if err := st.Commit(); err != nil {
		logger.Error("failed to commit project", "err", err)
	}
}
