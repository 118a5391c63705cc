package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/store"
)

type fakeLookup struct {
	projects map[string]*model.Project
	added    []string
	lookups  []string
	err      error
}

func (f *fakeLookup) AddProject(p *model.Project) {
	f.added = append(f.added, p.ID())
}

func (f *fakeLookup) GetProject(_ context.Context, id string) (*model.Project, error) {
	f.lookups = append(f.lookups, id)
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.projects[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", adapter.ErrProjectNotFound, id)
}

func newLookup(t *testing.T, ids ...string) *fakeLookup {
	t.Helper()
	f := &fakeLookup{projects: map[string]*model.Project{}}
	for _, id := range ids {
		p, err := model.NewProject(id, "Project "+id)
		require.NoError(t, err)
		f.projects[id] = p
	}
	return f
}

func TestParsePath(t *testing.T) {
	for _, tc := range []struct {
		path      string
		id        string
		libraries bool
		ok        bool
	}{
		{"/", "", false, false},
		{"", "", false, false},
		{"/project", "", false, false},
		{"/project/", "", false, false},
		{"/project/abc", "abc", false, true},
		{"//project//abc/", "abc", false, true},
		{"/project/abc/store", "abc", true, true},
		{"/project/store", "store", false, true},
		{"/library/abc", "", false, false},
	} {
		t.Run(tc.path, func(t *testing.T) {
			id, libraries, ok := ParsePath(tc.path)
			assert.Equal(t, tc.id, id)
			assert.Equal(t, tc.libraries, libraries)
			assert.Equal(t, tc.ok, ok)
		})
	}
}

func embeddedProject(t *testing.T, id string) json.RawMessage {
	t.Helper()
	p, err := model.NewProject(id, "Embedded")
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	return raw
}

func TestEmbeddedProjectWins(t *testing.T) {
	st := store.New(store.Options{})
	lookup := newLookup(t, "abc")

	res := Project(context.Background(), st, embeddedProject(t, "emb"), "/project/abc", lookup, nil)

	assert.Equal(t, Result{Source: SourceEmbedded, ProjectID: "emb"}, res)
	assert.Empty(t, lookup.lookups, "the path must not be consulted")
	assert.Equal(t, []string{"emb"}, lookup.added)
	assert.Equal(t, "emb", st.ProjectID())
	assert.True(t, st.Project().Committed())
	assert.Equal(t, 1, st.History().Len())
}

func TestPathProjectDesign(t *testing.T) {
	st := store.New(store.Options{})
	res := Project(context.Background(), st, nil, "/project/abc", newLookup(t, "abc"), nil)

	assert.Equal(t, SourcePath, res.Source)
	assert.Equal(t, "abc", st.ProjectID())
	assert.Equal(t, model.ViewPageDetail, st.ActiveView())
	assert.Equal(t, model.ModeDesign, st.ProjectViewMode())
	assert.True(t, st.Project().Committed())
}

func TestPathProjectLibraries(t *testing.T) {
	st := store.New(store.Options{})
	res := Project(context.Background(), st, nil, "/project/abc/store", newLookup(t, "abc"), nil)

	assert.Equal(t, SourcePath, res.Source)
	assert.Equal(t, model.ViewPageDetail, st.ActiveView())
	assert.Equal(t, model.ModeLibraries, st.ProjectViewMode())
}

func TestInvalidEmbeddedFallsThroughToPath(t *testing.T) {
	st := store.New(store.Options{})
	lookup := newLookup(t, "abc")
	res := Project(context.Background(), st, json.RawMessage(`{"name":"no id"}`), "/project/abc", lookup, nil)
	assert.Equal(t, SourcePath, res.Source)
	assert.Equal(t, []string{"abc"}, lookup.lookups)
}

func TestMissingProjectIsRecorded(t *testing.T) {
	for name, lookup := range map[string]*fakeLookup{
		"not found":    newLookup(t),
		"lookup error": {err: errors.New("boom")},
	} {
		t.Run(name, func(t *testing.T) {
			st := store.New(store.Options{})
			st.SetActiveView(model.ViewPageDetail)
			res := Project(context.Background(), st, nil, "/project/nope", lookup, nil)

			assert.Equal(t, Result{Source: SourceNone, Missing: "nope"}, res)
			assert.Nil(t, st.Project())
			assert.Equal(t, "nope", st.MissingProject())
			assert.Equal(t, model.ViewSplashScreen, st.ActiveView())
		})
	}
}

func TestNoSource(t *testing.T) {
	st := store.New(store.Options{})
	lookup := newLookup(t)
	res := Project(context.Background(), st, nil, "/", lookup, nil)
	assert.Equal(t, Result{Source: SourceNone}, res)
	assert.Empty(t, lookup.lookups)
	assert.Nil(t, st.Project())
}
