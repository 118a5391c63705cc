package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppDefaults(t *testing.T) {
	a := NewApp(AppState{Host: "bogus", View: "nowhere"})
	assert.NotEmpty(t, a.ID())
	assert.Equal(t, HostBrowser, a.HostKind())
	assert.Equal(t, ViewSplashScreen, a.ActiveView())
	assert.Equal(t, ModeDesign, a.ProjectViewMode())
	assert.Nil(t, a.Update())

	assert.NotEqual(t, NewApp(AppDefaults).ID(), NewApp(AppDefaults).ID())
	assert.Equal(t, "fixed", NewApp(AppState{ID: "fixed"}).ID())
}

func TestHostKindIsWriteOnce(t *testing.T) {
	a := NewApp(AppDefaults)
	changed, err := a.SetHostKind(HostShell)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, a.IsHostKind(HostShell))

	changed, err = a.SetHostKind(HostShell)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = a.SetHostKind(HostBrowser)
	assert.ErrorIs(t, err, ErrHostKindFixed)
	assert.Equal(t, HostShell, a.HostKind())
}

func TestAppSettersReportChanges(t *testing.T) {
	a := NewApp(AppDefaults)
	assert.False(t, a.SetActiveView(ViewSplashScreen))
	assert.True(t, a.SetActiveView(ViewPageDetail))
	assert.True(t, a.IsActiveView(ViewPageDetail))
	assert.False(t, a.SetProjectViewMode(ModeDesign))
	assert.True(t, a.SetProjectViewMode(ModeLibraries))

	u := &Update{Version: "1.2.3"}
	assert.True(t, a.SetUpdate(u))
	assert.False(t, a.SetUpdate(&Update{Version: "1.2.3"}))
	u.Version = "mutated"
	assert.Equal(t, "1.2.3", a.Update().Version, "the app keeps its own copy")
	assert.True(t, a.SetUpdate(nil))

	state := a.State()
	assert.Equal(t, AppState{ID: a.ID(), Host: HostBrowser, View: ViewPageDetail, ProjectViewMode: ModeLibraries}, state)
	raw, err := json.Marshal(state)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+a.ID()+`","host":"browser","view":"page-detail","projectViewMode":"libraries"}`, string(raw))
}

func TestProjectSerialization(t *testing.T) {
	p, err := NewProject("p1", "First")
	require.NoError(t, err)
	assert.False(t, p.Committed())
	require.NoError(t, p.Commit("init"))
	assert.True(t, p.Committed())
	assert.NotEmpty(t, p.Heads())

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	back, err := ProjectFrom(raw)
	require.NoError(t, err)
	assert.Equal(t, "p1", back.ID())
	assert.Equal(t, "First", back.Name())
	assert.True(t, SameHeads(p.Heads(), back.Heads()))

	named, err := ProjectFrom([]byte(`{"id":"p2","name":"Bare"}`))
	require.NoError(t, err)
	assert.Equal(t, "Bare", named.Name())
	assert.False(t, named.Committed())
}

func TestCommitWithoutPendingChangesKeepsHeads(t *testing.T) {
	p, err := NewProject("p1", "First")
	require.NoError(t, err)
	require.NoError(t, p.Commit("init"))
	heads := p.Heads()
	require.NoError(t, p.Commit("again"))
	assert.Equal(t, heads, p.Heads())

	loaded, err := LoadProject("p1", p.Save())
	require.NoError(t, err)
	require.NoError(t, loaded.Commit("loaded"))
	assert.True(t, loaded.Committed())
	assert.True(t, SameHeads(heads, loaded.Heads()))

	require.NoError(t, loaded.SetName("Second"))
	_ = loaded.Save()
	require.NoError(t, loaded.Commit("rename"), "changes flushed by Save still count")
	assert.True(t, loaded.Committed())
	assert.False(t, SameHeads(heads, loaded.Heads()))
}

func TestProjectFromInvalid(t *testing.T) {
	for _, raw := range []string{``, `[]`, `{"name":"no id"}`, `{"id":"x","document":"AAAA"}`} {
		_, err := ProjectFrom([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidProject, raw)
	}
}

func TestSameHeads(t *testing.T) {
	assert.True(t, SameHeads(nil, []string{}))
	assert.True(t, SameHeads([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, SameHeads([]string{"a"}, []string{"b"}))
	assert.False(t, SameHeads([]string{"a", "a"}, []string{"a", "b"}))
}

func TestEditHistoryAndLibraries(t *testing.T) {
	h := NewEditHistory()
	_, ok := h.Last()
	assert.False(t, ok)
	h.Record(EditEntry{ProjectID: "p", Message: "one"})
	h.Record(EditEntry{ProjectID: "p", Message: "two"})
	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, "two", last.Message)
	assert.False(t, last.At.IsZero())
	assert.Equal(t, 2, h.Len())
	assert.Len(t, h.Entries(), 2)

	libs := NewLibraryStore()
	libs.Add(Library{ID: "b", Name: "Buttons"})
	libs.Add(Library{ID: "a", Name: "Atoms"})
	got, ok := libs.Get("b")
	require.True(t, ok)
	assert.Equal(t, "Buttons", got.Name)
	assert.Equal(t, []Library{{ID: "a", Name: "Atoms"}, {ID: "b", Name: "Buttons"}}, libs.List())
}
