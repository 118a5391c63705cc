package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/studio/pkg/loop"
	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
)

type recordingSender struct {
	sent []message.Envelope
}

func (r *recordingSender) Send(env message.Envelope) error {
	r.sent = append(r.sent, env)
	return nil
}

func newTestStore(t *testing.T) (*Store, *loop.Loop, *recordingSender) {
	t.Helper()
	l := loop.New()
	sender := &recordingSender{}
	s := New(Options{App: model.NewApp(model.AppDefaults), Sender: sender, Scheduler: l})
	return s, l, sender
}

func TestReactionsAreCoalescedPerTick(t *testing.T) {
	s, l, _ := newTestStore(t)
	runs := 0
	s.Observe("count", func() { runs++ }, AppFields...)

	s.SetActiveView(model.ViewPageDetail)
	s.SetProjectViewMode(model.ModeLibraries)
	s.SetUpdate(&model.Update{Version: "2.0.0"})
	assert.Equal(t, 0, runs, "reactions run on the next tick")

	l.RunPending()
	assert.Equal(t, 1, runs)
}

func TestUnchangedValuesDoNotNotify(t *testing.T) {
	s, l, _ := newTestStore(t)
	runs := 0
	s.Observe("count", func() { runs++ }, FieldActiveView, FieldUpdate, FieldServerPort)

	s.SetActiveView(model.ViewSplashScreen)
	s.SetUpdate(nil)
	s.SetServerPort(0)
	l.RunPending()
	assert.Equal(t, 0, runs)

	s.SetUpdate(&model.Update{Version: "1.2.3"})
	l.RunPending()
	s.SetUpdate(&model.Update{Version: "1.2.3"})
	l.RunPending()
	assert.Equal(t, 1, runs)
}

func TestObserveOnlyWatchedFields(t *testing.T) {
	s, l, _ := newTestStore(t)
	runs := 0
	cancel := s.Observe("project", func() { runs++ }, FieldProject)

	s.SetActiveView(model.ViewPageDetail)
	l.RunPending()
	assert.Equal(t, 0, runs)

	p, err := model.NewProject("abc", "Demo")
	require.NoError(t, err)
	s.SetProject(p)
	l.RunPending()
	assert.Equal(t, 1, runs)

	cancel()
	s.SetProject(nil)
	l.RunPending()
	assert.Equal(t, 1, runs)
}

func TestAutorunRunsImmediately(t *testing.T) {
	s, l, _ := newTestStore(t)
	var seen []model.View
	s.Autorun("views", func() { seen = append(seen, s.ActiveView()) }, FieldActiveView)
	s.SetActiveView(model.ViewPageDetail)
	l.RunPending()
	assert.Equal(t, []model.View{model.ViewSplashScreen, model.ViewPageDetail}, seen)
}

func TestHostKindIsWriteOnce(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.SetHostKind(model.HostShell))
	require.NoError(t, s.SetHostKind(model.HostShell))
	assert.ErrorIs(t, s.SetHostKind(model.HostBrowser), model.ErrHostKindFixed)
	assert.Equal(t, model.HostShell, s.App().HostKind())
}

func TestRestoreAppKeepsIdentity(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.SetHostKind(model.HostBrowser))
	id := s.App().ID()

	s.RestoreApp(model.AppState{
		ID:              "other",
		Host:            model.HostShell,
		View:            model.ViewPageDetail,
		ProjectViewMode: model.ModeLibraries,
	})
	assert.Equal(t, id, s.App().ID())
	assert.Equal(t, model.HostBrowser, s.App().HostKind())
	assert.Equal(t, model.ViewPageDetail, s.ActiveView())
	assert.Equal(t, model.ModeLibraries, s.ProjectViewMode())
}

func TestSendDelegatesToCurrentSender(t *testing.T) {
	s, l, first := newTestStore(t)
	senderChanges := 0
	s.Observe("sender", func() { senderChanges++ }, FieldSender)

	require.NoError(t, s.Send(message.New(message.CheckForUpdatesRequest{})))
	assert.Len(t, first.sent, 1)

	second := &recordingSender{}
	s.SetSender(second)
	s.SendPayload(message.CheckForUpdatesRequest{})
	assert.Len(t, first.sent, 1)
	assert.Len(t, second.sent, 1)
	l.RunPending()
	assert.Equal(t, 1, senderChanges)

	s.SetSender(nil)
	assert.ErrorIs(t, s.Send(message.New(message.CheckForUpdatesRequest{})), ErrNoSender)
}

func TestCommitRecordsEditHistory(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.Commit(), "commit without a project is a no-op")
	assert.Equal(t, 0, s.History().Len())

	p, err := model.NewProject("abc", "Demo")
	require.NoError(t, err)
	s.SetProject(p)
	require.NoError(t, s.Commit())

	assert.True(t, p.Committed())
	last, ok := s.History().Last()
	require.True(t, ok)
	assert.Equal(t, "abc", last.ProjectID)
	assert.Equal(t, p.Heads(), last.Heads)

	heads := p.Heads()
	require.NoError(t, s.Commit())
	assert.Equal(t, heads, p.Heads(), "nothing pending leaves the heads alone")
}

func TestBindingProjectClearsMissingMarker(t *testing.T) {
	s, _, _ := newTestStore(t)
	s.SetMissingProject("nope")
	assert.Equal(t, "nope", s.Snapshot().MissingProject)

	p, err := model.NewProject("abc", "Demo")
	require.NoError(t, err)
	s.SetProject(p)
	snap := s.Snapshot()
	assert.Empty(t, snap.MissingProject)
	assert.Equal(t, "abc", snap.ProjectID)
	assert.Equal(t, "Demo", snap.ProjectName)
}
