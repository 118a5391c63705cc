package hostd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/identity"
	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/page"
	"github.com/astromechza/studio/pkg/renderer"
	"github.com/astromechza/studio/pkg/resolve"
	"github.com/astromechza/studio/pkg/transport"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newProject(t *testing.T, id, name string) *model.Project {
	t.Helper()
	p, err := model.NewProject(id, name)
	require.NoError(t, err)
	require.NoError(t, p.Commit("create"))
	return p
}

func receive(t *testing.T, ch transport.Channel) message.Envelope {
	t.Helper()
	select {
	case env := <-ch.Inbound():
		return env
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for a message")
	}
	return message.Envelope{}
}

// connect serves one end of a pipe and returns the other.
func connect(t *testing.T, s *Server) transport.Channel {
	t.Helper()
	before := s.Clients()
	local, peer := transport.Pipe(transport.DefaultBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve(context.Background(), peer)
	}()
	t.Cleanup(func() {
		_ = local.Close()
		<-done
	})
	require.Eventually(t, func() bool { return s.Clients() > before }, 5*time.Second, time.Millisecond)
	return local
}

func TestStoreSnapshots(t *testing.T) {
	ctx := context.Background()
	st := openStore(t)

	_, err := st.Get(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotFound)

	p := newProject(t, "p1", "One")
	require.NoError(t, st.Put(ctx, p))
	require.NoError(t, p.SetName("One, again"))
	require.NoError(t, p.Commit("rename"))
	require.NoError(t, st.Put(ctx, p))
	require.NoError(t, st.Put(ctx, newProject(t, "a0", "Zero")))

	n, err := st.Snapshots(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := st.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "One, again", got.Name())
	assert.True(t, model.SameHeads(p.Heads(), got.Heads()))

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "p1"}, ids)
}

func TestServeAnswersRenderers(t *testing.T) {
	st := openStore(t)
	s := New(Options{Store: st, Latest: &model.Update{Version: "2.0.0"}})
	a := connect(t, s)
	b := connect(t, s)
	require.Equal(t, 2, s.Clients())

	app := model.NewApp(model.AppDefaults).State()
	require.NoError(t, a.Send(message.New(message.WindowFocused{App: app})))
	require.NoError(t, a.Send(message.New(message.CheckForUpdatesRequest{})))
	resp := receive(t, a)
	assert.Equal(t, message.CheckForUpdatesResponse{Update: &model.Update{Version: "2.0.0"}}, resp.Payload)
	require.Len(t, s.Focused(), 1)
	assert.Equal(t, app.ID, s.Focused()[0].App.ID)

	p := newProject(t, "p1", "Shared")
	require.NoError(t, a.Send(message.New(message.SaveProjectRequest{ProjectID: "p1", Document: p.Save()})))
	saved := receive(t, a)
	assert.Equal(t, message.SaveProjectResponse{ProjectID: "p1"}, saved.Payload)
	changed := receive(t, b).Payload.(message.ProjectChanged)
	assert.Equal(t, "p1", changed.ProjectID)
	assert.Equal(t, p.Heads(), changed.Heads)
	assert.NotEmpty(t, changed.Document)

	stored, err := st.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "Shared", stored.Name())

	require.NoError(t, a.Send(message.New(message.SaveProjectRequest{ProjectID: "bad", Document: []byte("garbage")})))
	failed := receive(t, a).Payload.(message.SaveProjectResponse)
	assert.Equal(t, "bad", failed.ProjectID)
	assert.NotEmpty(t, failed.Error)

	app.View = model.ViewPageDetail
	assert.True(t, s.PushApp(app))
	assert.Equal(t, message.AppUpdate{App: app}, receive(t, a).Payload)
	assert.False(t, s.PushApp(model.AppState{ID: "nobody"}))
}

func TestHandlerDocuments(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.Put(context.Background(), newProject(t, "p1", "Served")))
	srv := httptest.NewServer(New(Options{Store: st}).Handler())
	defer srv.Close()

	fetch := func(path string) identity.Identity {
		payload, err := page.Fetch(context.Background(), srv.Client(), srv.URL+path)
		require.NoError(t, err)
		return identity.Resolve(payload)
	}

	root := fetch("/")
	assert.Equal(t, model.HostBrowser, root.Host)
	assert.Equal(t, model.ViewSplashScreen, root.View)
	assert.False(t, root.HasProject())

	detail := fetch("/project/p1/store")
	assert.Equal(t, model.ViewPageDetail, detail.View)
	assert.Equal(t, model.ModeLibraries, detail.ProjectViewMode)
	require.True(t, detail.HasProject())
	p, err := model.ProjectFrom(detail.Project)
	require.NoError(t, err)
	assert.Equal(t, "Served", p.Name())

	assert.False(t, fetch("/project/unknown").HasProject())
}

func TestHandlerProjects(t *testing.T) {
	st := openStore(t)
	s := New(Options{Store: st})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	client := srv.Client()

	resp, err := client.Get(srv.URL + "/projects/p1/latest")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	p := newProject(t, "p1", "Uploaded")
	req, err := http.NewRequest(http.MethodPut, srv.URL+"/projects/p1", bytes.NewReader(p.Save()))
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPut, srv.URL+"/projects/p2", strings.NewReader("garbage"))
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/projects/p1/latest")
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	loaded, err := model.LoadProject("p1", raw)
	require.NoError(t, err)
	assert.Equal(t, "Uploaded", loaded.Name())

	resp, err = client.Get(srv.URL + "/projects")
	require.NoError(t, err)
	var ids []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ids))
	resp.Body.Close()
	assert.Equal(t, []string{"p1"}, ids)
}

func TestWebsocketRenderer(t *testing.T) {
	s := New(Options{Store: openStore(t), Latest: &model.Update{Version: "3.1.0"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	sock, err := transport.Dial(context.Background(), endpoint, nil)
	require.NoError(t, err)
	defer sock.Close()

	require.NoError(t, sock.Send(message.New(message.CheckForUpdatesRequest{})))
	env := receive(t, sock)
	assert.Equal(t, message.CheckForUpdatesResponse{Update: &model.Update{Version: "3.1.0"}}, env.Payload)
}

func TestWatcherImportsFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := openStore(t)
	s := New(Options{Store: st})
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "early.studio"), newProject(t, "early", "Early").Save(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	done := make(chan error, 1)
	go func() { done <- s.Watcher(dir).Watch(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	require.Eventually(t, func() bool {
		_, err := st.Get(ctx, "early")
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.studio"), newProject(t, "late", "Late").Save(), 0o644))
	require.Eventually(t, func() bool {
		p, err := st.Get(ctx, "late")
		return err == nil && p.Name() == "Late"
	}, 5*time.Second, 10*time.Millisecond)

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, ids)
}

func TestRendererAgainstHost(t *testing.T) {
	st := openStore(t)
	require.NoError(t, st.Put(context.Background(), newProject(t, "p1", "Hosted")))
	s := New(Options{Store: st, Latest: &model.Update{Version: "9.0.0"}})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	location, err := url.Parse(srv.URL + "/project/p1")
	require.NoError(t, err)
	r, err := renderer.Boot(context.Background(), renderer.Options{
		Location: location,
		Adapter:  adapter.Options{VirtualFS: ":memory:"},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
		require.NoError(t, r.Close())
	}()

	assert.Equal(t, resolve.SourcePath, r.Resolved().Source)
	require.Eventually(t, func() bool {
		snap, err := r.Diagnostics().Snapshot(ctx)
		return err == nil && snap.App.Update != nil && snap.App.Update.Version == "9.0.0"
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		focused := s.Focused()
		return len(focused) == 1 && focused[0].ProjectID == "p1"
	}, 5*time.Second, 10*time.Millisecond)
}
