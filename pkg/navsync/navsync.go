// Package navsync keeps the store, the navigation history and the host in
// step. State changes push history entries and announce the window to the
// host; moving through history restores the recorded state into the store.
package navsync

import (
	"encoding/json"
	"log/slog"

	"github.com/astromechza/studio/pkg/history"
	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/store"
)

// Hash returns the URL fragment identifying the window. Only the privileged
// shell uses it, to route saved state to the right window instance.
func Hash(app model.AppState) string {
	if app.Host != model.HostShell {
		return ""
	}
	return "#" + app.ID
}

// DeriveURL returns the URL for the given state. It reports false when the
// state has no URL of its own, which is the case for the page detail view
// without a bound project. It must stay a pure function of its inputs:
// restoring a history entry re-derives the entry's own URL, so no new entry is
// pushed and navigation cannot oscillate.
func DeriveURL(app model.AppState, projectID string) (string, bool) {
	hash := Hash(app)
	switch app.View {
	case model.ViewSplashScreen:
		return "/" + hash, true
	case model.ViewPageDetail:
		if projectID == "" {
			return "", false
		}
		switch app.ProjectViewMode {
		case model.ModeDesign:
			return "/project/" + projectID + hash, true
		case model.ModeLibraries:
			return "/project/" + projectID + "/store" + hash, true
		}
	}
	return "", false
}

type Options struct {
	// Title is recorded on pushed entries.
	Title  string
	Logger *slog.Logger
}

// Engine is an installed sync engine.
type Engine struct {
	store   *store.Store
	history *history.History
	title   string
	logger  *slog.Logger
	stop    []func()
}

// Install registers the sync reaction and the pop-state listener. The
// reaction runs once immediately.
func Install(st *store.Store, h *history.History, opts Options) *Engine {
	e := &Engine{store: st, history: h, title: opts.Title, logger: opts.Logger}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.stop = append(e.stop, h.OnPopState(e.restore))
	e.stop = append(e.stop, st.Autorun("navsync", e.sync,
		store.FieldHostKind, store.FieldActiveView, store.FieldProjectViewMode, store.FieldProject))
	return e
}

// Stop removes the reaction and the listener.
func (e *Engine) Stop() {
	for _, fn := range e.stop {
		fn()
	}
	e.stop = nil
}

func (e *Engine) sync() {
	app := e.store.App().State()
	projectID := e.store.ProjectID()

	if target, ok := DeriveURL(app, projectID); ok {
		current := e.history.Current()
		switch {
		case target != current.URL:
			if state, err := json.Marshal(app); err != nil {
				e.logger.Error("failed to encode app state", "err", err)
			} else {
				e.history.Push(state, e.title, target)
				e.logger.Debug("pushed history entry", "url", target)
			}
		case len(current.State) == 0:
			// the entry the page was loaded with carries no state yet
			if state, err := json.Marshal(app); err == nil {
				e.history.Replace(state, e.title, target)
			}
		}
	}

	e.store.SendPayload(message.WindowFocused{App: app, ProjectID: projectID})
}

func (e *Engine) restore(entry history.Entry) {
	if len(entry.State) == 0 {
		return
	}
	var state model.AppState
	if err := json.Unmarshal(entry.State, &state); err != nil {
		e.logger.Warn("ignoring undecodable history state", "url", entry.URL, "err", err)
		return
	}
	e.store.RestoreApp(state)
}
