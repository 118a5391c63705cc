// Package model holds the renderer's state types: the application identity and
// view state, the project document, the edit history and library metadata.
package model

import (
	"errors"

	"github.com/google/uuid"
)

// HostKind identifies the runtime the renderer is running in.
type HostKind string

const (
	// HostBrowser is a sandboxed page without native access.
	HostBrowser HostKind = "browser"
	// HostShell is the privileged native shell.
	HostShell HostKind = "shell"
)

func (k HostKind) Valid() bool {
	return k == HostBrowser || k == HostShell
}

// View is the active top-level view.
type View string

const (
	ViewSplashScreen View = "splash-screen"
	ViewPageDetail   View = "page-detail"
)

func (v View) Valid() bool {
	return v == ViewSplashScreen || v == ViewPageDetail
}

// ProjectViewMode is the sub-mode of ViewPageDetail. It is retained while
// another view is active but carries no meaning there.
type ProjectViewMode string

const (
	ModeDesign    ProjectViewMode = "design"
	ModeLibraries ProjectViewMode = "libraries"
)

func (m ProjectViewMode) Valid() bool {
	return m == ModeDesign || m == ModeLibraries
}

// Update describes a pending application update announced by the host.
type Update struct {
	Version string `json:"version"`
	URL     string `json:"url,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// Equal reports whether two descriptors (either may be nil) are the same.
func (u *Update) Equal(o *Update) bool {
	if u == nil || o == nil {
		return u == o
	}
	return *u == *o
}

// AppState is the plain record form of App. It is what gets embedded in
// history entries and sent to the host.
type AppState struct {
	ID              string          `json:"id"`
	Host            HostKind        `json:"host"`
	View            View            `json:"view"`
	ProjectViewMode ProjectViewMode `json:"projectViewMode"`
	Update          *Update         `json:"update,omitempty"`
}

// AppDefaults are the values a fresh App starts from.
var AppDefaults = AppState{
	Host:            HostBrowser,
	View:            ViewSplashScreen,
	ProjectViewMode: ModeDesign,
}

// ErrHostKindFixed is returned when the host kind is changed after it was set.
var ErrHostKindFixed = errors.New("host kind is already fixed")

// App is the application identity and view state.
type App struct {
	id        string
	host      HostKind
	hostFixed bool
	view      View
	mode      ProjectViewMode
	update    *Update
}

// NewApp creates an App from defaults. A missing id gets a fresh one.
func NewApp(defaults AppState) *App {
	a := &App{
		id:     defaults.ID,
		host:   defaults.Host,
		view:   defaults.View,
		mode:   defaults.ProjectViewMode,
		update: defaults.Update,
	}
	if a.id == "" {
		a.id = uuid.NewString()
	}
	if !a.host.Valid() {
		a.host = AppDefaults.Host
	}
	if !a.view.Valid() {
		a.view = AppDefaults.View
	}
	if !a.mode.Valid() {
		a.mode = AppDefaults.ProjectViewMode
	}
	return a
}

func (a *App) ID() string                       { return a.id }
func (a *App) HostKind() HostKind               { return a.host }
func (a *App) IsHostKind(k HostKind) bool       { return a.host == k }
func (a *App) ActiveView() View                 { return a.view }
func (a *App) IsActiveView(v View) bool         { return a.view == v }
func (a *App) ProjectViewMode() ProjectViewMode { return a.mode }
func (a *App) Update() *Update                  { return a.update }

// SetHostKind sets the host kind once. Setting the same value again is a
// no-op, setting a different one fails.
func (a *App) SetHostKind(k HostKind) (bool, error) {
	if a.hostFixed {
		if k != a.host {
			return false, ErrHostKindFixed
		}
		return false, nil
	}
	a.hostFixed = true
	if a.host == k {
		return false, nil
	}
	a.host = k
	return true, nil
}

func (a *App) SetActiveView(v View) bool {
	if a.view == v {
		return false
	}
	a.view = v
	return true
}

func (a *App) SetProjectViewMode(m ProjectViewMode) bool {
	if a.mode == m {
		return false
	}
	a.mode = m
	return true
}

func (a *App) SetUpdate(u *Update) bool {
	if a.update.Equal(u) {
		return false
	}
	if u != nil {
		c := *u
		u = &c
	}
	a.update = u
	return true
}

// State returns the plain record form of the app.
func (a *App) State() AppState {
	s := AppState{
		ID:              a.id,
		Host:            a.host,
		View:            a.view,
		ProjectViewMode: a.mode,
	}
	if a.update != nil {
		u := *a.update
		s.Update = &u
	}
	return s
}
