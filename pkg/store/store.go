// Package store holds the renderer's single state container. Every shared
// field lives here; components read and write through the store and react to
// its typed change notifications instead of keeping private copies.
//
// The store is not safe for concurrent use. All access happens on the
// renderer loop, reactions are scheduled back onto it.
package store

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/transport"
)

// ErrNoSender is returned by Send when no channel is bound.
var ErrNoSender = errors.New("no sender bound")

// Field names a piece of state whose changes can be observed.
type Field uint8

const (
	FieldHostKind Field = iota + 1
	FieldActiveView
	FieldProjectViewMode
	FieldUpdate
	FieldProject
	FieldSender
	FieldServerPort
	FieldMissingProject
)

// AppFields are all fields belonging to the application identity/view state.
var AppFields = []Field{FieldHostKind, FieldActiveView, FieldProjectViewMode, FieldUpdate}

func (f Field) String() string {
	switch f {
	case FieldHostKind:
		return "host-kind"
	case FieldActiveView:
		return "active-view"
	case FieldProjectViewMode:
		return "project-view-mode"
	case FieldUpdate:
		return "update"
	case FieldProject:
		return "project"
	case FieldSender:
		return "sender"
	case FieldServerPort:
		return "server-port"
	case FieldMissingProject:
		return "missing-project"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Scheduler queues work for the next loop tick.
type Scheduler interface {
	Schedule(func()) bool
}

type Options struct {
	App       *model.App
	Sender    transport.Sender
	History   *model.EditHistory
	Libraries *model.LibraryStore
	Scheduler Scheduler
	Logger    *slog.Logger
}

type Store struct {
	app       *model.App
	project   *model.Project
	sender    transport.Sender
	history   *model.EditHistory
	libraries *model.LibraryStore
	port      int
	missing   string

	sched     Scheduler
	logger    *slog.Logger
	reactions []*reaction
}

func New(opts Options) *Store {
	s := &Store{
		app:       opts.App,
		sender:    opts.Sender,
		history:   opts.History,
		libraries: opts.Libraries,
		sched:     opts.Scheduler,
		logger:    opts.Logger,
	}
	if s.app == nil {
		s.app = model.NewApp(model.AppDefaults)
	}
	if s.history == nil {
		s.history = model.NewEditHistory()
	}
	if s.libraries == nil {
		s.libraries = model.NewLibraryStore()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

func (s *Store) App() *model.App                        { return s.app }
func (s *Store) Project() *model.Project                { return s.project }
func (s *Store) Sender() transport.Sender               { return s.sender }
func (s *Store) History() *model.EditHistory            { return s.history }
func (s *Store) Libraries() *model.LibraryStore         { return s.libraries }
func (s *Store) ServerPort() int                        { return s.port }
func (s *Store) MissingProject() string                 { return s.missing }
func (s *Store) ActiveView() model.View                 { return s.app.ActiveView() }
func (s *Store) ProjectViewMode() model.ProjectViewMode { return s.app.ProjectViewMode() }

// ProjectID returns the id of the bound project, or "" when none is bound.
func (s *Store) ProjectID() string {
	if s.project == nil {
		return ""
	}
	return s.project.ID()
}

func (s *Store) SetHostKind(k model.HostKind) error {
	changed, err := s.app.SetHostKind(k)
	if err != nil {
		return err
	}
	if changed {
		s.changed(FieldHostKind)
	}
	return nil
}

func (s *Store) SetActiveView(v model.View) {
	if s.app.SetActiveView(v) {
		s.changed(FieldActiveView)
	}
}

func (s *Store) SetProjectViewMode(m model.ProjectViewMode) {
	if s.app.SetProjectViewMode(m) {
		s.changed(FieldProjectViewMode)
	}
}

func (s *Store) SetUpdate(u *model.Update) {
	if s.app.SetUpdate(u) {
		s.changed(FieldUpdate)
	}
}

// RestoreApp applies a previously serialized app state. The id and host kind
// are identity and stay as they are; a differing host kind is logged.
func (s *Store) RestoreApp(state model.AppState) {
	if state.Host != "" && state.Host != s.app.HostKind() {
		s.logger.Warn("ignoring host kind in restored state", "host", state.Host, "current", s.app.HostKind())
	}
	if state.View.Valid() {
		s.SetActiveView(state.View)
	}
	if state.ProjectViewMode.Valid() {
		s.SetProjectViewMode(state.ProjectViewMode)
	}
	s.SetUpdate(state.Update)
}

// SetProject binds p, replacing any bound project. Binding the same instance
// again is a no-op.
func (s *Store) SetProject(p *model.Project) {
	if s.project == p {
		return
	}
	s.project = p
	if p != nil && s.missing != "" {
		s.missing = ""
		s.changed(FieldMissingProject)
	}
	s.changed(FieldProject)
}

// Commit commits the bound project and records it in the edit history.
func (s *Store) Commit() error {
	if s.project == nil {
		return nil
	}
	if err := s.project.Commit("commit"); err != nil {
		return err
	}
	s.history.Record(model.EditEntry{ProjectID: s.project.ID(), Heads: s.project.Heads(), Message: "commit"})
	s.changed(FieldProject)
	return nil
}

func (s *Store) SetSender(sender transport.Sender) {
	if s.sender == sender {
		return
	}
	s.sender = sender
	s.changed(FieldSender)
}

func (s *Store) SetServerPort(port int) {
	if s.port == port {
		return
	}
	s.port = port
	s.changed(FieldServerPort)
}

// SetMissingProject records that project id was requested but not found.
func (s *Store) SetMissingProject(id string) {
	if s.missing == id {
		return
	}
	s.missing = id
	s.changed(FieldMissingProject)
}

// Send sends env through whichever sender is currently bound.
func (s *Store) Send(env message.Envelope) error {
	if s.sender == nil {
		return ErrNoSender
	}
	if err := s.sender.Send(env); err != nil {
		return fmt.Errorf("failed to send %s: %w", env.Type(), err)
	}
	return nil
}

// SendPayload wraps p in a fresh envelope and sends it, logging failures.
func (s *Store) SendPayload(p message.Payload) {
	if err := s.Send(message.New(p)); err != nil {
		s.logger.Warn("failed to send message", "type", p.Type(), "err", err)
	}
}

// Snapshot is a plain view of the store for diagnostics.
type Snapshot struct {
	App            model.AppState `json:"app"`
	ProjectID      string         `json:"projectId,omitempty"`
	ProjectName    string         `json:"projectName,omitempty"`
	Committed      bool           `json:"committed"`
	MissingProject string         `json:"missingProject,omitempty"`
	ServerPort     int            `json:"serverPort,omitempty"`
	Edits          int            `json:"edits"`
	Libraries      int            `json:"libraries"`
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		App:            s.app.State(),
		MissingProject: s.missing,
		ServerPort:     s.port,
		Edits:          s.history.Len(),
		Libraries:      len(s.libraries.List()),
	}
	if s.project != nil {
		snap.ProjectID = s.project.ID()
		snap.ProjectName = s.project.Name()
		snap.Committed = s.project.Committed()
	}
	return snap
}
