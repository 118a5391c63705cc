// Package hostd is the host process the renderer talks to. It serves the UI
// document, keeps projects in a sqlite store and answers renderer messages
// over websocket or in-process channels.
package hostd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/transport"
)

type Options struct {
	Store *Store
	// Latest is announced in answers to update checks. Nil means the running
	// version is current.
	Latest *model.Update
	// Title is the title of served documents.
	Title  string
	Logger *slog.Logger
}

// Server tracks the connected renderers.
type Server struct {
	store  *Store
	latest *model.Update
	title  string
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	focused map[string]message.WindowFocused
}

type client struct {
	ch    transport.Channel
	appID string
}

func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	title := opts.Title
	if title == "" {
		title = "Studio"
	}
	return &Server{
		store:   opts.Store,
		latest:  opts.Latest,
		title:   title,
		logger:  logger,
		clients: make(map[*client]struct{}),
		focused: make(map[string]message.WindowFocused),
	}
}

// Serve answers messages arriving on ch until it is closed or ctx is done.
func (s *Server) Serve(ctx context.Context, ch transport.Channel) error {
	c := &client{ch: ch}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	for {
		select {
		case env, ok := <-ch.Inbound():
			if !ok {
				return nil
			}
			s.handle(ctx, c, env)
		case <-ch.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Server) handle(ctx context.Context, c *client, env message.Envelope) {
	switch p := env.Payload.(type) {
	case message.WindowFocused:
		s.mu.Lock()
		c.appID = p.App.ID
		s.focused[p.App.ID] = p
		s.mu.Unlock()
		s.logger.Debug("window focused", "app", p.App.ID, "view", p.App.View, "project", p.ProjectID)
	case message.CheckForUpdatesRequest:
		s.reply(c, message.CheckForUpdatesResponse{Update: s.latest})
	case message.ScreenshotRequest:
		s.logger.Info("screenshot requested", "app", c.appID, "width", p.Width, "height", p.Height)
	case message.SaveProjectRequest:
		resp := message.SaveProjectResponse{ProjectID: p.ProjectID}
		if err := s.save(ctx, c, p.ProjectID, p.Document); err != nil {
			s.logger.Error("failed to save project", "project", p.ProjectID, "err", err)
			resp.Error = err.Error()
		}
		s.reply(c, resp)
	case message.ProjectChanged:
		if len(p.Document) == 0 {
			s.logger.Debug("project changed", "app", c.appID, "project", p.ProjectID, "heads", p.Heads)
			return
		}
		if err := s.save(ctx, c, p.ProjectID, p.Document); err != nil {
			s.logger.Error("failed to store changed project", "project", p.ProjectID, "err", err)
		}
	default:
		s.logger.Debug("ignoring message", "type", env.Type(), "id", env.ID)
	}
}

// save stores a project document and announces it to every other renderer.
func (s *Server) save(ctx context.Context, from *client, id string, document []byte) error {
	p, err := model.LoadProject(id, document)
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, p); err != nil {
		return err
	}
	s.broadcast(from, message.ProjectChanged{ProjectID: id, Heads: p.Heads(), Document: document})
	return nil
}

// Import stores a project document received outside of any renderer channel
// and announces it to every renderer. It returns the loaded project.
func (s *Server) Import(ctx context.Context, id string, document []byte) (*model.Project, error) {
	p, err := model.LoadProject(id, document)
	if err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", id, err)
	}
	if err := s.store.Put(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to import %s: %w", id, err)
	}
	n := s.broadcast(nil, message.ProjectChanged{ProjectID: id, Heads: p.Heads(), Document: document})
	s.logger.Info("imported project", "project", id, "notified", n)
	return p, nil
}

// PushApp sends a new app state to the renderer whose window last reported
// focus with the state's id. It reports whether such a renderer is connected.
func (s *Server) PushApp(state model.AppState) bool {
	s.mu.Lock()
	var target *client
	for c := range s.clients {
		if c.appID == state.ID {
			target = c
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return false
	}
	s.reply(target, message.AppUpdate{App: state})
	return true
}

// Focused returns the last focus report of every window, ordered by app id.
func (s *Server) Focused() []message.WindowFocused {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.WindowFocused, 0, len(s.focused))
	for _, f := range s.focused {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b message.WindowFocused) int {
		return strings.Compare(a.App.ID, b.App.ID)
	})
	return out
}

// Clients returns the number of connected renderers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseClients closes every connected channel.
func (s *Server) CloseClients() {
	s.mu.Lock()
	chans := make([]transport.Channel, 0, len(s.clients))
	for c := range s.clients {
		chans = append(chans, c.ch)
	}
	s.mu.Unlock()
	for _, ch := range chans {
		_ = ch.Close()
	}
}

func (s *Server) reply(c *client, p message.Payload) {
	if err := c.ch.Send(message.New(p)); err != nil && !errors.Is(err, transport.ErrClosed) {
		s.logger.Warn("failed to send message", "type", p.Type(), "err", err)
	}
}

func (s *Server) broadcast(from *client, p message.Payload) int {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		s.reply(c, p)
	}
	return len(targets)
}
