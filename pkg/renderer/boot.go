// Package renderer boots the renderer process and wires its state container
// to the host channel, the navigation history and the environment adapter.
package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/history"
	"github.com/astromechza/studio/pkg/identity"
	"github.com/astromechza/studio/pkg/loop"
	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/navsync"
	"github.com/astromechza/studio/pkg/resolve"
	"github.com/astromechza/studio/pkg/store"
	"github.com/astromechza/studio/pkg/transport"
)

// Stage names a step of the startup sequence that can fail. Project
// resolution and wiring always succeed and have no stage of their own.
type Stage string

const (
	StageIdentity  Stage = "identity"
	StageTransport Stage = "transport"
	StageHandshake Stage = "handshake"
	StageAdapter   Stage = "adapter"
	StageMount     Stage = "mount"
	StageUpdates   Stage = "updates"
)

// StageError is a startup failure at a named stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("startup failed at stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Mounter is the view layer. Mount returns once the first render completed.
type Mounter interface {
	Mount(ctx context.Context, st *store.Store) error
}

// MountFunc adapts a function to Mounter.
type MountFunc func(ctx context.Context, st *store.Store) error

func (f MountFunc) Mount(ctx context.Context, st *store.Store) error {
	return f(ctx, st)
}

type Options struct {
	// Payload is the raw startup payload read from the document.
	Payload string
	// Location is the page location, it provides the host for the transport
	// endpoint, the server port and the path for project resolution.
	Location *url.URL
	// Local is the in-process channel used when the endpoint is empty.
	Local transport.Channel
	// Dial opens the channel for an endpoint. Defaults to transport.Open.
	Dial    func(ctx context.Context, endpoint string) (transport.Channel, error)
	Adapter adapter.Options
	Mounter Mounter
	Title   string
	Logger  *slog.Logger
}

// Runtime is a booted renderer.
type Runtime struct {
	loop     *loop.Loop
	store    *store.Store
	history  *history.History
	adapter  *adapter.Adapter
	bus      *message.Bus
	channel  transport.Channel
	engine   *navsync.Engine
	identity identity.Identity
	resolved resolve.Result
	logger   *slog.Logger

	ui       []func(UIEvent)
	viewport Viewport
	stops    []func()
	cancel   context.CancelFunc
	pumpDone chan struct{}
}

// Boot runs the startup stages in order. Each stage only starts once the
// previous one completed: the channel exists before the store, the adapter is
// resolved before the project, wiring happens once the project is settled, and
// the update check is only sent after the view layer mounted.
func Boot(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	location := opts.Location
	if location == nil {
		location = &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	}
	r := &Runtime{
		loop:    loop.New(),
		bus:     message.NewBus(),
		history: history.New(location),
		logger:  logger,
	}

	r.identity = identity.Resolve(opts.Payload)
	app := model.NewApp(model.AppDefaults)
	if err := r.identity.Apply(app); err != nil {
		return nil, &StageError{Stage: StageIdentity, Err: err}
	}
	// the host kind is fixed from here on, even when the payload named none
	if _, err := app.SetHostKind(app.HostKind()); err != nil {
		return nil, &StageError{Stage: StageIdentity, Err: err}
	}
	logger.Info("resolved identity", "host", app.HostKind(), "view", app.ActiveView(), "embedded_project", r.identity.HasProject())

	endpoint := transport.Endpoint(app.HostKind(), location.Host)
	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, endpoint string) (transport.Channel, error) {
			return transport.Open(ctx, endpoint, opts.Local, logger)
		}
	}
	ch, err := dial(ctx, endpoint)
	if err != nil {
		return nil, &StageError{Stage: StageTransport, Err: err}
	}
	r.channel = ch

	r.store = store.New(store.Options{
		App:       app,
		Sender:    ch,
		History:   model.NewEditHistory(),
		Libraries: model.NewLibraryStore(),
		Scheduler: r.loop,
		Logger:    logger,
	})
	if port, err := strconv.Atoi(location.Port()); err == nil {
		r.store.SetServerPort(port)
	}

	if err := r.store.Send(message.New(message.WindowFocused{App: app.State(), ProjectID: r.store.ProjectID()})); err != nil {
		_ = ch.Close()
		return nil, &StageError{Stage: StageHandshake, Err: err}
	}

	adapterOpts := opts.Adapter
	if adapterOpts.Logger == nil {
		adapterOpts.Logger = logger
	}
	if adapterOpts.Remote == nil && app.HostKind() != model.HostShell && location.Host != "" {
		adapterOpts.Remote = &url.URL{Scheme: location.Scheme, Host: location.Host}
	}
	a, err := adapter.Resolve(ctx, r.store, adapterOpts)
	if err != nil {
		_ = ch.Close()
		return nil, &StageError{Stage: StageAdapter, Err: err}
	}
	r.adapter = a
	a.Host.Log("renderer starting", "endpoint", endpoint)
	if !app.IsHostKind(model.HostShell) {
		a.Start(ctx, r.bus)
		r.stops = append(r.stops, a.Link(r.store))
	}

	r.resolved = resolve.Project(ctx, r.store, r.identity.Project, location.Path, a.DataHost, logger)
	logger.Info("resolved project", "source", r.resolved.Source, "project", r.resolved.ProjectID, "missing", r.resolved.Missing)

	a.Host.Log("diagnostics available through the runtime")
	r.engine = navsync.Install(r.store, r.history, navsync.Options{Title: opts.Title, Logger: logger})
	r.stops = append(r.stops, r.listen()...)
	r.stops = append(r.stops, r.handle()...)
	r.stops = append(r.stops, r.notify()...)
	pumpCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.pumpDone = make(chan struct{})
	go r.pump(pumpCtx)

	if opts.Mounter != nil {
		if err := opts.Mounter.Mount(ctx, r.store); err != nil {
			r.Close()
			return nil, &StageError{Stage: StageMount, Err: err}
		}
	}

	if err := r.store.Send(message.New(message.CheckForUpdatesRequest{})); err != nil {
		r.Close()
		return nil, &StageError{Stage: StageUpdates, Err: err}
	}
	return r, nil
}

// pump moves received envelopes onto the loop.
func (r *Runtime) pump(ctx context.Context) {
	defer close(r.pumpDone)
	for {
		select {
		case env, ok := <-r.channel.Inbound():
			if !ok {
				return
			}
			r.loop.Schedule(func() {
				if r.bus.Dispatch(env) == 0 {
					r.logger.Debug("no handler for message", "type", env.Type())
				}
			})
		case <-r.channel.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// Run drives the renderer loop until ctx is done.
func (r *Runtime) Run(ctx context.Context) error {
	return r.loop.Run(ctx)
}

// Close stops the wiring and releases the channel and the adapter. Call it
// once Run returned.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
		<-r.pumpDone
	}
	if r.engine != nil {
		r.engine.Stop()
	}
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
	err := r.channel.Close()
	if aerr := r.adapter.Close(); err == nil {
		err = aerr
	}
	return err
}

func (r *Runtime) Store() *store.Store       { return r.store }
func (r *Runtime) History() *history.History { return r.history }
func (r *Runtime) Adapter() *adapter.Adapter { return r.adapter }
func (r *Runtime) Resolved() resolve.Result  { return r.resolved }
