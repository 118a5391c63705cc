// Package adapter binds the renderer to its runtime: native filesystem access
// under the privileged shell, a provisioned virtual filesystem in a sandboxed
// page. It exposes the filesystem, project lookup and process-level services.
package adapter

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/store"
)

type Options struct {
	// ProjectsDir is the native filesystem root under the privileged shell.
	ProjectsDir string
	// VirtualFS is the data source name of the sandboxed filesystem.
	VirtualFS string
	// Remote is the host's base URL used for project lookups, may be nil.
	Remote     *url.URL
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Adapter struct {
	Host     *Host
	DataHost *DataHost
	FS       FS

	kind    model.HostKind
	logger  *slog.Logger
	ctx     context.Context
	stops   []func()
	started bool
}

// Resolve provisions the adapter for the store's host kind and binds it to the
// store's current app and sender. Under the privileged shell the native
// filesystem is used and the adapter is left for the shell to run; otherwise
// the virtual filesystem is installed and configured, failing the call if
// either step fails.
func Resolve(ctx context.Context, st *store.Store, opts Options) (*Adapter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kind := st.App().HostKind()

	var fsys FS
	if kind == model.HostShell {
		native, err := NewNativeFS(opts.ProjectsDir)
		if err != nil {
			return nil, err
		}
		fsys = native
	} else {
		virtual, err := ProvisionVirtualFS(ctx, opts.VirtualFS)
		if err != nil {
			return nil, err
		}
		fsys = virtual
	}

	a := &Adapter{
		Host:     &Host{logger: logger, app: st.App().State(), sender: st.Sender()},
		DataHost: NewDataHost(fsys, opts.Remote, opts.HTTPClient, logger),
		FS:       fsys,
		kind:     kind,
		logger:   logger,
		ctx:      context.Background(),
	}
	return a, nil
}

// Start runs the adapter: it answers save requests arriving on bus by
// persisting through the filesystem. Only sandboxed renderers start their
// adapter, the privileged shell runs its own.
func (a *Adapter) Start(ctx context.Context, bus *message.Bus) {
	if a.started {
		return
	}
	a.started = true
	a.ctx = ctx
	a.stops = append(a.stops, bus.Subscribe(message.TypeSaveProjectRequest, a.handleSave))
	a.logger.Debug("adapter started", "host", a.kind)
}

// Started reports whether Start was called.
func (a *Adapter) Started() bool {
	return a.started
}

// Link keeps the adapter's host view of the app and sender in step with st.
func (a *Adapter) Link(st *store.Store) func() {
	fields := append([]store.Field{store.FieldSender}, store.AppFields...)
	stop := st.Autorun("adapter-link", func() {
		a.Host.AddApp(st.App().State())
		a.Host.SetSender(st.Sender())
	}, fields...)
	a.stops = append(a.stops, stop)
	return stop
}

func (a *Adapter) handleSave(env message.Envelope) {
	req, ok := env.Payload.(message.SaveProjectRequest)
	if !ok {
		return
	}
	resp := message.SaveProjectResponse{ProjectID: req.ProjectID}
	p, err := model.LoadProject(req.ProjectID, req.Document)
	if err == nil {
		err = a.DataHost.SaveProject(a.ctx, p)
	}
	if err != nil {
		a.logger.Error("failed to save project", "project", req.ProjectID, "err", err)
		resp.Error = err.Error()
	}
	if err := a.Host.Send(resp); err != nil {
		a.logger.Warn("failed to answer save request", "err", err)
	}
}

// Close stops the adapter and releases its filesystem.
func (a *Adapter) Close() error {
	for _, stop := range a.stops {
		stop()
	}
	a.stops = nil
	if c, ok := a.FS.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
