package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/store"
	"github.com/astromechza/studio/pkg/viz"
)

// ErrNoProject is returned by diagnostics that need a bound project.
var ErrNoProject = errors.New("no project bound")

// Diagnostics is the debugging surface of a running renderer. It replaces
// ambient globals: tooling gets it from the runtime explicitly.
type Diagnostics interface {
	Snapshot(ctx context.Context) (store.Snapshot, error)
	Adapter() *adapter.Adapter
	Projects(ctx context.Context) ([]string, error)
	Screenshot(ctx context.Context) error
	ProjectHistory(ctx context.Context, w io.Writer) error
}

// Diagnostics returns the debugging surface. Its methods are safe to call from
// any goroutine while Run is active.
func (r *Runtime) Diagnostics() Diagnostics {
	return diagnostics{r: r}
}

type diagnostics struct {
	r *Runtime
}

func (d diagnostics) Snapshot(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot
	err := d.r.loop.Do(ctx, func() { snap = d.r.store.Snapshot() })
	return snap, err
}

func (d diagnostics) Adapter() *adapter.Adapter {
	return d.r.adapter
}

func (d diagnostics) Projects(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.r.loop.Do(ctx, func() { ids = d.r.adapter.DataHost.Projects() })
	return ids, err
}

func (d diagnostics) Screenshot(ctx context.Context) error {
	if !d.r.Dispatch(ScreenshotEvent{}) {
		return context.Canceled
	}
	// wait for the listener to have run
	return d.r.loop.Do(ctx, func() {})
}

func (d diagnostics) ProjectHistory(ctx context.Context, w io.Writer) error {
	var (
		fork *automerge.Doc
		err  error
	)
	if doErr := d.r.loop.Do(ctx, func() {
		p := d.r.store.Project()
		if p == nil {
			err = ErrNoProject
			return
		}
		fork, err = p.Doc().Fork()
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	return viz.RenderHistory(fork, []interface{}{"name"}, viz.SVG, w)
}

// DebugHandler serves d over HTTP.
func DebugHandler(d Diagnostics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			logger.Debug("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/debug/store").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		snap, err := d.Snapshot(request.Context())
		if err != nil {
			logger.Error("failed to snapshot store", "err", err)
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(writer).Encode(snap); err != nil {
			logger.Error("failed to write out", "err", err)
		}
	})
	r.Methods(http.MethodGet).Path("/debug/projects").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ids, err := d.Projects(request.Context())
		if err != nil {
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(ids)
	})
	r.Methods(http.MethodPost).Path("/debug/screenshot").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if err := d.Screenshot(request.Context()); err != nil {
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.WriteHeader(http.StatusAccepted)
	})
	r.Methods(http.MethodGet).Path("/debug/project/history.svg").HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "image/svg+xml")
		if err := d.ProjectHistory(request.Context(), writer); err != nil {
			if errors.Is(err, ErrNoProject) {
				writer.WriteHeader(http.StatusNotFound)
				return
			}
			logger.Error("failed to render project history", "err", err)
			writer.WriteHeader(http.StatusInternalServerError)
		}
	})
	return r
}

// ServeDebug serves the diagnostics on addr until ctx is done.
func (r *Runtime) ServeDebug(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: DebugHandler(r.Diagnostics(), r.logger)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	r.logger.Info("serving diagnostics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
