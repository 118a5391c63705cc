package hostd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/astromechza/studio/pkg/adapter"
	"github.com/astromechza/studio/pkg/identity"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/page"
	"github.com/astromechza/studio/pkg/transport"
)

// maxDocumentSize bounds uploaded project documents.
const maxDocumentSize = 32 << 20

// Handler returns the router of the host.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			s.logger.Info("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/").HandlerFunc(s.getRoot)
	r.Methods(http.MethodGet).Path("/project/{project}").HandlerFunc(s.getProjectDocument(model.ModeDesign))
	r.Methods(http.MethodGet).Path("/project/{project}/store").HandlerFunc(s.getProjectDocument(model.ModeLibraries))
	r.Methods(http.MethodGet).Path("/projects").HandlerFunc(s.listProjects)
	r.Methods(http.MethodGet).Path("/projects/{project}/latest").HandlerFunc(s.getLatest)
	r.Methods(http.MethodPut).Path("/projects/{project}").HandlerFunc(s.putProject)
	return r
}

func (s *Server) getRoot(writer http.ResponseWriter, request *http.Request) {
	if !websocket.IsWebSocketUpgrade(request) {
		s.writeDocument(writer, model.ViewSplashScreen, "", nil)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	conn, err := upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade", "err", err)
		return
	}
	sock := transport.NewSocket(conn, s.logger)
	defer sock.Close()
	if err := s.Serve(request.Context(), sock); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("failed to serve renderer", "err", err)
	}
}

func (s *Server) getProjectDocument(mode model.ProjectViewMode) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		id := mux.Vars(request)["project"]
		p, err := s.store.Get(request.Context(), id)
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.logger.Error("failed to load project", "project", id, "err", err)
			}
			// the renderer resolves the path itself and reports the missing project
			s.writeDocument(writer, model.ViewPageDetail, mode, nil)
			return
		}
		raw, err := json.Marshal(p)
		if err != nil {
			s.logger.Error("failed to encode project", "project", id, "err", err)
			writer.WriteHeader(http.StatusInternalServerError)
			return
		}
		s.writeDocument(writer, model.ViewPageDetail, mode, raw)
	}
}

func (s *Server) writeDocument(writer http.ResponseWriter, view model.View, mode model.ProjectViewMode, project json.RawMessage) {
	payload, err := identity.Encode(model.HostBrowser, view, mode, nil, project)
	if err != nil {
		s.logger.Error("failed to encode payload", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(writer, s.title, payload); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

func (s *Server) listProjects(writer http.ResponseWriter, request *http.Request) {
	ids, err := s.store.List(request.Context())
	if err != nil {
		s.logger.Error("failed to list projects", "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(ids); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

func (s *Server) getLatest(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["project"]
	raw, err := s.store.Latest(request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		s.logger.Error("failed to load project", "project", id, "err", err)
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Add("Content-Type", "application/octet-stream")
	if _, err := writer.Write(raw); err != nil {
		s.logger.Error("failed to write out", "err", err)
	}
}

func (s *Server) putProject(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["project"]
	if !adapter.ValidProjectID(id) {
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(request.Body, maxDocumentSize))
	if err != nil {
		s.logger.Error("failed to read body", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := s.Import(request.Context(), id, raw); err != nil {
		s.logger.Error("failed to import project", "err", err)
		writer.WriteHeader(http.StatusBadRequest)
		return
	}
	writer.WriteHeader(http.StatusNoContent)
}

// ListenAndServe serves the host on addr until ctx is done. Connected
// renderers are disconnected on shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.CloseClients()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	s.logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
