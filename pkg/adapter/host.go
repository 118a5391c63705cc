package adapter

import (
	"log/slog"

	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/store"
	"github.com/astromechza/studio/pkg/transport"
)

// Host is the process-level side of the adapter: diagnostics and a view of
// the current app and sender kept in step with the store.
type Host struct {
	logger *slog.Logger
	app    model.AppState
	sender transport.Sender
}

func (h *Host) Log(msg string, args ...any) {
	h.logger.Info(msg, args...)
}

func (h *Host) AddApp(app model.AppState) {
	h.app = app
}

func (h *Host) App() model.AppState {
	return h.app
}

func (h *Host) SetSender(s transport.Sender) {
	h.sender = s
}

// Send sends p through the current sender.
func (h *Host) Send(p message.Payload) error {
	if h.sender == nil {
		return store.ErrNoSender
	}
	return h.sender.Send(message.New(p))
}
