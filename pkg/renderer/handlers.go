package renderer

import (
	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
)

// handle registers the inbound handlers: messages from the host that update
// the store. Receiving the same message twice leaves the store as it was
// after the first.
func (r *Runtime) handle() []func() {
	return []func(){
		r.bus.Subscribe(message.TypeAppUpdate, func(env message.Envelope) {
			p := env.Payload.(message.AppUpdate)
			r.store.RestoreApp(p.App)
		}),
		r.bus.Subscribe(message.TypeCheckForUpdatesResponse, func(env message.Envelope) {
			p := env.Payload.(message.CheckForUpdatesResponse)
			r.store.SetUpdate(p.Update)
		}),
		r.bus.Subscribe(message.TypeProjectChanged, r.handleProjectChanged),
	}
}

func (r *Runtime) handleProjectChanged(env message.Envelope) {
	p := env.Payload.(message.ProjectChanged)
	current := r.store.Project()
	if current == nil || current.ID() != p.ProjectID {
		return
	}
	if model.SameHeads(current.Heads(), p.Heads) {
		return
	}
	if len(p.Document) == 0 {
		r.logger.Info("project changed on host without content", "project", p.ProjectID)
		return
	}
	updated, err := model.LoadProject(p.ProjectID, p.Document)
	if err != nil {
		r.logger.Warn("ignoring undecodable project update", "project", p.ProjectID, "err", err)
		return
	}
	r.adapter.DataHost.AddProject(updated)
	r.store.SetProject(updated)
	if err := r.store.Commit(); err != nil {
		r.logger.Error("failed to commit project", "err", err)
	}
}
