package renderer

import (
	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
	"github.com/astromechza/studio/pkg/store"
)

// notify registers the outbound notifiers. Each remembers what it last sent
// so a repeated change does not produce a second message.
func (r *Runtime) notify() []func() {
	var (
		lastID    string
		lastHeads []string
	)
	project := r.store.Autorun("notify-project", func() {
		p := r.store.Project()
		if p == nil {
			lastID, lastHeads = "", nil
			return
		}
		heads := p.Heads()
		if p.ID() == lastID && model.SameHeads(heads, lastHeads) {
			return
		}
		lastID, lastHeads = p.ID(), heads
		r.store.SendPayload(message.ProjectChanged{ProjectID: p.ID(), Heads: heads})
	}, store.FieldProject)

	return []func(){project}
}
