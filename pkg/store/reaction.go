package store

type reaction struct {
	name      string
	fn        func()
	fields    map[Field]bool
	pending   bool
	cancelled bool
}

// Observe registers fn to run whenever one of fields changes. Runs happen on
// the next scheduler tick and are coalesced: any number of changes before
// that tick cause one run. fn reads whatever state it needs from the store.
// The returned function unregisters the reaction.
func (s *Store) Observe(name string, fn func(), fields ...Field) func() {
	r := &reaction{name: name, fn: fn, fields: make(map[Field]bool, len(fields))}
	for _, f := range fields {
		r.fields[f] = true
	}
	s.reactions = append(s.reactions, r)
	return func() {
		r.cancelled = true
		for i, other := range s.reactions {
			if other == r {
				s.reactions = append(s.reactions[:i], s.reactions[i+1:]...)
				break
			}
		}
	}
}

// Autorun is Observe followed by an immediate run of fn.
func (s *Store) Autorun(name string, fn func(), fields ...Field) func() {
	cancel := s.Observe(name, fn, fields...)
	fn()
	return cancel
}

func (s *Store) changed(f Field) {
	s.logger.Debug("state changed", "field", f)
	for _, r := range append([]*reaction(nil), s.reactions...) {
		if !r.fields[f] || r.pending {
			continue
		}
		if s.sched == nil {
			r.fn()
			continue
		}
		r.pending = true
		r := r
		if !s.sched.Schedule(func() {
			r.pending = false
			if !r.cancelled {
				r.fn()
			}
		}) {
			r.pending = false
		}
	}
}
