package message

import "slices"

// Bus dispatches received envelopes to subscribers by type. It is not safe for
// concurrent use; the renderer only touches it from its loop.
type Bus struct {
	next int
	subs map[Type]map[int]func(Envelope)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Type]map[int]func(Envelope))}
}

// Subscribe registers fn for envelopes of type t and returns a function that
// removes it again.
func (b *Bus) Subscribe(t Type, fn func(Envelope)) func() {
	b.next++
	id := b.next
	if b.subs[t] == nil {
		b.subs[t] = make(map[int]func(Envelope))
	}
	b.subs[t][id] = fn
	return func() {
		delete(b.subs[t], id)
	}
}

// Dispatch delivers env to every subscriber of its type in subscription order
// and returns how many received it.
func (b *Bus) Dispatch(env Envelope) int {
	subs := b.subs[env.Type()]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if fn, ok := subs[id]; ok {
			fn(env)
		}
	}
	return len(ids)
}
