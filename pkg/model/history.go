package model

import "time"

// EditEntry is one committed project mutation.
type EditEntry struct {
	ProjectID string
	Heads     []string
	Message   string
	At        time.Time
}

// EditHistory is the append-only log of committed project mutations.
type EditHistory struct {
	entries []EditEntry
}

func NewEditHistory() *EditHistory {
	return &EditHistory{}
}

func (h *EditHistory) Record(e EditEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	h.entries = append(h.entries, e)
}

func (h *EditHistory) Len() int {
	return len(h.entries)
}

// Last returns the most recent entry.
func (h *EditHistory) Last() (EditEntry, bool) {
	if len(h.entries) == 0 {
		return EditEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

func (h *EditHistory) Entries() []EditEntry {
	out := make([]EditEntry, len(h.entries))
	copy(out, h.entries)
	return out
}
