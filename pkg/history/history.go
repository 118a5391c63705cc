// Package history is the renderer's navigation stack, the headless stand-in
// for a browser's session history.
package history

import (
	"encoding/json"
	"net/url"
)

// Entry is one navigation record.
type Entry struct {
	State json.RawMessage
	Title string
	URL   string
}

// History holds entries and a cursor into them. Moving the cursor notifies
// pop-state listeners with the entry that became current. It is not safe for
// concurrent use.
type History struct {
	origin    *url.URL
	entries   []Entry
	index     int
	next      int
	listeners map[int]func(Entry)
}

// New creates a history whose first entry is the page location.
func New(location *url.URL) *History {
	origin := &url.URL{Scheme: "http", Host: "localhost", Path: "/"}
	if location != nil {
		c := *location
		origin = &c
	}
	first := Entry{URL: origin.EscapedPath()}
	if origin.Fragment != "" {
		first.URL += "#" + origin.EscapedFragment()
	}
	if first.URL == "" {
		first.URL = "/"
	}
	return &History{
		origin:    origin,
		entries:   []Entry{first},
		listeners: make(map[int]func(Entry)),
	}
}

// Location returns the absolute URL of the current entry.
func (h *History) Location() *url.URL {
	ref, err := url.Parse(h.entries[h.index].URL)
	if err != nil {
		c := *h.origin
		return &c
	}
	return h.origin.ResolveReference(ref)
}

// Current returns the current entry.
func (h *History) Current() Entry {
	return h.entries[h.index]
}

func (h *History) Len() int {
	return len(h.entries)
}

// Index returns the position of the current entry.
func (h *History) Index() int {
	return h.index
}

// Push adds an entry after the current one, discarding any forward entries.
// It does not notify listeners.
func (h *History) Push(state json.RawMessage, title, rawURL string) {
	h.entries = append(h.entries[:h.index+1], Entry{State: state, Title: title, URL: rawURL})
	h.index = len(h.entries) - 1
}

// Replace overwrites the current entry.
func (h *History) Replace(state json.RawMessage, title, rawURL string) {
	h.entries[h.index] = Entry{State: state, Title: title, URL: rawURL}
}

// Go moves the cursor by delta and notifies listeners. Out of range moves are
// ignored and report false.
func (h *History) Go(delta int) bool {
	target := h.index + delta
	if delta == 0 || target < 0 || target >= len(h.entries) {
		return false
	}
	h.index = target
	entry := h.entries[target]
	for id := 0; id <= h.next; id++ {
		if fn, ok := h.listeners[id]; ok {
			fn(entry)
		}
	}
	return true
}

func (h *History) Back() bool    { return h.Go(-1) }
func (h *History) Forward() bool { return h.Go(1) }

// OnPopState registers fn for cursor moves and returns a function removing it.
func (h *History) OnPopState(fn func(Entry)) func() {
	h.next++
	id := h.next
	h.listeners[id] = fn
	return func() { delete(h.listeners, id) }
}
