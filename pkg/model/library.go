package model

import "sort"

// Library is the metadata of a component library attached to a project.
type Library struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// LibraryStore holds library metadata keyed by id.
type LibraryStore struct {
	libraries map[string]Library
}

func NewLibraryStore() *LibraryStore {
	return &LibraryStore{libraries: make(map[string]Library)}
}

func (s *LibraryStore) Add(l Library) {
	s.libraries[l.ID] = l
}

func (s *LibraryStore) Get(id string) (Library, bool) {
	l, ok := s.libraries[id]
	return l, ok
}

// List returns the libraries sorted by id.
func (s *LibraryStore) List() []Library {
	out := make([]Library, 0, len(s.libraries))
	for _, l := range s.libraries {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
