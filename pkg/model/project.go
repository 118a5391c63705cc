package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/automerge/automerge-go"
)

// ErrInvalidProject is returned when serialized project data cannot be used.
var ErrInvalidProject = errors.New("invalid project")

// Project is a design project. Its content lives in an automerge document so
// that every commit has a stable set of heads to identify it.
type Project struct {
	id        string
	doc       *automerge.Doc
	committed bool
	// heads at the last commit or load
	base []string
}

// projectJSON is the serialized form found in startup payloads.
type projectJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Document []byte `json:"document,omitempty"`
}

// NewProject creates an empty project with the given name.
func NewProject(id, name string) (*Project, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidProject)
	}
	p := &Project{id: id, doc: automerge.New()}
	if err := p.SetName(name); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadProject loads a project from a saved automerge document.
func LoadProject(id string, saved []byte) (*Project, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", ErrInvalidProject)
	}
	doc, err := automerge.Load(saved)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	p := &Project{id: id, doc: doc, committed: true}
	p.base = p.Heads()
	return p, nil
}

// ProjectFrom decodes the serialized form of a project.
func ProjectFrom(raw []byte) (*Project, error) {
	var in projectJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	if len(in.Document) == 0 {
		return NewProject(in.ID, in.Name)
	}
	p, err := LoadProject(in.ID, in.Document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProject, err)
	}
	if in.Name != "" && in.Name != p.Name() {
		if err := p.SetName(in.Name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Project) ID() string          { return p.id }
func (p *Project) Doc() *automerge.Doc { return p.doc }

// Committed reports whether every change has been committed.
func (p *Project) Committed() bool { return p.committed }

func (p *Project) Name() string {
	v, err := p.doc.Path("name").Get()
	if err != nil || v == nil {
		return ""
	}
	s, _ := v.Interface().(string)
	return s
}

func (p *Project) SetName(name string) error {
	if err := p.doc.Path("name").Set(name); err != nil {
		return fmt.Errorf("failed to set name: %w", err)
	}
	p.committed = false
	return nil
}

// Commit commits pending changes and marks the project as committed. A
// project with nothing pending is left as is, so its heads stay stable.
func (p *Project) Commit(message string) error {
	if p.committed {
		return nil
	}
	if _, err := p.doc.Commit(message); err != nil {
		// Save and Heads flush pending operations into a change of their own.
		if SameHeads(p.Heads(), p.base) {
			return fmt.Errorf("failed to commit doc: %w", err)
		}
	}
	p.committed = true
	p.base = p.Heads()
	return nil
}

// Heads returns the current document heads as strings.
func (p *Project) Heads() []string {
	heads := p.doc.Heads()
	out := make([]string, len(heads))
	for i, h := range heads {
		out[i] = h.String()
	}
	return out
}

// Save returns the automerge encoding of the document.
func (p *Project) Save() []byte {
	return p.doc.Save()
}

func (p *Project) MarshalJSON() ([]byte, error) {
	return json.Marshal(projectJSON{ID: p.id, Name: p.Name(), Document: p.doc.Save()})
}

// SameHeads reports whether two head lists contain the same hashes.
func SameHeads(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, h := range a {
		seen[h]++
	}
	for _, h := range b {
		if seen[h] == 0 {
			return false
		}
		seen[h]--
	}
	return true
}
