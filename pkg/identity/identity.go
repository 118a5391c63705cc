// Package identity decodes the startup payload embedded in the renderer's
// document into runtime facts.
package identity

import (
	"bytes"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/astromechza/studio/pkg/model"
)

// Identity is the best-effort decoding of a startup payload. Every field is
// optional: the zero value means the payload did not carry it.
type Identity struct {
	Host            model.HostKind
	View            model.View
	ProjectViewMode model.ProjectViewMode
	Update          *model.Update
	Project         json.RawMessage
}

type payload struct {
	Host            model.HostKind        `json:"host"`
	View            model.View            `json:"view"`
	ProjectViewMode model.ProjectViewMode `json:"projectViewMode"`
	Update          *model.Update         `json:"update"`
	Project         json.RawMessage       `json:"project"`
}

// Resolve decodes a URL-encoded JSON payload. Absent or malformed input
// resolves to the zero Identity.
func Resolve(raw string) Identity {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return Identity{}
	}
	var p payload
	if err := json.Unmarshal([]byte(decoded), &p); err != nil {
		return Identity{}
	}

	id := Identity{Update: p.Update}
	if p.Host.Valid() {
		id.Host = p.Host
	}
	if p.View.Valid() {
		id.View = p.View
	}
	if p.ProjectViewMode.Valid() {
		id.ProjectViewMode = p.ProjectViewMode
	}
	if id.Update != nil && id.Update.Version == "" {
		id.Update = nil
	}
	if trimmed := bytes.TrimSpace(p.Project); len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		id.Project = trimmed
	}
	return id
}

// HasProject reports whether the payload carried project data.
func (i Identity) HasProject() bool {
	return len(i.Project) > 0
}

// Apply copies the present fields onto app, host kind first.
func (i Identity) Apply(app *model.App) error {
	if i.Host != "" {
		if _, err := app.SetHostKind(i.Host); err != nil {
			return err
		}
	}
	if i.View != "" {
		app.SetActiveView(i.View)
	}
	if i.ProjectViewMode != "" {
		app.SetProjectViewMode(i.ProjectViewMode)
	}
	if i.Update != nil {
		app.SetUpdate(i.Update)
	}
	return nil
}

// Encode produces the URL-encoded form of a payload. The host uses it to embed
// startup data in the documents it serves.
func Encode(host model.HostKind, view model.View, mode model.ProjectViewMode, update *model.Update, project json.RawMessage) (string, error) {
	b, err := json.Marshal(payload{Host: host, View: view, ProjectViewMode: mode, Update: update, Project: project})
	if err != nil {
		return "", err
	}
	return url.PathEscape(string(b)), nil
}
