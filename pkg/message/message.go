// Package message defines the envelope exchanged between the renderer and the
// host process and the closed set of payloads it can carry.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/astromechza/studio/pkg/model"
)

// Type is the wire tag of a message.
type Type string

const (
	TypeWindowFocused           Type = "window-focused"
	TypeScreenshotRequest       Type = "chrome-screenshot"
	TypeCheckForUpdatesRequest  Type = "check-for-updates-request"
	TypeCheckForUpdatesResponse Type = "check-for-updates-response"
	TypeAppUpdate               Type = "app-update"
	TypeProjectChanged          Type = "project-changed"
	TypeSaveProjectRequest      Type = "save-project-request"
	TypeSaveProjectResponse     Type = "save-project-response"
)

// ErrUnknownType is returned when decoding an envelope with an unknown tag.
var ErrUnknownType = errors.New("unknown message type")

// Payload is implemented only by the payload types of this package.
type Payload interface {
	Type() Type
	sealed()
}

type WindowFocused struct {
	App       model.AppState `json:"app"`
	ProjectID string         `json:"projectId,omitempty"`
}

type ScreenshotRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type CheckForUpdatesRequest struct{}

type CheckForUpdatesResponse struct {
	Update *model.Update `json:"update,omitempty"`
}

type AppUpdate struct {
	App model.AppState `json:"app"`
}

type ProjectChanged struct {
	ProjectID string   `json:"projectId"`
	Heads     []string `json:"heads,omitempty"`
	// Document is the saved automerge document, set when the sender wants the
	// receiver to pick up the content and not only the new heads.
	Document []byte `json:"document,omitempty"`
}

type SaveProjectRequest struct {
	ProjectID string `json:"projectId"`
	Document  []byte `json:"document"`
}

type SaveProjectResponse struct {
	ProjectID string `json:"projectId"`
	Error     string `json:"error,omitempty"`
}

func (WindowFocused) Type() Type           { return TypeWindowFocused }
func (ScreenshotRequest) Type() Type       { return TypeScreenshotRequest }
func (CheckForUpdatesRequest) Type() Type  { return TypeCheckForUpdatesRequest }
func (CheckForUpdatesResponse) Type() Type { return TypeCheckForUpdatesResponse }
func (AppUpdate) Type() Type               { return TypeAppUpdate }
func (ProjectChanged) Type() Type          { return TypeProjectChanged }
func (SaveProjectRequest) Type() Type      { return TypeSaveProjectRequest }
func (SaveProjectResponse) Type() Type     { return TypeSaveProjectResponse }

func (WindowFocused) sealed()           {}
func (ScreenshotRequest) sealed()       {}
func (CheckForUpdatesRequest) sealed()  {}
func (CheckForUpdatesResponse) sealed() {}
func (AppUpdate) sealed()               {}
func (ProjectChanged) sealed()          {}
func (SaveProjectRequest) sealed()      {}
func (SaveProjectResponse) sealed()     {}

// Envelope is a single message on the wire.
type Envelope struct {
	ID      string
	Payload Payload
}

// New wraps a payload in an envelope with a fresh id.
func New(p Payload) Envelope {
	return Envelope{ID: uuid.NewString(), Payload: p}
}

// Type returns the tag of the carried payload.
func (e Envelope) Type() Type {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

type wireEnvelope struct {
	ID      string          `json:"id"`
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("envelope %s has no payload", e.ID)
	}
	w := wireEnvelope{ID: e.ID, Type: e.Payload.Type()}
	if _, empty := e.Payload.(CheckForUpdatesRequest); !empty {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	p, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	e.ID = w.ID
	e.Payload = p
	return nil
}

func decodePayload(t Type, raw json.RawMessage) (Payload, error) {
	switch t {
	case TypeWindowFocused:
		return decodeInto[WindowFocused](raw)
	case TypeScreenshotRequest:
		return decodeInto[ScreenshotRequest](raw)
	case TypeCheckForUpdatesRequest:
		return CheckForUpdatesRequest{}, nil
	case TypeCheckForUpdatesResponse:
		return decodeInto[CheckForUpdatesResponse](raw)
	case TypeAppUpdate:
		return decodeInto[AppUpdate](raw)
	case TypeProjectChanged:
		return decodeInto[ProjectChanged](raw)
	case TypeSaveProjectRequest:
		return decodeInto[SaveProjectRequest](raw)
	case TypeSaveProjectResponse:
		return decodeInto[SaveProjectResponse](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var p T
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", p.Type(), err)
	}
	return p, nil
}
