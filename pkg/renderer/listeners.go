package renderer

import (
	"github.com/astromechza/studio/pkg/message"
)

// UIEvent is an event observed by the view layer.
type UIEvent interface {
	uiEvent()
}

// FocusEvent reports that the window gained focus.
type FocusEvent struct{}

// ResizeEvent reports the new viewport size.
type ResizeEvent struct {
	Width  int
	Height int
}

// ScreenshotEvent asks for a screenshot of the current viewport.
type ScreenshotEvent struct{}

// NavigateEvent moves through the navigation history, -1 is back.
type NavigateEvent struct {
	Delta int
}

func (FocusEvent) uiEvent()      {}
func (ResizeEvent) uiEvent()     {}
func (ScreenshotEvent) uiEvent() {}
func (NavigateEvent) uiEvent()   {}

// Viewport is the size of the rendered window.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultViewport is used until the view layer reports a size.
var DefaultViewport = Viewport{Width: 1280, Height: 800}

// Dispatch queues a UI event for the listeners. It reports false when the
// loop has stopped.
func (r *Runtime) Dispatch(ev UIEvent) bool {
	return r.loop.Schedule(func() {
		for _, fn := range r.ui {
			if fn != nil {
				fn(ev)
			}
		}
	})
}

// listen registers the UI listeners.
func (r *Runtime) listen() []func() {
	r.viewport = DefaultViewport
	return []func(){
		r.addListener(func(ev UIEvent) {
			if _, ok := ev.(FocusEvent); ok {
				r.store.SendPayload(message.WindowFocused{App: r.store.App().State(), ProjectID: r.store.ProjectID()})
			}
		}),
		r.addListener(func(ev UIEvent) {
			if e, ok := ev.(ResizeEvent); ok && e.Width > 0 && e.Height > 0 {
				r.viewport = Viewport{Width: e.Width, Height: e.Height}
			}
		}),
		r.addListener(func(ev UIEvent) {
			if _, ok := ev.(ScreenshotEvent); ok {
				r.store.SendPayload(message.ScreenshotRequest{Width: r.viewport.Width, Height: r.viewport.Height})
			}
		}),
		r.addListener(func(ev UIEvent) {
			if e, ok := ev.(NavigateEvent); ok && !r.history.Go(e.Delta) {
				r.logger.Debug("ignoring navigation out of range", "delta", e.Delta)
			}
		}),
	}
}

func (r *Runtime) addListener(fn func(UIEvent)) func() {
	i := len(r.ui)
	r.ui = append(r.ui, fn)
	return func() { r.ui[i] = nil }
}
