// Package transport carries message envelopes between the renderer and the
// host process, either over a websocket or through an in-process pipe.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/astromechza/studio/pkg/message"
	"github.com/astromechza/studio/pkg/model"
)

var (
	// ErrClosed is returned when sending on a closed channel.
	ErrClosed = errors.New("channel closed")
	// ErrBackpressure is returned when the outbound queue is full. The message
	// is dropped.
	ErrBackpressure = errors.New("outbound queue full")
)

// Sender sends a message without waiting for any acknowledgement.
type Sender interface {
	Send(message.Envelope) error
}

// Channel is a bidirectional message channel.
type Channel interface {
	Sender
	// Inbound yields received envelopes. Readers must also watch Done, not
	// every implementation closes it.
	Inbound() <-chan message.Envelope
	// Done is closed once the channel is closed from either side.
	Done() <-chan struct{}
	Close() error
}

// Endpoint returns the address the renderer connects to. Under the privileged
// shell it is empty, the shell provides an in-process channel instead.
func Endpoint(host model.HostKind, pageHost string) string {
	if host == model.HostShell {
		return ""
	}
	return (&url.URL{Scheme: "ws", Host: pageHost, Path: "/"}).String()
}

// Open returns the channel for endpoint. An empty endpoint selects local, or
// a fresh pipe end when local is nil.
func Open(ctx context.Context, endpoint string, local Channel, logger *slog.Logger) (Channel, error) {
	if endpoint == "" {
		if local != nil {
			return local, nil
		}
		a, _ := Pipe(DefaultBuffer)
		return a, nil
	}
	return Dial(ctx, endpoint, logger)
}

// DefaultBuffer is the size of inbound and outbound queues.
const DefaultBuffer = 64
