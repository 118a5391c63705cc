package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/astromechza/studio/pkg/message"
)

// Local is one end of an in-process pipe. Envelopes are passed through their
// JSON encoding so both ends see exactly what a socket would deliver.
type Local struct {
	peer *Local
	in   chan message.Envelope
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected ends. Closing either end closes both.
func Pipe(buffer int) (*Local, *Local) {
	done := make(chan struct{})
	once := new(sync.Once)
	a := &Local{in: make(chan message.Envelope, buffer), done: done, once: once}
	b := &Local{in: make(chan message.Envelope, buffer), done: done, once: once}
	a.peer, b.peer = b, a
	return a, b
}

func (l *Local) Send(env message.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	var copied message.Envelope
	if err := json.Unmarshal(raw, &copied); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.peer.in <- copied:
		return nil
	default:
		return ErrBackpressure
	}
}

func (l *Local) Inbound() <-chan message.Envelope { return l.in }
func (l *Local) Done() <-chan struct{}            { return l.done }

func (l *Local) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}
