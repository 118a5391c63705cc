package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/studio/pkg/message"
)

const writeTimeout = 10 * time.Second

// Socket is a Channel over a websocket connection. Writes go through a single
// write pump and reads through a single read pump.
type Socket struct {
	conn   *websocket.Conn
	logger *slog.Logger

	out        chan []byte
	in         chan message.Envelope
	done       chan struct{}
	writerDone chan struct{}
	readerDone chan struct{}
	once       sync.Once
	closeOnce  sync.Once
}

// Dial connects to a websocket endpoint.
func Dial(ctx context.Context, endpoint string, logger *slog.Logger) (*Socket, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}
	return NewSocket(conn, logger), nil
}

// NewSocket wraps an established connection and starts its pumps.
func NewSocket(conn *websocket.Conn, logger *slog.Logger) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Socket{
		conn:       conn,
		logger:     logger.With("remote", conn.RemoteAddr().String()),
		out:        make(chan []byte, DefaultBuffer),
		in:         make(chan message.Envelope, DefaultBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
		readerDone: make(chan struct{}),
	}
	go s.readPump()
	go s.writePump()
	return s
}

func (s *Socket) Send(env message.Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.out <- raw:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrBackpressure
	}
}

func (s *Socket) Inbound() <-chan message.Envelope { return s.in }
func (s *Socket) Done() <-chan struct{}            { return s.done }

// Close stops both pumps and closes the connection.
func (s *Socket) Close() error {
	s.shutdown()
	<-s.writerDone
	var err error
	s.closeOnce.Do(func() { err = s.conn.Close() })
	<-s.readerDone
	return err
}

func (s *Socket) shutdown() {
	s.once.Do(func() { close(s.done) })
}

func (s *Socket) readPump() {
	defer close(s.readerDone)
	defer close(s.in)
	defer s.shutdown()
	for {
		mt, p, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Error("failed to read message", "err", err)
				}
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		var env message.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			s.logger.Warn("dropping undecodable message", "err", err)
			continue
		}
		select {
		case s.in <- env:
		case <-s.done:
			return
		}
	}
}

func (s *Socket) writePump() {
	defer close(s.writerDone)
	for {
		select {
		case raw := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				s.logger.Error("failed to write message", "err", err)
				s.shutdown()
				s.closeOnce.Do(func() { _ = s.conn.Close() })
				return
			}
		case <-s.done:
			err := s.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second),
			)
			if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
				s.logger.Debug("failed to send close", "err", err)
			}
			// unblock the read pump if the peer never answers the close
			s.closeOnce.Do(func() { _ = s.conn.Close() })
			return
		}
	}
}
