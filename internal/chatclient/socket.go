package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"roomchat/internal/types"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var ErrChannelClosed = errors.New("channel closed")

// Socket is a Channel over a gorilla websocket connection.
type Socket struct {
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	handlers map[string][]Handler

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to serverURL. Call Run to start moving frames.
func Dial(ctx context.Context, serverURL string) (*Socket, error) {
	log.Debug().Msgf("[SOCKET] Connecting to %s...", serverURL)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, err
	}
	log.Debug().Msg("[SOCKET] Connection successful")
	return NewSocket(conn), nil
}

func NewSocket(conn *websocket.Conn) *Socket {
	return &Socket{
		conn:     conn,
		send:     make(chan []byte, 256),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

func (s *Socket) On(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// Emit queues one event for the write pump.
func (s *Socket) Emit(event string, payload any) error {
	raw, err := types.Encode(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-s.done:
		return ErrChannelClosed
	default:
	}
	select {
	case s.send <- raw:
		return nil
	case <-s.done:
		return ErrChannelClosed
	}
}

// Done is closed once the connection is gone.
func (s *Socket) Done() <-chan struct{} {
	return s.done
}

func (s *Socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// Run pumps frames until the connection fails or ctx is done.
func (s *Socket) Run(ctx context.Context) error {
	go s.writePump()
	go func() {
		select {
		case <-ctx.Done():
			s.shutdown()
		case <-s.done:
		}
	}()
	err := s.readPump()
	s.Close()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// shutdown says goodbye before closing.
func (s *Socket) shutdown() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	s.Close()
}

func (s *Socket) readPump() error {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	s.conn.SetPingHandler(func(data string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return s.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("[SOCKET] Connection closed")
				return nil
			}
			return err
		}

		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Debug().Err(err).Msg("[SOCKET] Dropping malformed frame")
			continue
		}
		s.dispatch(env)
	}
}

func (s *Socket) dispatch(env types.Envelope) {
	s.mu.RLock()
	handlers := s.handlers[env.Event]
	s.mu.RUnlock()

	if len(handlers) == 0 {
		log.Debug().Msgf("[SOCKET] No handler for event %q", env.Event)
		return
	}
	for _, h := range handlers {
		h(env.Data)
	}
}

func (s *Socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn().Err(err).Msg("[SOCKET] Write error")
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		}
	}
}
