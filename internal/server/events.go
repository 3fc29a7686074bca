package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/desertthunder/cassette/internal/events"
	"github.com/desertthunder/cassette/internal/shared"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Subscriber hands out event channels.
//
// Implemented by [events.Bus].
type Subscriber interface {
	Subscribe() (<-chan events.Event, func())
}

// EventStream forwards bus events to websocket clients.
type EventStream struct {
	bus      Subscriber
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewEventStream creates the /ws/events handler.
//
// Only same-host origins and clients without an Origin header are accepted.
func NewEventStream(bus Subscriber, logger *log.Logger) *EventStream {
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &EventStream{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Routes returns the HTTP routes this handler serves.
func (s *EventStream) Routes() []string {
	return []string{"GET /ws/events"}
}

func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	stream, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go s.readLoop(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	s.logger.Debug("event stream connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-r.Context().Done():
			s.close(conn)
			return
		case <-closed:
			return
		case ev, ok := <-stream:
			if !ok {
				s.close(conn)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (s *EventStream) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("event stream closed", "error", err)
			}
			return
		}
	}
}

func (s *EventStream) close(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
