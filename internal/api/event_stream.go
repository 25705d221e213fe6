package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/phrazzld/taskline/internal/events"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// EventStream is an events.EventHandler that broadcasts job events to
// websocket clients. A client may pass ?tag= to only receive the events of
// one job. Clients that fall behind by more than the buffer size are
// disconnected instead of slowing down the emitter.
type EventStream struct {
	upgrader   websocket.Upgrader
	bufferSize int

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
	closed  bool

	logger *slog.Logger
}

type streamClient struct {
	tag  string
	send chan *events.JobEvent
	done chan struct{}
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewEventStream creates an EventStream buffering up to bufferSize events per
// client. A non-positive size buffers 64.
func NewEventStream(bufferSize int, logger *slog.Logger) *EventStream {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &EventStream{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		bufferSize: bufferSize,
		clients:    make(map[*streamClient]struct{}),
		logger:     logger.With("component", "event_stream"),
	}
}

// HandleEvent implements events.EventHandler. It never blocks on clients.
func (s *EventStream) HandleEvent(_ context.Context, event *events.JobEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.clients {
		if c.tag != "" && c.tag != event.Tag {
			continue
		}
		select {
		case c.send <- event:
		default:
			s.logger.Warn("event stream client too slow, disconnecting", "tag_filter", c.tag)
			c.close()
		}
	}
	return nil
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// text messages until the client goes away or the stream is closed.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	client := &streamClient{
		tag:  r.URL.Query().Get("tag"),
		send: make(chan *events.JobEvent, s.bufferSize),
		done: make(chan struct{}),
	}
	if !s.register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(streamWriteWait))
		_ = conn.Close()
		return
	}
	defer s.unregister(client)

	s.logger.Debug("event stream client connected", "tag_filter", client.tag, "remote_addr", r.RemoteAddr)

	go s.readLoop(conn, client)
	s.writeLoop(conn, client)
}

// readLoop discards client messages and detects disconnects
func (s *EventStream) readLoop(conn *websocket.Conn, client *streamClient) {
	defer client.close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("event stream client read failed", "error", err)
			}
			return
		}
	}
}

func (s *EventStream) writeLoop(conn *websocket.Conn, client *streamClient) {
	ticker := time.NewTicker(streamPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case event := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(streamWriteWait))
			return
		}
	}
}

func (s *EventStream) register(c *streamClient) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *EventStream) unregister(c *streamClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

// ClientCount returns the number of connected clients
func (s *EventStream) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Close disconnects every client and rejects new ones
func (s *EventStream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	s.logger.Info("event stream closed")
}
