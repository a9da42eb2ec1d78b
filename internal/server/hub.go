package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bundlebooth/bdb-3.0-sub000/internal/events"
	"github.com/bundlebooth/bdb-3.0-sub000/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	sendBuffer = 256
)

// envelope is the frame shape in both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once

	// incoming handles frames read from the peer.
	incoming func(*Client, []byte)
}

// Hub fans bus events and inbox snapshots out to every connected page.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

// Len is the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(conn *websocket.Conn) (*Client, bool) {
	c := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	h.clients[c] = struct{}{}
	observability.ActiveWebSockets.Inc()
	return c, true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		observability.ActiveWebSockets.Dec()
	}
	c.close()
}

// Broadcast queues message for every client. Slow clients drop it.
func (h *Hub) Broadcast(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.TrySend(message)
	}
}

// BroadcastJSON wraps payload in an envelope of type typ and broadcasts it.
func (h *Hub) BroadcastJSON(typ string, payload any) {
	frame, err := encodeFrame(typ, payload)
	if err != nil {
		observability.GlobalLogger.Error("failed to encode websocket frame", "type", typ, "error", err)
		return
	}
	h.Broadcast(frame)
}

// Shutdown closes every client's send channel, which makes each write pump
// send a close frame, and rejects new clients.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()
	for c := range clients {
		observability.ActiveWebSockets.Dec()
		c.close()
	}
}

func encodeFrame(typ string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: typ, Payload: raw})
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

// ReadPump pumps frames from the websocket connection to the incoming handler.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { _ = c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				observability.GlobalLogger.Warn("websocket read failed", "error", err)
			}
			return
		}
		if c.incoming != nil {
			c.incoming(c, message)
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues message without blocking. A full buffer drops it and tries
// to tell the page so it can refetch.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.WebSocketDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.send <- message:
	default:
		observability.WebSocketDrops.WithLabelValues("full").Inc()
		dropNotice := []byte(`{"type":"messages_dropped","payload":{"reason":"buffer_full"}}`)
		select {
		case c.send <- dropNotice:
		default:
		}
	}
}

// pageEvent is the payload of an inbound "event" frame.
type pageEvent struct {
	Name   string          `json:"name"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// serveWS registers the connection, sends the current inbox and then relays
// inbound "event" frames to the bus until the peer goes away.
func (s *Server) serveWS(conn *websocket.Conn) {
	c, ok := s.hub.register(conn)
	if !ok {
		_ = conn.Close()
		return
	}
	c.incoming = s.handleFrame

	if s.poller != nil {
		if frame, err := encodeFrame("inbox", s.poller.Snapshot()); err == nil {
			c.TrySend(frame)
		}
	}

	go c.WritePump()
	c.ReadPump()
}

func (s *Server) handleFrame(_ *Client, message []byte) {
	if s.bus == nil {
		return
	}
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type != "event" {
		return
	}
	var pe pageEvent
	if err := json.Unmarshal(env.Payload, &pe); err != nil || pe.Name == "" || pe.Name == events.Wildcard {
		return
	}
	e, err := events.New(pe.Name, nil)
	if err != nil {
		return
	}
	e.Detail = pe.Detail
	ctx := observability.EnsureCorrelationID(context.Background())
	if err := s.bus.Publish(ctx, e); err != nil {
		s.log.WarnContext(ctx, "failed to publish page event", "event", e.Name, "error", err)
	}
}
