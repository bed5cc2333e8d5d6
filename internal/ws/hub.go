package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"challenge-chat/internal/observability"
)

const (
	writeWait     = 10 * time.Second
	wsRoutingKey  = "ws_events.chat"
	wsEventsType  = "ws_events"
	wsMetricsKind = "chat"
)

// client serialises writes to one connection.
type client struct {
	conn *websocket.Conn
	info ConnInfo
	mu   sync.Mutex
}

func (c *client) write(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, payload)
}

func (c *client) close() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Hub maintains the sockets subscribed to each chat topic on this instance.
type Hub struct {
	rooms map[string]map[*client]struct{}
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{})}
}

// Add registers a connection under topic.
func (h *Hub) Add(topic string, conn *websocket.Conn, info ConnInfo) *client {
	cl := &client{conn: conn, info: info}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[*client]struct{})
	}
	h.rooms[topic][cl] = struct{}{}
	return cl
}

// Remove drops a connection from topic. It reports whether it was present.
func (h *Hub) Remove(topic string, cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.rooms[topic]
	if !ok {
		return false
	}
	if _, ok := conns[cl]; !ok {
		return false
	}
	delete(conns, cl)
	if len(conns) == 0 {
		delete(h.rooms, topic)
	}
	return true
}

// Count returns the number of sockets on topic.
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}

// Publish writes payload to every socket on topic. Sockets that fail the
// write are closed and dropped.
func (h *Hub) Publish(topic string, payload []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[topic]))
	for cl := range h.rooms[topic] {
		targets = append(targets, cl)
	}
	h.mu.RUnlock()

	for _, cl := range targets {
		if err := cl.write(websocket.TextMessage, payload); err != nil {
			log.Printf("websocket write error topic=%s conn_id=%s err=%v", topic, cl.info.ConnID, err)
			cl.close()
			if h.Remove(topic, cl) {
				publishWSEvent(context.Background(), topic, "ws_error", cl.info, err.Error())
			}
		}
	}
}

func publishWSEvent(ctx context.Context, topic, event string, info ConnInfo, reason string) {
	var durationMS int64
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	payload := observability.WSPayload(topic, event, info.ConnID, durationMS, reason, info.UserID, info.DeviceID, info.IP)
	_ = observability.PublishEvent(ctx, wsRoutingKey, observability.EventEnvelope{
		EventType: wsEventsType,
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(info.RequestID, info.TraceID))
	observability.IncWSEvent(wsMetricsKind, event)
}
