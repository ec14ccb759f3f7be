package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cxr-assist-server/internal/middleware"
	"github.com/cxr-assist-server/internal/service"
)

const (
	eventWriteWait  = 10 * time.Second
	eventPongWait   = 60 * time.Second
	eventPingPeriod = (eventPongWait * 9) / 10
	eventBuffer     = 32
)

// EventHub fans case events out to websocket subscribers. It implements
// service.EventPublisher.
type EventHub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
	closed  bool
}

type subscriber struct {
	conn        *websocket.Conn
	clinicianID string
	send        chan []byte
}

var _ service.EventPublisher = (*EventHub)(nil)

// NewEventHub creates an empty hub.
func NewEventHub(logger *logrus.Logger) *EventHub {
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[*subscriber]struct{}),
	}
}

// Publish delivers event to every matching subscriber without blocking.
// A subscriber whose buffer is full misses the event.
func (h *EventHub) Publish(event service.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.WithError(err).Error("Failed to encode case event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.clients {
		if !sub.sees(event) {
			continue
		}
		select {
		case sub.send <- data:
		default:
			h.logger.WithField("event", event.Type).Warn("Dropping case event for slow subscriber")
		}
	}
}

// sees applies the REST visibility rule: an unscoped subscriber sees every
// case, a scoped one sees its own cases and cases without an owner.
func (sub *subscriber) sees(event service.Event) bool {
	return sub.clinicianID == "" || event.ClinicianID == "" || sub.clinicianID == event.ClinicianID
}

// Subscribers returns the number of connected clients.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.clients {
		close(sub.send)
		delete(h.clients, sub)
	}
}

// handleEvents upgrades the request and streams events until the client leaves.
func (h *EventHub) handleEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	sub := &subscriber{
		conn:        conn,
		clinicianID: c.GetString(middleware.ClinicianIDKey),
		send:        make(chan []byte, eventBuffer),
	}
	if !h.register(sub) {
		conn.Close()
		return
	}

	h.logger.WithField("clinician_id", sub.clinicianID).Debug("Event subscriber connected")
	go h.writePump(sub)
	h.readPump(sub)
}

func (h *EventHub) register(sub *subscriber) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[sub] = struct{}{}
	return true
}

func (h *EventHub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub]; ok {
		delete(h.clients, sub)
		close(sub.send)
	}
}

// readPump discards client messages and notices disconnects.
func (h *EventHub) readPump(sub *subscriber) {
	defer func() {
		h.unregister(sub)
		sub.conn.Close()
	}()

	sub.conn.SetReadLimit(512)
	_ = sub.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(eventPongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(sub *subscriber) {
	ticker := time.NewTicker(eventPingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case data, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
