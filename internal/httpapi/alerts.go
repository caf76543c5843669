package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tokenwatch/rater/internal/model"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 16
	broadcastDepth = 64
)

// AlertEvent is one alert-bearing rating pushed to stream subscribers.
type AlertEvent struct {
	TokenAddress   string               `json:"token_address"`
	Rating         float64              `json:"rating"`
	Confidence     float64              `json:"confidence"`
	Recommendation model.Recommendation `json:"recommendation"`
	Alerts         []string             `json:"alerts"`
	Timestamp      time.Time            `json:"timestamp"`
}

// AlertHub fans alert events out to websocket subscribers. Slow clients are
// dropped rather than blocking the broadcast.
type AlertHub struct {
	upgrader  websocket.Upgrader
	log       zerolog.Logger
	broadcast chan AlertEvent
	stop      chan struct{}

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	// notify reports the subscriber count after every change. Set before
	// the first upgrade; nil disables reporting.
	notify func(n int)
}

// countChanged must be called with mu held.
func (h *AlertHub) countChanged() {
	if h.notify != nil {
		h.notify(len(h.clients))
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan AlertEvent
}

// NewAlertHub creates the hub; Run must be started for delivery.
func NewAlertHub(logger zerolog.Logger) *AlertHub {
	return &AlertHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Alert stream is read-only public data.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:       logger.With().Str("component", "alert_hub").Logger(),
		broadcast: make(chan AlertEvent, broadcastDepth),
		stop:      make(chan struct{}),
		clients:   map[*wsClient]struct{}{},
	}
}

// Run delivers broadcasts until Stop is called.
func (h *AlertHub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAll()
			return
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// Stop terminates the hub and disconnects all clients.
func (h *AlertHub) Stop() {
	close(h.stop)
}

// Publish enqueues an alert-bearing rating. Non-blocking; the event is
// dropped when the broadcast queue is full.
func (h *AlertHub) Publish(result model.RatingResult) {
	event := AlertEvent{
		TokenAddress:   result.TokenAddress,
		Rating:         result.Rating,
		Confidence:     result.Confidence,
		Recommendation: result.Recommendation,
		Alerts:         result.Alerts,
		Timestamp:      result.Timestamp,
	}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn().Str("token", result.TokenAddress).Msg("alert broadcast queue full, event dropped")
	}
}

// ClientCount returns the number of connected subscribers.
func (h *AlertHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleUpgrade upgrades the request and registers the subscriber.
func (h *AlertHub) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan AlertEvent, clientBuffer)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.countChanged()
	h.mu.Unlock()

	go h.writePump(client)
	go h.readPump(client)
}

func (h *AlertHub) deliver(event AlertEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- event:
		default:
			// Backpressure: a stalled subscriber loses its slot.
			delete(h.clients, client)
			close(client.send)
		}
	}
	h.countChanged()
}

func (h *AlertHub) writePump(client *wsClient) {
	defer client.conn.Close()
	for event := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteJSON(event); err != nil {
			h.remove(client)
			return
		}
	}
}

// readPump discards inbound frames and detects disconnects.
func (h *AlertHub) readPump(client *wsClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.remove(client)
			return
		}
	}
}

func (h *AlertHub) remove(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.countChanged()
	}
}

func (h *AlertHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
	h.countChanged()
}
