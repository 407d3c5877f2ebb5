package dashboard

import (
	"context"
	"time"

	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const eventBuffer = 256

// Hub fans events out to every registered client. All client bookkeeping
// happens on the Run goroutine.
type Hub struct {
	Clients      map[string]*Client
	RegisterCh   chan *Client
	UnregisterCh chan *Client
	EventsCh     chan Event

	done    chan struct{}
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewHub creates a hub. m may be nil.
func NewHub(log *logger.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		Clients:      make(map[string]*Client),
		RegisterCh:   make(chan *Client),
		UnregisterCh: make(chan *Client),
		EventsCh:     make(chan Event, eventBuffer),
		done:         make(chan struct{}),
		log:          log.With("service", "dashboard"),
		metrics:      m,
		now:          time.Now,
	}
}

// Publish never blocks the caller; when the queue is full the event is dropped.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = h.now().UTC()
	}
	select {
	case h.EventsCh <- ev:
	default:
		h.log.Warn("dashboard queue full, event dropped", "type", ev.Type, "request_id", ev.RequestID)
	}
}

// Run processes registrations and events until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("dashboard hub started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for id, client := range h.Clients {
				client.Close()
				delete(h.Clients, id)
			}
			h.gauge()
			h.log.Info("dashboard hub stopped")
			return

		case client := <-h.RegisterCh:
			h.Clients[client.ID] = client
			h.gauge()
			h.log.Debug("dashboard client registered", "client_id", client.ID, "staff_id", client.StaffID)

		case client := <-h.UnregisterCh:
			if _, ok := h.Clients[client.ID]; ok {
				delete(h.Clients, client.ID)
				client.Close()
				h.gauge()
				h.log.Debug("dashboard client unregistered", "client_id", client.ID)
			}

		case ev := <-h.EventsCh:
			for id, client := range h.Clients {
				select {
				case client.Send <- ev:
				default:
					// slow consumer
					delete(h.Clients, id)
					client.Close()
					h.gauge()
					h.log.Warn("dashboard client too slow, disconnected", "client_id", id)
				}
			}
		}
	}
}

// Serve registers a websocket connection for staffID and starts its pumps.
// It returns nil when the hub has already stopped.
func (h *Hub) Serve(conn *websocket.Conn, staffID int64) *Client {
	client := &Client{
		ID:      uuid.NewString(),
		StaffID: staffID,
		Conn:    conn,
		Hub:     h,
		Send:    make(chan Event, eventBuffer),
	}
	select {
	case h.RegisterCh <- client:
	case <-h.done:
		conn.Close()
		return nil
	}
	client.Run()
	return client
}

func (h *Hub) gauge() {
	if h.metrics != nil {
		h.metrics.DashboardConns.Set(float64(len(h.Clients)))
	}
}
