package dashboard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(id string, buf int) *dashboard.Client {
	return &dashboard.Client{ID: id, Send: make(chan dashboard.Event, buf)}
}

func receive(t *testing.T, c *dashboard.Client) dashboard.Event {
	t.Helper()
	select {
	case ev := <-c.Send:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
	}
	return dashboard.Event{}
}

func TestHub_FansOutToEveryClient(t *testing.T) {
	// Arrange
	hub := dashboard.NewHub(logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	a, b := newClient("a", 4), newClient("b", 4)
	hub.RegisterCh <- a
	hub.RegisterCh <- b

	// Act
	hub.Publish(dashboard.Event{Type: dashboard.EventRequestCreated, RequestID: 7})

	// Assert
	for _, c := range []*dashboard.Client{a, b} {
		ev := receive(t, c)
		assert.Equal(t, dashboard.EventRequestCreated, ev.Type)
		assert.Equal(t, uint(7), ev.RequestID)
		assert.False(t, ev.At.IsZero(), "Publish stamps the event time")
	}
}

func TestHub_DropsSlowClient(t *testing.T) {
	m := metrics.New()
	hub := dashboard.NewHub(logger.Nop(), m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	fast := newClient("fast", 4)
	slow := newClient("slow", 1)
	slow.Send <- dashboard.Event{Type: "filler"}
	hub.RegisterCh <- fast
	hub.RegisterCh <- slow

	hub.Publish(dashboard.Event{Type: dashboard.EventReplyAdded, RequestID: 1})
	hub.Publish(dashboard.Event{Type: dashboard.EventReplyAdded, RequestID: 2})
	receive(t, fast)
	receive(t, fast)

	assert.Equal(t, dashboard.EventType("filler"), (<-slow.Send).Type)
	_, open := <-slow.Send
	assert.False(t, open, "slow client's channel is closed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DashboardConns))
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := dashboard.NewHub(logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := newClient("a", 1)
	hub.RegisterCh <- c
	hub.UnregisterCh <- c
	hub.UnregisterCh <- c // second unregister is ignored

	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_StopClosesClients(t *testing.T) {
	hub := dashboard.NewHub(logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := newClient("a", 1)
	hub.RegisterCh <- c
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	_, open := <-c.Send
	assert.False(t, open)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := dashboard.NewHub(logger.Nop(), nil) // not running

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(dashboard.Event{Type: dashboard.EventRequestCreated})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	assert.Equal(t, cap(hub.EventsCh), len(hub.EventsCh))
}

func TestHub_ServeStreamsOverWebsocket(t *testing.T) {
	m := metrics.New()
	hub := dashboard.NewHub(logger.Nop(), m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, 42)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DashboardConns) == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(dashboard.Event{Type: dashboard.EventStatusChanged, RequestID: 3, Status: "in_progress"})

	var ev dashboard.Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, dashboard.EventStatusChanged, ev.Type)
	assert.Equal(t, "in_progress", ev.Status)

	conn.Close()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.DashboardConns) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
