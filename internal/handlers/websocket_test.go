package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

func newTestHub(t *testing.T, cfg *common.WebSocketConfig) (*WSHandler, string) {
	t.Helper()
	hub := NewWSHandler(nil, cfg, "test-instance", arbor.NewLogger())
	srv := httptest.NewServer(http.HandlerFunc(hub.WebSocketHandler))
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialSubscriber(t *testing.T, url string, topics ...string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wsCommand{Action: "subscribe", Topics: topics}))
	return conn
}

func allSubscribed(hub *WSHandler, want int, topic string) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if len(hub.clients) != want {
		return false
	}
	for client := range hub.clients {
		if !client.wants(topic) {
			return false
		}
	}
	return true
}

func TestFanoutSurvivesDisconnectRace(t *testing.T) {
	hub, url := newTestHub(t, &common.WebSocketConfig{SendBufferSize: 1})

	const subscribers = 20
	conns := make([]*websocket.Conn, 0, subscribers)
	for i := 0; i < subscribers; i++ {
		conns = append(conns, dialSubscriber(t, url, "logs.all"))
	}
	require.Eventually(t, func() bool {
		return allSubscribed(hub, subscribers, "logs.all")
	}, 2*time.Second, 10*time.Millisecond)

	// Hammer the fan-out while every client disconnects underneath it.
	// A send racing a departing client's channel close would panic here.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = hub.onEvent(context.Background(), interfaces.Event{
						Type:    interfaces.EventLogsAll,
						Payload: map[string]string{"message": "tick"},
					})
				}
			}
		}()
	}

	for _, conn := range conns {
		conn.Close()
	}
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 0
	}, 5*time.Second, 10*time.Millisecond)

	close(stop)
	wg.Wait()
}

func TestCloseDiscardsLateDeliveries(t *testing.T) {
	hub, url := newTestHub(t, &common.WebSocketConfig{SendBufferSize: 4})

	conn := dialSubscriber(t, url, "logs.all")
	defer conn.Close()
	require.Eventually(t, func() bool {
		return allSubscribed(hub, 1, "logs.all")
	}, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	require.Zero(t, hub.SubscriberCount())

	// Events after shutdown must be dropped, not sent on a closed outbox.
	require.NoError(t, hub.onEvent(context.Background(), interfaces.Event{
		Type:    interfaces.EventLogsAll,
		Payload: map[string]string{"message": "late"},
	}))
}

func TestSubscribeFilterAndWildcard(t *testing.T) {
	client := &wsClient{topics: make(map[string]struct{})}
	client.subscribe([]string{"logs.job.*", "alerts.new", ""})

	require.True(t, client.wants("logs.job.nightly-etl"))
	require.True(t, client.wants("alerts.new"))
	require.False(t, client.wants("logs.all"))

	client.unsubscribe([]string{"alerts.new"})
	require.False(t, client.wants("alerts.new"))
}
