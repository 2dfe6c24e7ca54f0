package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

func startHub(t *testing.T, provider func() interface{}) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop())
	if provider != nil {
		hub.SetInitDataProvider(provider)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		client.Register()
		go client.ReadPump()
		go client.WritePump()
	}))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg received
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubSendsInitThenRelaysEvents(t *testing.T) {
	hub, url := startHub(t, func() interface{} {
		return map[string]interface{}{"trip_id": 42, "state": "active"}
	})
	conn := dial(t, url)

	initMsg := readMessage(t, conn)
	assert.Equal(t, MsgTypeInit, initMsg.Type)
	assert.JSONEq(t, `{"trip_id":42,"state":"active"}`, string(initMsg.Data))

	events := make(chan models.Event, 2)
	passengers := 3
	events <- models.Event{Type: models.EventPassengers, TripID: 42, Passengers: &passengers}
	close(events)
	hub.Relay(events)

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeEvent, msg.Type)
	var ev models.Event
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	assert.Equal(t, models.EventPassengers, ev.Type)
	assert.Equal(t, int64(42), ev.TripID)
	require.NotNil(t, ev.Passengers)
	assert.Equal(t, 3, *ev.Passengers)
}

func TestHubSkipsInitWithoutSession(t *testing.T) {
	hub, url := startHub(t, func() interface{} { return nil })
	conn := dial(t, url)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.BroadcastMessage(MsgTypeError, "feed lost")
	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.JSONEq(t, `"feed lost"`, string(msg.Data))

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
