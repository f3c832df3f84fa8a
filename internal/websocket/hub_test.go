package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T, hub *Hub) *gorilla.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubBroadcastReachesClient(t *testing.T) {
	hub := NewHub(time.Minute)
	go hub.Run()
	defer hub.Stop()

	conn := dialTestHub(t, hub)

	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast("alert", map[string]string{"id": "a-1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "alert", msg.Type)

	data, ok := msg.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "a-1", data["id"])
}

func TestHubPingPong(t *testing.T) {
	hub := NewHub(time.Minute)
	go hub.Run()
	defer hub.Stop()

	conn := dialTestHub(t, hub)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(Message{Type: "ping"}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)
}

func TestHubClientDisconnect(t *testing.T) {
	hub := NewHub(time.Minute)
	go hub.Run()
	defer hub.Stop()

	conn := dialTestHub(t, hub)
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubStopIdempotent(t *testing.T) {
	hub := NewHub(time.Minute)
	go hub.Run()
	hub.Stop()
	hub.Stop()
}
