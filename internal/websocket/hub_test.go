package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startHubServer(t *testing.T, hub *Hub, accountID int64) string {
	t.Helper()
	upgrader := NewUpgrader([]string{"http://localhost:3000"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn, accountID)
		hub.Register <- client
		go client.ReadPump()
		go client.WritePump()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_PublishReachesOwnerOnly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	url := startHubServer(t, hub, 42)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ConnectedClients(42) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(7, EventFileDownloaded, map[string]string{"file_id": "other"})
	hub.Publish(42, EventFileDownloaded, map[string]string{"file_id": "abc"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event struct {
		EventType string            `json:"event_type"`
		Payload   map[string]string `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, EventFileDownloaded, event.EventType)
	require.Equal(t, "abc", event.Payload["file_id"])
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	url := startHubServer(t, hub, 1)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.ConnectedClients(1) == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ConnectedClients(1) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestUpgrader_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub()
	url := startHubServer(t, hub, 1)

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
