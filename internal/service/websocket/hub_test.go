package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/logger"
)

func newTestHub(t *testing.T) *HubService {
	t.Helper()
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	hub := NewHubService(log)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.done
		log.Close()
	})
	return hub
}

// dial starts a viewer endpoint backed by hub and connects a client to it.
func dial(t *testing.T, hub *HubService) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				hub.Unregister(conn)
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestHub_DeliversToViewers(t *testing.T) {
	hub := newTestHub(t)
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("detections", []byte(`{"frame":1}`))

	assert.Equal(t, `{"frame":1}`, read(t, conn))
}

func TestHub_ReplaysLastMessagesToNewViewer(t *testing.T) {
	hub := newTestHub(t)
	first := dial(t, hub)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast("fps", []byte(`{"fps":12}`))
	assert.Equal(t, `{"fps":12}`, read(t, first))
	hub.Broadcast("detections", []byte(`{"frame":3}`))
	assert.Equal(t, `{"frame":3}`, read(t, first))

	late := dial(t, hub)
	assert.Equal(t, `{"frame":3}`, read(t, late))
	assert.Equal(t, `{"fps":12}`, read(t, late))
}

func TestHub_PendingKeepsLatestPerKind(t *testing.T) {
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	defer log.Close()
	hub := NewHubService(log)

	hub.Broadcast("detections", []byte("1"))
	hub.Broadcast("fps", []byte("a"))
	hub.Broadcast("detections", []byte("2"))

	messages := hub.takePending()
	require.Len(t, messages, 2)
	assert.Equal(t, "2", string(messages[0]))
	assert.Equal(t, "a", string(messages[1]))
	assert.Empty(t, hub.takePending())
}

func TestHub_UnregisterOnDisconnect(t *testing.T) {
	hub := newTestHub(t)
	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
