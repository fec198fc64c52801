package websocket

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
	"github.com/wfunc/door-lock/internal/models"
	"go.uber.org/zap"
)

// newServer 启动一个把连接交给 hub 的测试服务
func newServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return &msg
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func TestHubPublishesAccessEvents(t *testing.T) {
	hub := startHub(t)
	srv := newServer(t, hub)

	conn := dial(t, srv)
	assert.Equal(t, MessageTypeConnected, readMessage(t, conn).Type)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	hub.PublishEvent(&models.AccessEvent{
		Kind:      models.AccessEventVerify,
		SessionID: "s-1",
		Result:    models.AccessResultMatch,
	})

	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeAccessEvent, msg.Type)
	assert.Equal(t, "s-1", msg.SessionID)

	var e models.AccessEvent
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	assert.Equal(t, models.AccessEventVerify, e.Kind)
	assert.Equal(t, models.AccessResultMatch, e.Result)
}

func TestClientPingAndBadMessage(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, newServer(t, hub))
	readMessage(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"unlock"}`)))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, newServer(t, hub))
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.Count() == 1 }, time.Second, time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	conn := dial(t, newServer(t, hub))
	readMessage(t, conn)

	cancel()
	<-stopped
	assert.Equal(t, 0, hub.Count())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
