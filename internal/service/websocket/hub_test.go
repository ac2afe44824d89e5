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

	"webclassifier/internal/logger"
)

// newHubServer registers every connection under the session given in the
// ?session= query parameter, with the given initial message.
func newHubServer(t *testing.T, h *HubService, initial []byte, version uint64) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.Register(conn, r.URL.Query().Get("session"), initial, version)
		defer h.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"?session="+session, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubService_RoutesBySession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHubService(logger.NewNop())
	go h.Run(ctx)
	srv := newHubServer(t, h, nil, 0)

	a := dial(t, srv, "a")
	b := dial(t, srv, "b")
	require.Eventually(t, func() bool { return h.GetClientCount() == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, 1, h.SessionClientCount("a"))

	h.Broadcast([]byte(`{"for":"a"}`), "a", 1)

	a.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := a.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"for":"a"}`, string(msg))

	b.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "other sessions receive nothing")
}

func TestHubService_UnregisterOnClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHubService(logger.NewNop())
	go h.Run(ctx)
	srv := newHubServer(t, h, nil, 0)

	conn := dial(t, srv, "a")
	require.Eventually(t, func() bool { return h.GetClientCount() == 1 }, time.Second, 2*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return h.GetClientCount() == 0 }, time.Second, 2*time.Millisecond)
}

func TestHubService_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHubService(logger.NewNop())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}

	h.Broadcast([]byte("late"), "a", 1)
	assert.Equal(t, 0, h.GetClientCount())
}

func TestHubService_InitialSnapshotIsNeverFollowedByOlderState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHubService(logger.NewNop())
	srv := newHubServer(t, h, []byte(`{"v":5}`), 5)

	// Queued before the viewer subscribes, delivered after.
	h.Broadcast([]byte(`{"v":4}`), "a", 4)
	conn := dial(t, srv, "a")
	go h.Run(ctx)
	require.Eventually(t, func() bool { return h.SessionClientCount("a") == 1 }, time.Second, 2*time.Millisecond)
	h.Broadcast([]byte(`{"v":6}`), "a", 6)

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":5}`, string(msg))

	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":6}`, string(msg))
}
