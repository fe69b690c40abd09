package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

func dial(t *testing.T, srv *httptest.Server, accountID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?account=" + accountID
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func newTestServer(t *testing.T, h *Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, r.URL.Query().Get("account"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestServeWS_RoundTrip(t *testing.T) {
	h := NewHub(Options{}, nil)
	runHub(t, h)
	srv := newTestServer(t, h)

	conn := dial(t, srv, "u2")

	frame := readFrame(t, conn)
	assert.Equal(t, FrameSubscribed, frame["type"])
	assert.Equal(t, "u2", frame["accountId"])
	assert.Equal(t, 1, h.SubscriberCount("u2"))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
	assert.Equal(t, FramePong, readFrame(t, conn)["type"])

	// Messages inconnus ignorés, la connexion reste ouverte
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","accountId":"u9"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))

	require.NoError(t, h.Publish(context.Background(), followEvent("u1", "u2")))
	ev := readFrame(t, conn)
	assert.Equal(t, string(domain.FollowChanged), ev["kind"])
	assert.Equal(t, "u1", ev["subjectAccountId"])
	assert.Equal(t, "u2", ev["targetId"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.SubscriberCount("u2") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_PongTimeoutUnsubscribes(t *testing.T) {
	h := NewHub(Options{PongWait: 150 * time.Millisecond}, nil)
	runHub(t, h)
	srv := newTestServer(t, h)

	conn := dial(t, srv, "u1")
	// Pas de pong automatique : le client ne lit pas, donc ne traite pas les pings
	conn.SetPingHandler(func(string) error { return nil })
	assert.Eventually(t, func() bool { return h.SubscriberCount("u1") == 1 }, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return h.SubscriberCount("u1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeWS_ShutdownClosesConnection(t *testing.T) {
	h := NewHub(Options{}, nil)
	cancel := runHub(t, h)
	srv := newTestServer(t, h)

	conn := dial(t, srv, "u1")
	readFrame(t, conn)
	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) ||
		strings.Contains(err.Error(), "close"), err.Error())
}

func TestCheckOrigin(t *testing.T) {
	h := NewHub(Options{AllowedOrigins: []string{"https://app.example.com"}}, nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, h.checkOrigin(r), "no Origin header (native clients)")

	r.Header.Set("Origin", "https://app.example.com")
	assert.True(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.checkOrigin(r))

	open := NewHub(Options{AllowedOrigins: []string{"*"}}, nil)
	assert.True(t, open.checkOrigin(r))
}
