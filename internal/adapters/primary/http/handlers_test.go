package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/primary/realtime"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/security"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/services"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/metrics"
)

type testEnv struct {
	srv   *httptest.Server
	store *repository.MemoryStore
	hub   *realtime.Hub
	key   *rsa.PrivateKey
}

func newEnv(t *testing.T, authRateLimit int) *testEnv {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := repository.NewMemoryStore()
	hub := realtime.NewHub(realtime.Options{}, m)
	tokens := security.NewJWTProviderFromKey(key, &key.PublicKey, security.WithTTL(time.Hour))

	identity := services.NewIdentityService(store, store, security.NewArgon2Hasher(security.FastParams), tokens)
	graph := services.NewGraphService(store, store, hub, services.DefaultRetryPolicy, m)
	engagement := services.NewEngagementService(store, store, hub, m)

	router := NewRouter(NewHandler(identity, graph, engagement, hub), identity, RouterConfig{
		ServiceName:    "social-test",
		AllowedOrigins: []string{"*"},
		AuthRateLimit:  authRateLimit,
		Gatherer:       reg,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return &testEnv{srv: srv, store: store, hub: hub, key: key}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// register renvoie (accountID, token).
func (e *testEnv) register(t *testing.T, handle string) (string, string) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"handle":   handle,
		"contact":  handle + "@example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, status, body)
	account := body["account"].(map[string]any)
	return account["id"].(string), body["token"].(string)
}

func errorKind(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	kind, _ := e["kind"].(string)
	return kind
}

func TestRegisterAndLogin(t *testing.T) {
	env := newEnv(t, 0)

	status, body := env.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"handle": "alice", "contact": "alice@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["token"])
	assert.EqualValues(t, 3600, body["expiresIn"])
	account := body["account"].(map[string]any)
	assert.Equal(t, "alice", account["handle"])
	assert.Equal(t, "alice@example.com", account["contact"])

	status, body = env.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"handle": "alice", "contact": "other@example.com", "password": "correct horse",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, KindHandleTaken, errorKind(body))

	status, body = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "alice", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 3600, body["expiresIn"])

	status, body = env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"identifier": "alice", "password": "wrong password",
	})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, KindInvalidCredentials, errorKind(body))
}

func TestRegister_InvalidBodies(t *testing.T) {
	env := newEnv(t, 0)

	for name, body := range map[string]any{
		"empty":         "",
		"malformed":     "{",
		"unknown field": `{"handle":"alice","contact":"alice@example.com","password":"correct horse","admin":true}`,
		"bad email":     map[string]string{"handle": "alice", "contact": "nope", "password": "correct horse"},
		"short pass":    map[string]string{"handle": "alice", "contact": "alice@example.com", "password": "short"},
		"bad handle":    map[string]string{"handle": "al ice!", "contact": "alice@example.com", "password": "correct horse"},
	} {
		t.Run(name, func(t *testing.T) {
			status, resp := env.do(t, http.MethodPost, "/v1/auth/register", "", body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, KindInvalidRequest, errorKind(resp))
		})
	}
}

func TestFollow_RequiresAuth(t *testing.T) {
	env := newEnv(t, 0)
	u1, _ := env.register(t, "alice")
	u2, _ := env.register(t, "bob")

	status, body := env.do(t, http.MethodPost, "/v1/accounts/"+u2+"/follow", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, KindAuthMissing, errorKind(body))

	status, body = env.do(t, http.MethodPost, "/v1/accounts/"+u2+"/follow", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, KindAuthInvalid, errorKind(body))

	past := security.NewJWTProviderFromKey(env.key, &env.key.PublicKey, security.WithTTL(time.Minute),
		security.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
	expired, _, err := past.Issue(u1)
	require.NoError(t, err)
	status, body = env.do(t, http.MethodPost, "/v1/accounts/"+u2+"/follow", expired, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, KindAuthExpired, errorKind(body))

	rel, err := env.store.Relations(context.Background(), u2)
	require.NoError(t, err)
	assert.Empty(t, rel.Followers, "rejected requests never mutate")
}

func TestFollowUnfollow(t *testing.T) {
	env := newEnv(t, 0)
	u1, tok1 := env.register(t, "alice")
	u2, _ := env.register(t, "bob")

	status, body := env.do(t, http.MethodPost, "/v1/accounts/"+u2+"/follow", tok1, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, u1, body["actorId"])
	assert.Equal(t, u2, body["targetId"])
	assert.Equal(t, true, body["following"])

	status, body = env.do(t, http.MethodGet, "/v1/accounts/"+u2, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{u1}, body["followers"])
	assert.EqualValues(t, 1, body["followerCount"])
	assert.NotContains(t, body, "contact")

	status, body = env.do(t, http.MethodGet, "/v1/me", tok1, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{u2}, body["following"])

	status, body = env.do(t, http.MethodDelete, "/v1/accounts/"+u2+"/follow", tok1, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["following"])

	status, body = env.do(t, http.MethodPost, "/v1/accounts/"+u1+"/follow", tok1, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, KindSelfReference, errorKind(body))

	status, body = env.do(t, http.MethodPost, "/v1/accounts/ghost/follow", tok1, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, KindAccountNotFound, errorKind(body))
}

func TestContentAndLikes(t *testing.T) {
	env := newEnv(t, 0)
	owner, tokOwner := env.register(t, "owner")
	_, tokFan := env.register(t, "fan")

	status, body := env.do(t, http.MethodPost, "/v1/content", tokOwner, map[string]string{
		"mediaUrl": "https://cdn.example.com/v/1.mp4", "caption": "hello",
	})
	require.Equal(t, http.StatusCreated, status, body)
	contentID := body["id"].(string)
	assert.Equal(t, owner, body["ownerId"])
	assert.EqualValues(t, 0, body["likeCount"])

	status, body = env.do(t, http.MethodPost, "/v1/content/"+contentID+"/like", tokFan, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["liked"])
	assert.EqualValues(t, 1, body["count"])

	status, body = env.do(t, http.MethodGet, "/v1/content/"+contentID, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 1, body["likeCount"])

	status, body = env.do(t, http.MethodPost, "/v1/content/"+contentID+"/like", tokFan, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["liked"])
	assert.EqualValues(t, 0, body["count"])

	status, body = env.do(t, http.MethodPost, "/v1/content/missing/like", tokFan, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, KindContentNotFound, errorKind(body))

	status, body = env.do(t, http.MethodPost, "/v1/content", tokOwner, map[string]string{"mediaUrl": "ftp://x"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, KindInvalidRequest, errorKind(body))
}

func dialWS(t *testing.T, env *testEnv, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/ws?access_token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	require.Equal(t, realtime.FrameSubscribed, frame["type"])
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocket_RejectsUnauthenticatedHandshake(t *testing.T) {
	env := newEnv(t, 0)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?access_token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// Scénario de bout en bout : u1 suit u2, u2 poste c1, u1 like c1.
func TestEndToEnd_FollowAndLikeNotifications(t *testing.T) {
	env := newEnv(t, 0)
	u1, tok1 := env.register(t, "u1_user")
	u2, tok2 := env.register(t, "u2_user")
	_, tok3 := env.register(t, "u3_user")

	ws1 := dialWS(t, env, tok1)
	ws2 := dialWS(t, env, tok2)
	ws3 := dialWS(t, env, tok3)

	status, _ := env.do(t, http.MethodPost, "/v1/accounts/"+u2+"/follow", tok1, nil)
	require.Equal(t, http.StatusOK, status)

	for _, conn := range []*websocket.Conn{ws1, ws2} {
		ev := readEvent(t, conn)
		assert.Equal(t, "FollowChanged", ev["kind"])
		assert.Equal(t, u1, ev["subjectAccountId"])
		assert.Equal(t, u2, ev["targetId"])
	}

	status, body := env.do(t, http.MethodPost, "/v1/content", tok2, map[string]string{"mediaUrl": "https://cdn.example.com/c1.mp4"})
	require.Equal(t, http.StatusCreated, status)
	c1 := body["id"].(string)

	status, _ = env.do(t, http.MethodPost, "/v1/content/"+c1+"/like", tok1, nil)
	require.Equal(t, http.StatusOK, status)

	ev := readEvent(t, ws2)
	assert.Equal(t, "LikeChanged", ev["kind"])
	assert.Equal(t, c1, ev["targetId"])
	state := ev["resultingState"].(map[string]any)
	assert.Equal(t, true, state["liked"])
	assert.EqualValues(t, 1, state["likeCount"])

	// u3 n'est concerné par rien ; u1 ne reçoit pas le like (il n'est pas propriétaire)
	for _, conn := range []*websocket.Conn{ws1, ws3} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t, 0)

	status, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	_, tok := env.register(t, "alice")
	u2, _ := env.register(t, "bob")
	status, _ = env.do(t, http.MethodPost, "/v1/accounts/"+u2+"/follow", tok, nil)
	require.Equal(t, http.StatusOK, status)

	resp, err := env.srv.Client().Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `social_events_published_total{kind="FollowChanged"} 1`)
}

func TestAuthRateLimit(t *testing.T) {
	env := newEnv(t, 2)
	login := map[string]string{"identifier": "nobody", "password": "whatever1"}

	for i := 0; i < 2; i++ {
		status, _ := env.do(t, http.MethodPost, "/v1/auth/login", "", login)
		assert.Equal(t, http.StatusUnauthorized, status)
	}
	status, body := env.do(t, http.MethodPost, "/v1/auth/login", "", login)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, KindRateLimited, errorKind(body))
}
