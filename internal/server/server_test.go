package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/livetodo/internal/client"
	"github.com/mesh-intelligence/livetodo/internal/rpc"
	"github.com/mesh-intelligence/livetodo/internal/sqlite"
	"github.com/mesh-intelligence/livetodo/pkg/types"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func setupBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()}))
	t.Cleanup(func() { _ = b.Detach() })
	return b
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestHealthEndpoints(t *testing.T) {
	b := setupBackend(t)
	s := New(b, b, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"ok"`)

	code, body = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"ready"`)

	require.NoError(t, b.Detach())
	code, body = get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "unavailable")
}

func TestReadinessWithoutPinger(t *testing.T) {
	s := New(setupBackend(t), nil, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, _ := get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusOK, code)
}

func TestMetricsEndpoint(t *testing.T) {
	b := setupBackend(t)
	s := New(b, b, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "livetodo_subscriptions_active")
}

func TestRemoteSubscriptionOverHTTP(t *testing.T) {
	b := setupBackend(t)
	s := New(b, b, Options{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx := context.Background()
	conn, err := rpc.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/rpc")
	require.NoError(t, err)
	defer conn.Close()

	c := client.New(conn)
	renders := make(chan []types.Todo, 8)
	unsubscribe, err := c.SubscribeTodos(ctx, func(todos []types.Todo) { renders <- todos })
	require.NoError(t, err)

	select {
	case todos := <-renders:
		assert.Empty(t, todos)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial render")
	}

	// A write made directly on the backend reaches the remote subscriber.
	_, err = b.AddTodo(ctx, "from the server side")
	require.NoError(t, err)
	select {
	case todos := <-renders:
		require.Len(t, todos, 1)
		assert.Equal(t, "from the server side", todos[0].Description)
	case <-time.After(2 * time.Second):
		t.Fatal("no change render")
	}

	require.NoError(t, unsubscribe(ctx))
	require.NoError(t, unsubscribe(ctx))
	assert.Equal(t, 0, b.Watches())
	assert.Equal(t, 1, s.Sessions())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	b := setupBackend(t)
	s := New(b, b, Options{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Serve(ctx, ln) }()

	url := "ws://" + ln.Addr().String() + "/rpc"
	conn, err := rpc.Dial(context.Background(), url)
	require.NoError(t, err)
	_, err = client.New(conn).Watch(context.Background(), types.TodosQuery, nil, func([]types.Row) {})
	require.NoError(t, err)
	require.Equal(t, 1, b.Watches())

	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	assert.Equal(t, 0, b.Watches())
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client connection still open")
	}
}
