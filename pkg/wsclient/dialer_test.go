package wsclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestReceivesMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))
		// Hold the connection open until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	var mu sync.Mutex
	var received []string
	client := New(Config{URL: wsURL(server)}, func(data []byte) {
		mu.Lock()
		received = append(received, string(data))
		mu.Unlock()
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, `{"type":"ping"}`, received[0])
	mu.Unlock()

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestSendsBearerToken(t *testing.T) {
	gotAuth := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn.Close()
	}))
	defer server.Close()

	client := New(Config{URL: wsURL(server), Token: "tok-123", MaxRetries: 1}, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go client.Run(ctx)

	select {
	case auth := <-gotAuth:
		assert.Equal(t, "Bearer tok-123", auth)
	case <-ctx.Done():
		t.Fatal("server never saw the handshake")
	}
}

func TestGivesUpAfterRetryCeiling(t *testing.T) {
	// A refused port: the server is created and closed immediately
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := wsURL(server)
	server.Close()

	client := New(Config{
		URL:            url,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}, nil, zap.NewNop())

	err := client.Run(context.Background())
	require.ErrorIs(t, err, ErrRetriesExhausted)
}

func TestReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	connections := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)

		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		if n == 1 {
			// Drop the first connection straight away
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	client := New(Config{
		URL:            wsURL(server),
		InitialBackoff: time.Millisecond,
	}, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connections >= 2
	}, 2*time.Second, 10*time.Millisecond)
}
