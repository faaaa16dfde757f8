package wsrouter

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
)

func wsPair(t *testing.T, serve func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func TestServeConnRoutesMessages(t *testing.T) {
	type payload struct {
		Value string `json:"value"`
	}

	got := make(chan string, 1)
	router := New()
	Handle(router, "PING", func(ctx context.Context, conn *websocket.Conn, p payload) error {
		got <- p.Value
		return nil
	})

	client := wsPair(t, func(conn *websocket.Conn) {
		router.ServeConn(context.Background(), conn)
	})

	require.NoError(t, client.WriteJSON(map[string]any{"type": "PING", "payload": payload{Value: "hello"}}))

	select {
	case value := <-got:
		assert.Equal(t, "hello", value)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestServeConnClosesConnOnExit(t *testing.T) {
	router := New()

	conns := make(chan *websocket.Conn, 1)
	done := make(chan struct{})
	client := wsPair(t, func(conn *websocket.Conn) {
		conns <- conn
		router.ServeConn(context.Background(), conn)
		close(done)
	})

	serverConn := <-conns
	require.NoError(t, client.Close())
	<-done

	err := serverConn.WriteMessage(websocket.TextMessage, []byte("x"))
	assert.Error(t, err, "the serve loop must close its connection on exit")
}
