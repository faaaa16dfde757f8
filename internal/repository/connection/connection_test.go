package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return <-conns, client
}

func TestConnectionSend(t *testing.T) {
	server, client := wsPair(t)

	conn := New("conn1", "user1", "room1", server)
	require.NoError(t, conn.Send(map[string]string{"type": "PING"}))

	var msg map[string]string
	require.NoError(t, client.ReadJSON(&msg))
	assert.Equal(t, "PING", msg["type"])
}

func TestCloseWithCodeSendsCloseFrame(t *testing.T) {
	server, client := wsPair(t)

	conn := New("conn1", "user1", "room1", server)
	conn.CloseWithCode(websocket.CloseNormalClosure, "left room")

	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, "left room", closeErr.Text)
}
