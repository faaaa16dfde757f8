package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrAlreadyExists = errors.New("connection already exists")
	ErrNotFound      = errors.New("connection not found")
)

// Connection is the per-socket state of one attached client. It never
// outlives the process. LastBeep and LastScream are owned exclusively
// by the connection's own handler goroutine and need no locking.
type Connection struct {
	Id         string
	UserId     string
	RoomId     string
	LastBeep   time.Time
	LastScream time.Time

	conn    *websocket.Conn
	writeMu sync.Mutex
}

func New(id, userId, roomId string, conn *websocket.Conn) *Connection {
	return &Connection{
		Id:     id,
		UserId: userId,
		RoomId: roomId,
		conn:   conn,
	}
}

// Send writes one JSON message. Pushes reach a connection from many
// goroutines (its own handler, other handlers, relay consumers), and
// gorilla allows a single concurrent writer.
func (c *Connection) Send(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteJSON(v)
}

// CloseWithCode writes a close control frame and closes the socket.
func (c *Connection) CloseWithCode(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(5*time.Second))
	c.conn.Close()
}
