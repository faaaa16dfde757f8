package inmemory

import (
	"log/slog"
	"sync"

	"github.com/kinoroom/server/internal/repository/connection"
)

// repo holds the instance-local broadcast groups: room id -> set of
// attached connections. Mutated on connect/disconnect only.
type repo struct {
	logger *slog.Logger
	byId   map[string]*connection.Connection
	byRoom map[string]map[string]*connection.Connection
	mu     sync.RWMutex
}

func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		logger: logger,
		byId:   make(map[string]*connection.Connection),
		byRoom: make(map[string]map[string]*connection.Connection),
	}
}

func (r *repo) Add(conn *connection.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byId[conn.Id]; ok {
		return connection.ErrAlreadyExists
	}

	r.byId[conn.Id] = conn

	group, ok := r.byRoom[conn.RoomId]
	if !ok {
		group = make(map[string]*connection.Connection)
		r.byRoom[conn.RoomId] = group
	}
	group[conn.Id] = conn

	return nil
}

func (r *repo) Remove(connId string) (*connection.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.byId[connId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	delete(r.byId, connId)

	if group, ok := r.byRoom[conn.RoomId]; ok {
		delete(group, connId)
		if len(group) == 0 {
			delete(r.byRoom, conn.RoomId)
		}
	}

	return conn, nil
}

func (r *repo) Get(connId string) (*connection.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.byId[connId]
	if !ok {
		return nil, connection.ErrNotFound
	}

	return conn, nil
}

// GetByRoomId returns the room's local broadcast group.
func (r *repo) GetByRoomId(roomId string) []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.byRoom[roomId]
	conns := make([]*connection.Connection, 0, len(group))
	for _, conn := range group {
		conns = append(conns, conn)
	}

	return conns
}

// GetByUserId returns the user's connections within one room.
func (r *repo) GetByUserId(roomId, userId string) []*connection.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*connection.Connection, 0, 1)
	for _, conn := range r.byRoom[roomId] {
		if conn.UserId == userId {
			conns = append(conns, conn)
		}
	}

	return conns
}
