package wsrouter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// HandlerFunc handles a decoded inbound message.
type HandlerFunc[T any] func(ctx context.Context, conn *websocket.Conn, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

// ErrorFunc is invoked when a handler returns an error. The connection
// stays open; the func decides what, if anything, to write back.
type ErrorFunc func(ctx context.Context, conn *websocket.Conn, err error)

type Router struct {
	routes      map[string]HandlerFunc[any]
	middlewares []Middleware
	onError     ErrorFunc
}

func New() *Router {
	return &Router{routes: make(map[string]HandlerFunc[any])}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) OnError(f ErrorFunc) {
	r.onError = f
}

// Handle registers a typed handler for a message type. The payload is
// unmarshalled into T before the handler runs.
func Handle[T any](r *Router, messageType string, handler HandlerFunc[T]) {
	r.routes[messageType] = func(ctx context.Context, conn *websocket.Conn, payload any) error {
		raw, _ := payload.(json.RawMessage)

		var input T
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		return handler(ctx, conn, input)
	}
}

// ServeConn reads messages from the connection until the read fails,
// routing each one to the registered handler. Handler errors go to the
// OnError func and never terminate the loop. The connection is closed
// when the loop exits.
func (r *Router) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		handler, ok := r.routes[msg.Type]
		if !ok {
			if r.onError != nil {
				r.onError(ctx, conn, fmt.Errorf("unknown message type: %s", msg.Type))
			}
			continue
		}

		msgCtx := context.WithValue(ctx, messageTypeKey, msg.Type)

		wrapped := handler
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			wrapped = r.middlewares[i](wrapped)
		}

		if err := wrapped(msgCtx, conn, json.RawMessage(msg.Payload)); err != nil {
			if r.onError != nil {
				r.onError(msgCtx, conn, err)
			}
		}
	}
}
