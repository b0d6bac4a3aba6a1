package wsrouter

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gorilla/websocket"
)

var (
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrInvalidMessage = errors.New("invalid message format")
)

// Envelope is the inbound wire frame: an event name plus an opaque payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type HandlerFunc func(ctx context.Context, conn *websocket.Conn, data json.RawMessage) error

// ErrorFunc is called with every handler error, including ErrUnknownEvent and
// ErrInvalidMessage. The connection stays open afterwards.
type ErrorFunc func(ctx context.Context, conn *websocket.Conn, err error)

type WSRouter struct {
	routes  map[string]HandlerFunc
	onError ErrorFunc
}

func New(onError ErrorFunc) *WSRouter {
	return &WSRouter{
		routes:  make(map[string]HandlerFunc),
		onError: onError,
	}
}

func (r *WSRouter) Handle(event string, handler HandlerFunc) {
	r.routes[event] = handler
}

// ServeConn reads envelopes from conn until the connection fails and routes
// each to its handler. Malformed or unknown messages are reported through the
// error callback and never terminate the loop.
func (r *WSRouter) ServeConn(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg Envelope
		if err := json.Unmarshal(raw, &msg); err != nil {
			r.reportError(ctx, conn, ErrInvalidMessage)
			continue
		}

		handler, exists := r.routes[msg.Event]
		if !exists {
			r.reportError(ctx, conn, ErrUnknownEvent)
			continue
		}

		if err := handler(ctx, conn, msg.Data); err != nil {
			r.reportError(ctx, conn, err)
		}
	}
}

func (r *WSRouter) reportError(ctx context.Context, conn *websocket.Conn, err error) {
	if r.onError != nil {
		r.onError(ctx, conn, err)
	}
}
