package controller

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/pkg/wsrouter"
)

func (c *controller) getWSRouter() *wsrouter.WSRouter {
	mux := wsrouter.New(c.writeError)

	mux.Handle("join_room", handlerOf(c.handleJoinRoom))
	mux.Handle("leave_room", handlerOf(c.handleLeaveRoom))
	mux.Handle("video_event", handlerOf(c.handleVideoEvent))
	mux.Handle("get_room_info", handlerOf(c.handleGetRoomInfo))
	mux.Handle("alive", handlerOf(c.handleAlive))

	return mux
}

// handlerOf adapts a typed event handler to the router's raw-payload shape.
// A payload that does not decode into the handler's input type is a protocol
// error, not a connection error.
func handlerOf[T any](h func(ctx context.Context, conn *websocket.Conn, input T) error) wsrouter.HandlerFunc {
	return func(ctx context.Context, conn *websocket.Conn, data json.RawMessage) error {
		var input T
		if len(data) > 0 {
			if err := json.Unmarshal(data, &input); err != nil {
				return wsrouter.ErrInvalidMessage
			}
		}

		return h(ctx, conn, input)
	}
}
