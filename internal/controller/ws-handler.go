package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/service/room"
	"github.com/watchsync/server/pkg/ctxlogger"
	"github.com/watchsync/server/pkg/wsrouter"
)

// Output is the outbound wire frame.
type Output struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type EmptyStruct struct{}

func (c *controller) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "upgrade failed", "error", err)
		return
	}

	ctx := ctxlogger.AppendCtx(context.Background(), slog.String("conn_id", uuid.NewString()))
	c.logger.InfoContext(ctx, "connection opened", "remote_addr", r.RemoteAddr)

	err = c.getWSRouter().ServeConn(ctx, conn)
	c.logger.InfoContext(ctx, "connection closed", "reason", err)

	// Implicit leave: the server holds no durable session for a dropped
	// connection.
	c.disconnect(ctx, conn)
	c.writeLocks.Delete(conn)
}

func (c *controller) disconnect(ctx context.Context, conn *websocket.Conn) {
	leaveResp, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{Conn: conn})
	if err != nil {
		if !errors.Is(err, room.ErrNotInRoom) {
			c.logger.WarnContext(ctx, "implicit leave failed", "error", err)
		}
		return
	}

	c.broadcast(ctx, leaveResp.Conns, &Output{
		Event: "user_left",
		Data: map[string]any{
			"userId":           leaveResp.UserId,
			"participantCount": leaveResp.ParticipantCount,
		},
	})
}

type JoinRoomInput struct {
	RoomId   string `json:"roomId" validate:"omitempty,max=32,alphanum"`
	UserId   string `json:"userId" validate:"required,max=128"`
	UserName string `json:"userName" validate:"omitempty,max=64"`
}

func (c *controller) handleJoinRoom(ctx context.Context, conn *websocket.Conn, input JoinRoomInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %s", ErrValidation, validationErrors[0].Message)
	}

	joinResp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		Conn:     conn,
		RoomId:   input.RoomId,
		UserId:   input.UserId,
		UserName: input.UserName,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}

	// The switch away from a previous room is announced there first.
	if joinResp.Left != nil {
		c.broadcast(ctx, joinResp.Left.Conns, &Output{
			Event: "user_left",
			Data: map[string]any{
				"userId":           joinResp.Left.UserId,
				"participantCount": joinResp.Left.ParticipantCount,
			},
		})
	}

	if err := c.writeToConn(ctx, conn, &Output{
		Event: "room_joined",
		Data: map[string]any{
			"roomId":       joinResp.RoomId,
			"participants": joinResp.Participants,
			"videoState":   joinResp.VideoState,
		},
	}); err != nil {
		return fmt.Errorf("failed to write to conn: %w", err)
	}

	c.broadcast(ctx, joinResp.Conns, &Output{
		Event: "user_joined",
		Data: map[string]any{
			"participant":      joinResp.Participant,
			"participantCount": joinResp.ParticipantCount,
		},
	})

	return nil
}

func (c *controller) handleLeaveRoom(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	leaveResp, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{Conn: conn})
	if err != nil {
		if errors.Is(err, room.ErrNotInRoom) {
			// Leaving while not in a room is a no-op.
			return nil
		}
		return fmt.Errorf("failed to leave room: %w", err)
	}

	c.broadcast(ctx, leaveResp.Conns, &Output{
		Event: "user_left",
		Data: map[string]any{
			"userId":           leaveResp.UserId,
			"participantCount": leaveResp.ParticipantCount,
		},
	})

	return nil
}

type VideoEventInput struct {
	Type        string  `json:"type" validate:"required"`
	CurrentTime float64 `json:"currentTime" validate:"gte=0"`
}

func (c *controller) handleVideoEvent(ctx context.Context, conn *websocket.Conn, input VideoEventInput) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %s", ErrValidation, validationErrors[0].Message)
	}

	applyResp, err := c.roomService.ApplyVideoEvent(ctx, &room.ApplyVideoEventParams{
		Conn:        conn,
		Type:        input.Type,
		CurrentTime: input.CurrentTime,
	})
	if err != nil {
		return fmt.Errorf("failed to apply video event: %w", err)
	}

	c.broadcast(ctx, applyResp.Conns, &Output{
		Event: "sync_video",
		Data: map[string]any{
			"type":        applyResp.Type,
			"currentTime": applyResp.CurrentTime,
			"timestamp":   applyResp.Timestamp,
			"userId":      applyResp.UserId,
		},
	})

	return nil
}

type GetRoomInfoInput struct {
	RoomId string `json:"roomId"`
}

func (c *controller) handleGetRoomInfo(ctx context.Context, conn *websocket.Conn, input GetRoomInfoInput) error {
	infoResp, err := c.roomService.GetRoomInfo(ctx, &room.GetRoomInfoParams{RoomId: input.RoomId})
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			return c.writeToConn(ctx, conn, &Output{Event: "room_info", Data: nil})
		}
		return fmt.Errorf("failed to get room info: %w", err)
	}

	return c.writeToConn(ctx, conn, &Output{Event: "room_info", Data: infoResp})
}

func (c *controller) handleAlive(ctx context.Context, conn *websocket.Conn, input EmptyStruct) error {
	if err := c.roomService.Alive(ctx, &room.AliveParams{Conn: conn}); err != nil {
		if errors.Is(err, room.ErrNotInRoom) {
			return nil
		}
		return fmt.Errorf("failed to refresh last seen: %w", err)
	}

	return nil
}

func (c *controller) writeToConn(ctx context.Context, conn *websocket.Conn, output *Output) error {
	if output.Timestamp == 0 {
		output.Timestamp = time.Now().UnixMilli()
	}

	lock, _ := c.writeLocks.LoadOrStore(conn, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	return conn.WriteJSON(output)
}

// broadcast delivers output to every connection, best effort: a recipient
// mid-teardown is logged and skipped, never aborts delivery to the rest.
func (c *controller) broadcast(ctx context.Context, conns []*websocket.Conn, output *Output) {
	for _, conn := range conns {
		if err := c.writeToConn(ctx, conn, output); err != nil {
			c.logger.DebugContext(ctx, "broadcast delivery skipped", "event", output.Event, "error", err)
		}
	}
}

func (c *controller) writeError(ctx context.Context, conn *websocket.Conn, err error) {
	message := "internal server error"
	switch {
	case errors.Is(err, wsrouter.ErrInvalidMessage):
		message = "Invalid message format"
	case errors.Is(err, wsrouter.ErrUnknownEvent):
		message = "Unknown event type"
	case errors.Is(err, room.ErrNotInRoom):
		message = "Not in a room"
	case errors.Is(err, room.ErrRoomNotFound):
		message = "Room not found"
	case errors.Is(err, room.ErrRoomFull):
		message = "Room is full"
	case errors.Is(err, room.ErrUnknownVideoEventType):
		message = "Unknown video event type"
	case errors.Is(err, ErrValidation):
		message = err.Error()
	}

	c.logger.InfoContext(ctx, "client error", "error", err)

	if err := c.writeToConn(ctx, conn, &Output{
		Event: "error",
		Data:  map[string]any{"message": message},
	}); err != nil {
		c.logger.DebugContext(ctx, "failed to write error", "error", err)
	}
}
