package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/service/room"
	"github.com/watchsync/server/pkg/validator"
)

var ErrValidation = errors.New("validation error")

type iRoomService interface {
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	ApplyVideoEvent(context.Context, *room.ApplyVideoEventParams) (room.ApplyVideoEventResponse, error)
	GetRoomInfo(context.Context, *room.GetRoomInfoParams) (room.GetRoomInfoResponse, error)
	Alive(context.Context, *room.AliveParams) error
	ListRooms(context.Context) ([]room.RoomSummary, error)
	GetStats(context.Context) (room.Stats, error)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger

	// writeLocks serializes writes per connection: broadcasts triggered by one
	// participant's handler run concurrently with the recipient's own handler.
	writeLocks sync.Map // *websocket.Conn -> *sync.Mutex
}

func NewController(roomService iRoomService, logger *slog.Logger) *controller {
	return &controller{
		roomService: roomService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate: validator.NewValidator(),
		logger:   logger,
	}
}
