package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/repository/connection"
	roomRepo "github.com/watchsync/server/internal/repository/room"
	"github.com/watchsync/server/pkg/randstr"
)

var (
	ErrRoomNotFound          = errors.New("room not found")
	ErrNotInRoom             = errors.New("not in a room")
	ErrRoomFull              = errors.New("room is full")
	ErrUnknownVideoEventType = errors.New("unknown video event type")
)

type iRoomRepo interface {
	EnsureRoom(context.Context, *roomRepo.EnsureRoomParams) error
	GetRoom(context.Context, string) (roomRepo.Room, error)
	GetRoomIds(context.Context) ([]string, error)
	SetParticipant(context.Context, *roomRepo.SetParticipantParams) error
	RemoveParticipant(context.Context, *roomRepo.RemoveParticipantParams) (roomRepo.RemoveParticipantResult, error)
	GetParticipants(context.Context, string) ([]roomRepo.Participant, error)
	GetParticipantIds(context.Context, string) ([]string, error)
	GetParticipantCount(context.Context, string) (int, error)
	UpdateLastSeen(context.Context, *roomRepo.UpdateLastSeenParams) error
	GetVideoState(context.Context, string) (roomRepo.VideoState, error)
	UpdateVideoState(context.Context, *roomRepo.UpdateVideoStateParams) (roomRepo.VideoState, error)
}

// RoomRepo is the storage interface behind the registry; exported so the
// composition root can pick the in-memory or redis implementation.
type RoomRepo = iRoomRepo

type iConnRepo interface {
	Bind(*websocket.Conn, connection.Binding) error
	Unbind(*websocket.Conn) (connection.Binding, error)
	GetBinding(*websocket.Conn) (connection.Binding, error)
	GetConn(string) (*websocket.Conn, error)
	GetConns([]string) []*websocket.Conn
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type service struct {
	roomRepo     iRoomRepo
	connRepo     iConnRepo
	generator    iGenerator
	membersLimit int
	logger       *slog.Logger
}

// NewService builds the room service. membersLimit caps participants per room;
// zero means unlimited.
func NewService(roomRepo iRoomRepo, connRepo iConnRepo, membersLimit int, logger *slog.Logger) *service {
	letterBytes := []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	return &service{
		roomRepo:     roomRepo,
		connRepo:     connRepo,
		generator:    randstr.New(letterBytes),
		membersLimit: membersLimit,
		logger:       logger,
	}
}
