package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	roomRepo "github.com/watchsync/server/internal/repository/room"
)

const (
	VideoEventPlay  = "play"
	VideoEventPause = "pause"
	VideoEventSeek  = "seek"
)

type ApplyVideoEventParams struct {
	Conn        *websocket.Conn
	Type        string
	CurrentTime float64
}

type ApplyVideoEventResponse struct {
	RoomId      string
	UserId      string
	Type        string
	CurrentTime float64
	Timestamp   int64
	VideoState  VideoState
	// Conns are the other participants' connections; the sender is excluded
	// so its own action never echoes back.
	Conns []*websocket.Conn
}

// ApplyVideoEvent folds a play/pause/seek event into the room's shared video
// state (last-write-wins) and resolves the broadcast fan-out. Events from
// unbound connections are rejected with ErrNotInRoom so the client can tell
// "not in a room" apart from an accepted event.
func (s service) ApplyVideoEvent(ctx context.Context, params *ApplyVideoEventParams) (ApplyVideoEventResponse, error) {
	binding, err := s.connRepo.GetBinding(params.Conn)
	if err != nil {
		return ApplyVideoEventResponse{}, ErrNotInRoom
	}

	var isPlaying *bool
	switch params.Type {
	case VideoEventPlay:
		playing := true
		isPlaying = &playing
	case VideoEventPause:
		playing := false
		isPlaying = &playing
	case VideoEventSeek:
		// Seek only moves the position.
	default:
		return ApplyVideoEventResponse{}, ErrUnknownVideoEventType
	}

	now := time.Now().UnixMilli()
	videoState, err := s.roomRepo.UpdateVideoState(ctx, &roomRepo.UpdateVideoStateParams{
		RoomId:      binding.RoomId,
		IsPlaying:   isPlaying,
		CurrentTime: params.CurrentTime,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, roomRepo.ErrRoomNotFound) {
			return ApplyVideoEventResponse{}, ErrRoomNotFound
		}
		return ApplyVideoEventResponse{}, fmt.Errorf("failed to update video state: %w", err)
	}

	s.logger.DebugContext(ctx, "video event applied",
		"room_id", binding.RoomId,
		"user_id", binding.UserId,
		"type", params.Type,
		"current_time", params.CurrentTime,
	)

	return ApplyVideoEventResponse{
		RoomId:      binding.RoomId,
		UserId:      binding.UserId,
		Type:        params.Type,
		CurrentTime: params.CurrentTime,
		Timestamp:   now,
		VideoState:  toVideoState(videoState),
		Conns:       s.otherConns(ctx, binding.RoomId, binding.ConnId),
	}, nil
}
