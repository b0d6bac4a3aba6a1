package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/repository/connection"
	roomRepo "github.com/watchsync/server/internal/repository/room"
)

type JoinRoomParams struct {
	Conn     *websocket.Conn
	RoomId   string
	UserId   string
	UserName string
}

type JoinRoomResponse struct {
	RoomId           string
	Participant      Participant
	Participants     []Participant
	VideoState       VideoState
	ParticipantCount int
	// Conns are the other participants' connections, for the user_joined
	// broadcast.
	Conns []*websocket.Conn
	// Left is set when this join implicitly left another room first.
	Left *LeaveRoomResponse
}

// JoinRoom creates the room if needed and inserts a participant keyed by a
// fresh connection id. A connection that is already bound elsewhere switches
// rooms: implicit leave, then join.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	binding, bindErr := s.connRepo.GetBinding(params.Conn)

	roomId := params.RoomId
	if roomId == "" {
		roomId = s.generateRoomId()
	}

	// The limit is checked before the implicit leave so a rejected switch
	// leaves the caller's current membership untouched. The check-then-insert
	// is not atomic across connections; a race can briefly overshoot the
	// limit, which is tolerated.
	if s.membersLimit > 0 {
		count, err := s.roomRepo.GetParticipantCount(ctx, roomId)
		if err != nil && !errors.Is(err, roomRepo.ErrRoomNotFound) {
			return JoinRoomResponse{}, fmt.Errorf("failed to check members limit: %w", err)
		}
		if bindErr == nil && binding.RoomId == roomId {
			// Rejoining the current room replaces a seat instead of taking one.
			count--
		}
		if count >= s.membersLimit {
			return JoinRoomResponse{}, ErrRoomFull
		}
	}

	var left *LeaveRoomResponse
	if bindErr == nil {
		leftResp, err := s.LeaveRoom(ctx, &LeaveRoomParams{Conn: params.Conn})
		if err != nil {
			return JoinRoomResponse{}, fmt.Errorf("failed to switch rooms: %w", err)
		}
		left = &leftResp
	}

	now := time.Now().UnixMilli()
	if err := s.roomRepo.EnsureRoom(ctx, &roomRepo.EnsureRoomParams{
		RoomId:    roomId,
		CreatedAt: now,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to ensure room: %w", err)
	}

	connId := uuid.NewString()
	if err := s.roomRepo.SetParticipant(ctx, &roomRepo.SetParticipantParams{
		ParticipantId: connId,
		UserId:        params.UserId,
		Name:          defaultDisplayName(params.UserId, params.UserName),
		JoinedAt:      now,
		LastSeen:      now,
		RoomId:        roomId,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to set participant: %w", err)
	}

	if err := s.connRepo.Bind(params.Conn, connection.Binding{
		ConnId: connId,
		RoomId: roomId,
		UserId: params.UserId,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to bind connection: %w", err)
	}

	participants, err := s.roomRepo.GetParticipants(ctx, roomId)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	videoState, err := s.roomRepo.GetVideoState(ctx, roomId)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get video state: %w", err)
	}

	var joined Participant
	for _, p := range participants {
		if p.Id == connId {
			joined = toParticipant(p)
			break
		}
	}

	s.logger.InfoContext(ctx, "user joined room", "room_id", roomId, "user_id", params.UserId)

	return JoinRoomResponse{
		RoomId:           roomId,
		Participant:      joined,
		Participants:     toParticipants(participants),
		VideoState:       toVideoState(videoState),
		ParticipantCount: len(participants),
		Conns:            s.otherConns(ctx, roomId, connId),
		Left:             left,
	}, nil
}

type LeaveRoomParams struct {
	Conn *websocket.Conn
}

type LeaveRoomResponse struct {
	RoomId           string
	UserId           string
	ParticipantCount int
	RoomDeleted      bool
	// Conns are the remaining participants' connections, for the user_left
	// broadcast.
	Conns []*websocket.Conn
}

// LeaveRoom unbinds the connection and removes its participant. The room is
// deleted when its last participant leaves. Returns ErrNotInRoom for an
// unbound connection.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	binding, err := s.connRepo.Unbind(params.Conn)
	if err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return LeaveRoomResponse{}, ErrNotInRoom
		}
		return LeaveRoomResponse{}, fmt.Errorf("failed to unbind connection: %w", err)
	}

	result, err := s.roomRepo.RemoveParticipant(ctx, &roomRepo.RemoveParticipantParams{
		ParticipantId: binding.ConnId,
		RoomId:        binding.RoomId,
	})
	if err != nil {
		return LeaveRoomResponse{}, fmt.Errorf("failed to remove participant: %w", err)
	}

	resp := LeaveRoomResponse{
		RoomId:           binding.RoomId,
		UserId:           binding.UserId,
		ParticipantCount: result.Remaining,
		RoomDeleted:      result.RoomDeleted,
	}
	if !result.RoomDeleted {
		resp.Conns = s.otherConns(ctx, binding.RoomId, binding.ConnId)
	}

	s.logger.InfoContext(ctx, "user left room", "room_id", binding.RoomId, "user_id", binding.UserId, "room_deleted", result.RoomDeleted)

	return resp, nil
}

type GetRoomInfoParams struct {
	RoomId string
}

type GetRoomInfoResponse struct {
	RoomId           string        `json:"roomId"`
	ParticipantCount int           `json:"participantCount"`
	Participants     []Participant `json:"participants"`
	VideoState       VideoState    `json:"videoState"`
}

func (s service) GetRoomInfo(ctx context.Context, params *GetRoomInfoParams) (GetRoomInfoResponse, error) {
	r, err := s.roomRepo.GetRoom(ctx, params.RoomId)
	if err != nil {
		if errors.Is(err, roomRepo.ErrRoomNotFound) {
			return GetRoomInfoResponse{}, ErrRoomNotFound
		}
		return GetRoomInfoResponse{}, fmt.Errorf("failed to get room: %w", err)
	}

	participants, err := s.roomRepo.GetParticipants(ctx, params.RoomId)
	if err != nil {
		return GetRoomInfoResponse{}, fmt.Errorf("failed to get participants: %w", err)
	}

	return GetRoomInfoResponse{
		RoomId:           params.RoomId,
		ParticipantCount: len(participants),
		Participants:     toParticipants(participants),
		VideoState:       toVideoState(r.VideoState),
	}, nil
}

type AliveParams struct {
	Conn *websocket.Conn
}

// Alive refreshes the participant's lastSeen stamp.
func (s service) Alive(ctx context.Context, params *AliveParams) error {
	binding, err := s.connRepo.GetBinding(params.Conn)
	if err != nil {
		return ErrNotInRoom
	}

	if err := s.roomRepo.UpdateLastSeen(ctx, &roomRepo.UpdateLastSeenParams{
		ParticipantId: binding.ConnId,
		RoomId:        binding.RoomId,
		LastSeen:      time.Now().UnixMilli(),
	}); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return nil
}

func (s service) ListRooms(ctx context.Context) ([]RoomSummary, error) {
	roomIds, err := s.roomRepo.GetRoomIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	summaries := make([]RoomSummary, 0, len(roomIds))
	for _, roomId := range roomIds {
		r, err := s.roomRepo.GetRoom(ctx, roomId)
		if err != nil {
			// The room may be deleted between listing and reading.
			continue
		}
		count, err := s.roomRepo.GetParticipantCount(ctx, roomId)
		if err != nil {
			continue
		}

		summaries = append(summaries, RoomSummary{
			Id:               roomId,
			ParticipantCount: count,
			CreatedAt:        r.CreatedAt,
			VideoState:       toVideoState(r.VideoState),
		})
	}

	return summaries, nil
}

func (s service) GetStats(ctx context.Context) (Stats, error) {
	roomIds, err := s.roomRepo.GetRoomIds(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to get stats: %w", err)
	}

	stats := Stats{Rooms: len(roomIds)}
	for _, roomId := range roomIds {
		count, err := s.roomRepo.GetParticipantCount(ctx, roomId)
		if err != nil {
			continue
		}
		stats.TotalUsers += count
	}

	return stats, nil
}

// otherConns resolves the room's live connections excluding the given one.
// Lookup failures mean the room vanished mid-flight; broadcast to nobody.
func (s service) otherConns(ctx context.Context, roomId, excludeConnId string) []*websocket.Conn {
	participantIds, err := s.roomRepo.GetParticipantIds(ctx, roomId)
	if err != nil {
		return nil
	}

	others := make([]string, 0, len(participantIds))
	for _, id := range participantIds {
		if id != excludeConnId {
			others = append(others, id)
		}
	}

	return s.connRepo.GetConns(others)
}
