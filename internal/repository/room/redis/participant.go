package redis

import (
	"context"
	"fmt"

	"github.com/watchsync/server/internal/repository/room"
)

func (r repo) SetParticipant(ctx context.Context, params *room.SetParticipantParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	exists, err := r.rc.SIsMember(ctx, r.getRoomSetKey(), params.RoomId).Result()
	if err != nil {
		return fmt.Errorf("failed to set participant: %w", err)
	}
	if !exists {
		return room.ErrRoomNotFound
	}

	participant := room.Participant{
		Id:       params.ParticipantId,
		UserId:   params.UserId,
		Name:     params.Name,
		JoinedAt: params.JoinedAt,
		LastSeen: params.LastSeen,
	}

	pipe := r.rc.TxPipeline()
	pipe.HSet(ctx, r.getParticipantKey(params.RoomId, params.ParticipantId), participant)
	r.addWithIncrement(ctx, pipe, r.getParticipantListKey(params.RoomId), params.ParticipantId)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set participant: %w", err)
	}

	return nil
}

func (r repo) RemoveParticipant(ctx context.Context, params *room.RemoveParticipantParams) (room.RemoveParticipantResult, error) {
	r.logger.DebugContext(ctx, "called", "params", params)

	removed, err := r.rc.ZRem(ctx, r.getParticipantListKey(params.RoomId), params.ParticipantId).Result()
	if err != nil {
		return room.RemoveParticipantResult{}, fmt.Errorf("failed to remove participant: %w", err)
	}
	if removed == 0 {
		return room.RemoveParticipantResult{}, room.ErrParticipantNotFound
	}

	if err := r.rc.Del(ctx, r.getParticipantKey(params.RoomId, params.ParticipantId)).Err(); err != nil {
		return room.RemoveParticipantResult{}, fmt.Errorf("failed to remove participant: %w", err)
	}

	remaining, err := r.rc.ZCard(ctx, r.getParticipantListKey(params.RoomId)).Result()
	if err != nil {
		return room.RemoveParticipantResult{}, fmt.Errorf("failed to count participants: %w", err)
	}

	result := room.RemoveParticipantResult{Remaining: int(remaining)}
	if remaining == 0 {
		if err := r.removeRoom(ctx, params.RoomId); err != nil {
			return room.RemoveParticipantResult{}, err
		}
		result.RoomDeleted = true
	}

	return result, nil
}

func (r repo) GetParticipants(ctx context.Context, roomId string) ([]room.Participant, error) {
	participantIds, err := r.getParticipantIds(ctx, roomId)
	if err != nil {
		return nil, err
	}

	participants := make([]room.Participant, 0, len(participantIds))
	for _, participantId := range participantIds {
		var participant room.Participant
		if err := r.rc.HGetAll(ctx, r.getParticipantKey(roomId, participantId)).Scan(&participant); err != nil {
			return nil, fmt.Errorf("failed to get participant: %w", err)
		}
		if participant.Id == "" {
			continue
		}
		participants = append(participants, participant)
	}

	return participants, nil
}

func (r repo) getParticipantIds(ctx context.Context, roomId string) ([]string, error) {
	exists, err := r.rc.SIsMember(ctx, r.getRoomSetKey(), roomId).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get participant ids: %w", err)
	}
	if !exists {
		return nil, room.ErrRoomNotFound
	}

	participantIds, err := r.rc.ZRange(ctx, r.getParticipantListKey(roomId), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get participant ids: %w", err)
	}

	return participantIds, nil
}

func (r repo) GetParticipantIds(ctx context.Context, roomId string) ([]string, error) {
	return r.getParticipantIds(ctx, roomId)
}

func (r repo) GetParticipantCount(ctx context.Context, roomId string) (int, error) {
	exists, err := r.rc.SIsMember(ctx, r.getRoomSetKey(), roomId).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get participant count: %w", err)
	}
	if !exists {
		return 0, room.ErrRoomNotFound
	}

	count, err := r.rc.ZCard(ctx, r.getParticipantListKey(roomId)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get participant count: %w", err)
	}

	return int(count), nil
}

func (r repo) UpdateLastSeen(ctx context.Context, params *room.UpdateLastSeenParams) error {
	key := r.getParticipantKey(params.RoomId, params.ParticipantId)
	cmd := r.rc.Exists(ctx, key)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	if cmd.Val() == 0 {
		return room.ErrParticipantNotFound
	}

	if err := r.rc.HSet(ctx, key, "last_seen", params.LastSeen).Err(); err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}

	return nil
}
