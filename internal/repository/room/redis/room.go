package redis

import (
	"context"
	"fmt"

	"github.com/watchsync/server/internal/repository/room"
)

func (r repo) EnsureRoom(ctx context.Context, params *room.EnsureRoomParams) error {
	r.logger.DebugContext(ctx, "called", "params", params)

	added, err := r.rc.SAdd(ctx, r.getRoomSetKey(), params.RoomId).Result()
	if err != nil {
		return fmt.Errorf("failed to ensure room: %w", err)
	}

	if added == 0 {
		return nil
	}

	if err := r.rc.HSet(ctx, r.getRoomKey(params.RoomId),
		"created_at", params.CreatedAt,
		"is_playing", false,
		"current_time", 0,
		"last_update", params.CreatedAt,
	).Err(); err != nil {
		return fmt.Errorf("failed to set room defaults: %w", err)
	}

	return nil
}

func (r repo) GetRoom(ctx context.Context, roomId string) (room.Room, error) {
	exists, err := r.rc.SIsMember(ctx, r.getRoomSetKey(), roomId).Result()
	if err != nil {
		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}
	if !exists {
		return room.Room{}, room.ErrRoomNotFound
	}

	createdAt, err := r.rc.HGet(ctx, r.getRoomKey(roomId), "created_at").Int64()
	if err != nil {
		return room.Room{}, fmt.Errorf("failed to get room created_at: %w", err)
	}

	videoState, err := r.GetVideoState(ctx, roomId)
	if err != nil {
		return room.Room{}, err
	}

	return room.Room{
		Id:         roomId,
		CreatedAt:  createdAt,
		VideoState: videoState,
	}, nil
}

func (r repo) GetRoomIds(ctx context.Context) ([]string, error) {
	roomIds, err := r.rc.SMembers(ctx, r.getRoomSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room ids: %w", err)
	}

	return roomIds, nil
}

func (r repo) removeRoom(ctx context.Context, roomId string) error {
	pipe := r.rc.TxPipeline()
	pipe.Del(ctx, r.getRoomKey(roomId))
	pipe.Del(ctx, r.getParticipantListKey(roomId))
	pipe.SRem(ctx, r.getRoomSetKey(), roomId)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove room: %w", err)
	}

	return nil
}
