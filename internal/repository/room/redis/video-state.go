package redis

import (
	"context"
	"fmt"

	"github.com/watchsync/server/internal/repository/room"
)

func (r repo) GetVideoState(ctx context.Context, roomId string) (room.VideoState, error) {
	exists, err := r.rc.SIsMember(ctx, r.getRoomSetKey(), roomId).Result()
	if err != nil {
		return room.VideoState{}, fmt.Errorf("failed to get video state: %w", err)
	}
	if !exists {
		return room.VideoState{}, room.ErrRoomNotFound
	}

	var videoState room.VideoState
	if err := r.rc.HGetAll(ctx, r.getRoomKey(roomId)).Scan(&videoState); err != nil {
		return room.VideoState{}, fmt.Errorf("failed to get video state: %w", err)
	}

	return videoState, nil
}

func (r repo) UpdateVideoState(ctx context.Context, params *room.UpdateVideoStateParams) (room.VideoState, error) {
	r.logger.DebugContext(ctx, "called", "params", params)

	key := r.getRoomKey(params.RoomId)
	cmd := r.rc.Exists(ctx, key)
	if err := cmd.Err(); err != nil {
		return room.VideoState{}, fmt.Errorf("failed to update video state: %w", err)
	}
	if cmd.Val() == 0 {
		return room.VideoState{}, room.ErrRoomNotFound
	}

	fields := []interface{}{"current_time", params.CurrentTime}
	if params.IsPlaying != nil {
		fields = append(fields, "is_playing", *params.IsPlaying)
	}

	// last_update never moves backwards. Concurrent writers race on the rest
	// of the fields, which is the intended last-write-wins behavior.
	lastUpdate, err := r.rc.HGet(ctx, key, "last_update").Int64()
	if err != nil || params.UpdatedAt > lastUpdate {
		fields = append(fields, "last_update", params.UpdatedAt)
	}

	if err := r.rc.HSet(ctx, key, fields...).Err(); err != nil {
		return room.VideoState{}, fmt.Errorf("failed to update video state: %w", err)
	}

	var videoState room.VideoState
	if err := r.rc.HGetAll(ctx, key).Scan(&videoState); err != nil {
		return room.VideoState{}, fmt.Errorf("failed to update video state: %w", err)
	}

	return videoState, nil
}
