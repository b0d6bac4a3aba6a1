package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type repo struct {
	rc             *redis.Client
	maxScoreScript string
	logger         *slog.Logger
}

// NewRepo builds the redis-backed room store. It keeps the same semantics as
// the in-memory store but shares room state between relay replicas.
func NewRepo(rc *redis.Client, logger *slog.Logger) *repo {
	return &repo{
		rc:     rc,
		logger: logger,
		maxScoreScript: rc.ScriptLoad(context.Background(), `
			local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
			local nextScore = 1
			if #maxScore > 0 then
				nextScore = tonumber(maxScore[2]) + 1
			end
			redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
			return nextScore
		`).Val(),
	}
}

func (r repo) getRoomSetKey() string {
	return "rooms"
}

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r repo) getParticipantListKey(roomId string) string {
	return "room:" + roomId + ":participantlist"
}

func (r repo) getParticipantKey(roomId, participantId string) string {
	return "room:" + roomId + ":participant:" + participantId
}
