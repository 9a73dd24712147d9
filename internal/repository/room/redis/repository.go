// Package redis stores room state in redis. Every room owns a fixed set
// of keys under "room:<name>" that share one lifetime.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// maxScoreScript appends ARGV[1] to the sorted set KEYS[1] with a score one
// above the current maximum, so ZRANGE yields insertion order.
var maxScoreScript = redis.NewScript(`
	local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local nextScore = 1
	if #maxScore > 0 then
		nextScore = tonumber(maxScore[2]) + 1
	end
	redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
	return nextScore
`)

type repo struct {
	rc     *redis.Client
	logger zerolog.Logger
}

func NewRepo(rc *redis.Client, logger zerolog.Logger) *repo {
	return &repo{
		rc:     rc,
		logger: logger.With().Str("component", "repository.room").Logger(),
	}
}

func (r repo) getRoomKey(roomName string) string {
	return "room:" + roomName
}

func (r repo) getMembersKey(roomName string) string {
	return "room:" + roomName + ":members"
}

func (r repo) getQueueKey(roomName string) string {
	return "room:" + roomName + ":queue"
}

func (r repo) getSongsKey(roomName string) string {
	return "room:" + roomName + ":songs"
}

func (r repo) getNowPlayingKey(roomName string) string {
	return "room:" + roomName + ":now-playing"
}

func (r repo) getMemberKey(memberID string) string {
	return "member:" + memberID
}

func (r repo) roomKeys(roomName string) []string {
	return []string{
		r.getRoomKey(roomName),
		r.getMembersKey(roomName),
		r.getQueueKey(roomName),
		r.getSongsKey(roomName),
		r.getNowPlayingKey(roomName),
	}
}

func (r repo) executePipe(ctx context.Context, pipe redis.Pipeliner) error {
	cmds, err := pipe.Exec(ctx)
	if err != nil {
		for _, cmd := range cmds {
			if err := cmd.Err(); err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}

		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	return nil
}

// Expire schedules every key of the room for deletion after d.
func (r repo) Expire(ctx context.Context, roomName string, d time.Duration) error {
	r.logger.Debug().Str("room", roomName).Dur("ttl", d).Msg("expire")
	pipe := r.rc.TxPipeline()
	for _, key := range r.roomKeys(roomName) {
		pipe.Expire(ctx, key, d)
	}

	return r.executePipe(ctx, pipe)
}
