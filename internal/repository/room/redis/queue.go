package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/groovify/beatsync/internal/song"
	"github.com/redis/go-redis/v9"
)

const (
	addSongDuplicate = -1
	addSongFull      = -2
)

// KEYS: queue, songs. ARGV: id, encoded song, limit.
var addSongScript = redis.NewScript(`
	if redis.call('HEXISTS', KEYS[2], ARGV[1]) == 1 then
		return -1
	end
	local length = redis.call('ZCARD', KEYS[1])
	local limit = tonumber(ARGV[3])
	if limit > 0 and length >= limit then
		return -2
	end
	local maxScore = redis.call('ZREVRANGE', KEYS[1], 0, 0, 'WITHSCORES')
	local nextScore = 1
	if #maxScore > 0 then
		nextScore = tonumber(maxScore[2]) + 1
	end
	redis.call('ZADD', KEYS[1], nextScore, ARGV[1])
	redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
	return length + 1
`)

// KEYS: queue, songs. ARGV: index.
var removeSongAtScript = redis.NewScript(`
	local ids = redis.call('ZRANGE', KEYS[1], ARGV[1], ARGV[1])
	if #ids == 0 then
		return false
	end
	local encoded = redis.call('HGET', KEYS[2], ids[1])
	redis.call('ZREM', KEYS[1], ids[1])
	redis.call('HDEL', KEYS[2], ids[1])
	return encoded
`)

// AddSong appends the song and returns the new queue length.
func (r repo) AddSong(ctx context.Context, params *room.AddSongParams) (int, error) {
	r.logger.Debug().Str("room", params.RoomName).Str("song_id", params.Song.ID).Msg("called")
	encoded, err := json.Marshal(params.Song)
	if err != nil {
		return 0, fmt.Errorf("failed to encode song: %w", err)
	}

	n, err := addSongScript.Run(ctx, r.rc,
		[]string{r.getQueueKey(params.RoomName), r.getSongsKey(params.RoomName)},
		params.Song.ID, encoded, params.Limit,
	).Int()
	if err != nil {
		return 0, err
	}

	switch n {
	case addSongDuplicate:
		return 0, room.ErrSongAlreadyQueued
	case addSongFull:
		return 0, room.ErrQueueLimitReached
	}

	return n, nil
}

// RemoveSongAt removes and returns the song at the zero-based queue index.
func (r repo) RemoveSongAt(ctx context.Context, roomName string, index int) (song.Song, error) {
	if index < 0 {
		return song.Song{}, room.ErrIndexOutOfRange
	}

	encoded, err := removeSongAtScript.Run(ctx, r.rc,
		[]string{r.getQueueKey(roomName), r.getSongsKey(roomName)},
		index,
	).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return song.Song{}, room.ErrIndexOutOfRange
		}
		return song.Song{}, err
	}

	var s song.Song
	if err := json.Unmarshal([]byte(encoded), &s); err != nil {
		return song.Song{}, fmt.Errorf("failed to decode song: %w", err)
	}

	return s, nil
}

func (r repo) RemoveSong(ctx context.Context, roomName, songID string) error {
	pipe := r.rc.TxPipeline()
	removed := pipe.ZRem(ctx, r.getQueueKey(roomName), songID)
	pipe.HDel(ctx, r.getSongsKey(roomName), songID)

	if err := r.executePipe(ctx, pipe); err != nil {
		return err
	}

	if removed.Val() == 0 {
		return room.ErrSongNotFound
	}

	return nil
}

func (r repo) ClearQueue(ctx context.Context, roomName string) error {
	return r.rc.Del(ctx, r.getQueueKey(roomName), r.getSongsKey(roomName)).Err()
}

// GetQueue returns the queued songs in play order.
func (r repo) GetQueue(ctx context.Context, roomName string) ([]song.Song, error) {
	ids, err := r.rc.ZRange(ctx, r.getQueueKey(roomName), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	queue := make([]song.Song, 0, len(ids))
	if len(ids) == 0 {
		return queue, nil
	}

	values, err := r.rc.HMGet(ctx, r.getSongsKey(roomName), ids...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range values {
		encoded, ok := v.(string)
		if !ok {
			r.logger.Warn().Str("room", roomName).Str("song_id", ids[i]).Msg("queued song has no data")
			continue
		}

		var s song.Song
		if err := json.Unmarshal([]byte(encoded), &s); err != nil {
			return nil, fmt.Errorf("failed to decode song %s: %w", ids[i], err)
		}
		queue = append(queue, s)
	}

	return queue, nil
}
