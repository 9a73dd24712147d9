package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/groovify/beatsync/internal/repository/room"
)

func (r repo) SetNowPlaying(ctx context.Context, params *room.SetNowPlayingParams) error {
	encoded, err := json.Marshal(params.Song)
	if err != nil {
		return fmt.Errorf("failed to encode song: %w", err)
	}

	return r.rc.HSet(ctx, r.getNowPlayingKey(params.RoomName),
		"song", encoded,
		"start_at", params.StartAt.UnixMilli(),
	).Err()
}

func (r repo) GetNowPlaying(ctx context.Context, roomName string) (room.NowPlaying, error) {
	fields, err := r.rc.HGetAll(ctx, r.getNowPlayingKey(roomName)).Result()
	if err != nil {
		return room.NowPlaying{}, err
	}

	encoded, ok := fields["song"]
	if !ok {
		return room.NowPlaying{}, room.ErrNowPlayingNotFound
	}

	var np room.NowPlaying
	if err := json.Unmarshal([]byte(encoded), &np.Song); err != nil {
		return room.NowPlaying{}, fmt.Errorf("failed to decode now playing: %w", err)
	}

	ms, err := strconv.ParseInt(fields["start_at"], 10, 64)
	if err != nil {
		return room.NowPlaying{}, fmt.Errorf("failed to parse start_at: %w", err)
	}
	np.StartAt = time.UnixMilli(ms)

	return np, nil
}

func (r repo) ClearNowPlaying(ctx context.Context, roomName string) error {
	return r.rc.Del(ctx, r.getNowPlayingKey(roomName)).Err()
}
