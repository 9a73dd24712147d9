package redis

import (
	"context"

	"github.com/groovify/beatsync/internal/repository/room"
)

func (r repo) GetRoom(ctx context.Context, roomName string) (room.Room, error) {
	cmd := r.rc.HGetAll(ctx, r.getRoomKey(roomName))
	if err := cmd.Err(); err != nil {
		return room.Room{}, err
	}

	if len(cmd.Val()) == 0 {
		return room.Room{}, room.ErrRoomNotFound
	}

	var rm room.Room
	if err := cmd.Scan(&rm); err != nil {
		return room.Room{}, err
	}

	return rm, nil
}

// ClaimAdmin makes memberID the admin unless the room already has one.
func (r repo) ClaimAdmin(ctx context.Context, roomName, memberID string) (bool, error) {
	claimed, err := r.rc.HSetNX(ctx, r.getRoomKey(roomName), "admin_id", memberID).Result()
	if err != nil {
		r.logger.Debug().Str("room", roomName).Err(err).Msg("claim admin")
		return false, err
	}

	r.logger.Debug().Str("room", roomName).Str("member_id", memberID).Bool("claimed", claimed).Msg("claim admin")
	return claimed, nil
}

func (r repo) SetAdmin(ctx context.Context, roomName, memberID string) error {
	return r.rc.HSet(ctx, r.getRoomKey(roomName), "admin_id", memberID).Err()
}

func (r repo) ClearAdmin(ctx context.Context, roomName string) error {
	return r.rc.HDel(ctx, r.getRoomKey(roomName), "admin_id").Err()
}

func (r repo) SetAnyoneCanControl(ctx context.Context, roomName string, enabled bool) error {
	return r.rc.HSet(ctx, r.getRoomKey(roomName), "anyone_can_control", enabled).Err()
}
