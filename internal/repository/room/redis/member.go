package redis

import (
	"context"
	"errors"

	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/redis/go-redis/v9"
)

// AddMember records memberID as the newest member of the room, creating
// the room if needed and cancelling any pending expiry.
func (r repo) AddMember(ctx context.Context, params *room.AddMemberParams) error {
	r.logger.Debug().Interface("params", params).Msg("called")
	pipe := r.rc.TxPipeline()

	for _, key := range r.roomKeys(params.RoomName) {
		pipe.Persist(ctx, key)
	}
	pipe.HSetNX(ctx, r.getRoomKey(params.RoomName), "anyone_can_control", false)
	maxScoreScript.Eval(ctx, pipe, []string{r.getMembersKey(params.RoomName)}, params.MemberID)
	pipe.Set(ctx, r.getMemberKey(params.MemberID), params.RoomName, 0)

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.Debug().Err(err).Msg("returned")
		return err
	}

	return nil
}

// RemoveMember returns how many members remain in the room.
func (r repo) RemoveMember(ctx context.Context, params *room.RemoveMemberParams) (int, error) {
	r.logger.Debug().Interface("params", params).Msg("called")
	pipe := r.rc.TxPipeline()

	removed := pipe.ZRem(ctx, r.getMembersKey(params.RoomName), params.MemberID)
	pipe.Del(ctx, r.getMemberKey(params.MemberID))
	remaining := pipe.ZCard(ctx, r.getMembersKey(params.RoomName))

	if err := r.executePipe(ctx, pipe); err != nil {
		r.logger.Debug().Err(err).Msg("returned")
		return 0, err
	}

	if removed.Val() == 0 {
		return int(remaining.Val()), room.ErrMemberNotFound
	}

	return int(remaining.Val()), nil
}

// GetMemberIDs lists members in join order.
func (r repo) GetMemberIDs(ctx context.Context, roomName string) ([]string, error) {
	return r.rc.ZRange(ctx, r.getMembersKey(roomName), 0, -1).Result()
}

func (r repo) GetMembersCount(ctx context.Context, roomName string) (int, error) {
	n, err := r.rc.ZCard(ctx, r.getMembersKey(roomName)).Result()
	return int(n), err
}

func (r repo) GetMemberRoom(ctx context.Context, memberID string) (string, error) {
	roomName, err := r.rc.Get(ctx, r.getMemberKey(memberID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", room.ErrMemberNotFound
		}
		return "", err
	}

	return roomName, nil
}
