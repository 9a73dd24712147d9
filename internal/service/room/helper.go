package room

import (
	"context"
	"errors"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/pkg/wsrouter"
)

// checkMembership fails unless memberID is currently in roomName.
func (s service) checkMembership(ctx context.Context, roomName, memberID string) error {
	current, err := s.roomRepo.GetMemberRoom(ctx, memberID)
	if err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return ErrNotInRoom
		}
		return fmt.Errorf("failed to get member room: %w", err)
	}

	if current != roomName {
		return ErrRoomMismatch
	}

	return nil
}

func (s service) getRoom(ctx context.Context, roomName string) (room.Room, error) {
	rm, err := s.roomRepo.GetRoom(ctx, roomName)
	if err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		return room.Room{}, fmt.Errorf("failed to get room: %w", err)
	}

	return rm, nil
}

func (s service) checkIfMemberAdmin(ctx context.Context, roomName, memberID string) error {
	if err := s.checkMembership(ctx, roomName, memberID); err != nil {
		return err
	}

	rm, err := s.getRoom(ctx, roomName)
	if err != nil {
		return err
	}

	if rm.AdminID != memberID {
		return ErrPermissionDenied
	}

	return nil
}

func (s service) getConns(ctx context.Context, roomName string) ([]*wsrouter.Conn, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomName)
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	return s.connRepo.GetConns(memberIDs), nil
}

// getNowPlaying returns nil when nothing is playing or the song's known
// duration has already elapsed.
func (s service) getNowPlaying(ctx context.Context, roomName string) (*room.NowPlaying, error) {
	np, err := s.roomRepo.GetNowPlaying(ctx, roomName)
	if err != nil {
		if errors.Is(err, room.ErrNowPlayingNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get now playing: %w", err)
	}

	if d := np.Song.Duration(); d > 0 && s.clock.Since(np.StartAt) >= d {
		if err := s.roomRepo.ClearNowPlaying(ctx, roomName); err != nil {
			s.logger.Warn().Str("room", roomName).Err(err).Msg("failed to clear finished song")
		}
		return nil, nil
	}

	return &np, nil
}

func (s service) getQueueState(ctx context.Context, roomName string) (QueueState, error) {
	queue, err := s.roomRepo.GetQueue(ctx, roomName)
	if err != nil {
		return QueueState{}, fmt.Errorf("failed to get queue: %w", err)
	}

	np, err := s.getNowPlaying(ctx, roomName)
	if err != nil {
		return QueueState{}, err
	}

	state := QueueState{Queue: queue}
	if np != nil {
		state.NowPlaying = &np.Song
	}

	return state, nil
}

func mapQueueErr(err error) error {
	switch {
	case errors.Is(err, room.ErrSongAlreadyQueued):
		return ErrSongAlreadyQueued
	case errors.Is(err, room.ErrQueueLimitReached):
		return ErrQueueLimitReached
	case errors.Is(err, room.ErrIndexOutOfRange):
		return ErrIndexOutOfRange
	}

	return err
}

func normalizeSong(s song.Song) (song.Song, error) {
	s = song.Normalize(s)
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.GithubURL, SongURLRule...),
		validation.Field(&s.ID, SongIDRule...),
	); err != nil {
		return song.Song{}, fmt.Errorf("%w: %v", ErrInvalidSong, err)
	}

	return s, nil
}
