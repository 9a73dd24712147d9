package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/groovify/beatsync/internal/song"
)

type PlaySongParams struct {
	SenderID string
	RoomName string
	Song     song.Song
	StartAt  time.Time
}

type PlaySongResponse struct {
	Song    song.Song
	StartAt time.Time
	QueueResponse
}

// PlaySong makes Song the room's now playing song from StartAt and drops
// it from the queue. A StartAt further than MaxStartDrift from server time
// is replaced with now+PlayLead.
func (s service) PlaySong(ctx context.Context, params *PlaySongParams) (PlaySongResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomName, params.SenderID); err != nil {
		return PlaySongResponse{}, err
	}

	sng, err := normalizeSong(params.Song)
	if err != nil {
		return PlaySongResponse{}, err
	}

	startAt := params.StartAt
	now := s.clock.Now()
	if drift := startAt.Sub(now); s.cfg.MaxStartDrift > 0 && (drift > s.cfg.MaxStartDrift || drift < -s.cfg.MaxStartDrift) {
		s.logger.Warn().Str("room", params.RoomName).Dur("drift", drift).Msg("start instant out of range, rescheduling")
		startAt = now.Add(s.cfg.PlayLead)
	}

	if err := s.roomRepo.RemoveSong(ctx, params.RoomName, sng.ID); err != nil && !errors.Is(err, room.ErrSongNotFound) {
		return PlaySongResponse{}, fmt.Errorf("failed to remove song from queue: %w", err)
	}

	if err := s.roomRepo.SetNowPlaying(ctx, &room.SetNowPlayingParams{
		RoomName: params.RoomName,
		Song:     sng,
		StartAt:  startAt,
	}); err != nil {
		return PlaySongResponse{}, fmt.Errorf("failed to set now playing: %w", err)
	}

	qr, err := s.queueResponse(ctx, params.RoomName)
	if err != nil {
		return PlaySongResponse{}, err
	}

	s.logger.Info().Str("room", params.RoomName).Str("song_id", sng.ID).Time("start_at", startAt).Msg("song scheduled")
	return PlaySongResponse{Song: sng, StartAt: startAt, QueueResponse: qr}, nil
}
