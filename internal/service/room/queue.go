package room

import (
	"context"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/groovify/beatsync/internal/song"
)

type AddToQueueParams struct {
	SenderID string
	RoomName string
	Song     song.Song
}

// AddToQueue appends a song. Listeners may do so only while the room
// allows anyone to control it.
func (s service) AddToQueue(ctx context.Context, params *AddToQueueParams) (QueueResponse, error) {
	if err := s.checkMembership(ctx, params.RoomName, params.SenderID); err != nil {
		return QueueResponse{}, err
	}

	rm, err := s.getRoom(ctx, params.RoomName)
	if err != nil {
		return QueueResponse{}, err
	}
	if rm.AdminID != params.SenderID && !rm.AnyoneCanControl {
		return QueueResponse{}, ErrPermissionDenied
	}

	sng, err := normalizeSong(params.Song)
	if err != nil {
		return QueueResponse{}, err
	}

	if _, err := s.roomRepo.AddSong(ctx, &room.AddSongParams{
		RoomName: params.RoomName,
		Song:     sng,
		Limit:    s.cfg.QueueLimit,
	}); err != nil {
		s.logger.Debug().Str("room", params.RoomName).Err(err).Msg("failed to add song")
		return QueueResponse{}, mapQueueErr(err)
	}

	return s.queueResponse(ctx, params.RoomName)
}

type RemoveFromQueueParams struct {
	SenderID string
	RoomName string
	Index    int
}

func (s service) RemoveFromQueue(ctx context.Context, params *RemoveFromQueueParams) (QueueResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomName, params.SenderID); err != nil {
		return QueueResponse{}, err
	}

	if err := validation.ValidateStructWithContext(ctx, params,
		validation.Field(&params.Index, QueueIndexRule...),
	); err != nil {
		return QueueResponse{}, fmt.Errorf("%w: %v", ErrIndexOutOfRange, err)
	}

	if _, err := s.roomRepo.RemoveSongAt(ctx, params.RoomName, params.Index); err != nil {
		return QueueResponse{}, mapQueueErr(err)
	}

	return s.queueResponse(ctx, params.RoomName)
}

type ClearQueueParams struct {
	SenderID string
	RoomName string
}

func (s service) ClearQueue(ctx context.Context, params *ClearQueueParams) (QueueResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomName, params.SenderID); err != nil {
		return QueueResponse{}, err
	}

	if err := s.roomRepo.ClearQueue(ctx, params.RoomName); err != nil {
		return QueueResponse{}, fmt.Errorf("failed to clear queue: %w", err)
	}

	return s.queueResponse(ctx, params.RoomName)
}

type GetQueueStateParams struct {
	SenderID string
	RoomName string
}

// GetQueueState is the read-only snapshot answering a sync request.
func (s service) GetQueueState(ctx context.Context, params *GetQueueStateParams) (QueueState, error) {
	if err := s.checkMembership(ctx, params.RoomName, params.SenderID); err != nil {
		return QueueState{}, err
	}

	return s.getQueueState(ctx, params.RoomName)
}

func (s service) queueResponse(ctx context.Context, roomName string) (QueueResponse, error) {
	state, err := s.getQueueState(ctx, roomName)
	if err != nil {
		return QueueResponse{}, err
	}

	conns, err := s.getConns(ctx, roomName)
	if err != nil {
		return QueueResponse{}, err
	}

	return QueueResponse{QueueState: state, Conns: conns}, nil
}
