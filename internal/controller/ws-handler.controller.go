package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/groovify/beatsync/internal/protocol"
	"github.com/groovify/beatsync/internal/service/room"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/internal/telemetry"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

func (c controller) handleJoinRoom(ctx context.Context, conn *wsrouter.Conn, input protocol.JoinRoom) error {
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	memberID := c.getMemberIDFromCtx(ctx)

	// joining again, even the same room, starts a fresh membership
	if err := c.leaveCurrentRoom(ctx, memberID); err != nil && !errors.Is(err, room.ErrNotInRoom) {
		return fmt.Errorf("failed to leave previous room: %w", err)
	}

	roomName := room.NormalizeRoomName(input.Room)
	unlock := c.locks.Lock(roomName)
	defer unlock()

	resp, err := c.roomService.JoinRoom(ctx, &room.JoinRoomParams{
		MemberID: memberID,
		RoomName: roomName,
		IsAdmin:  input.IsAdmin,
	})
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	telemetry.RoomsJoined.Inc()

	c.send(ctx, conn, protocol.EventAdminStatus, protocol.AdminStatus{IsAdmin: resp.IsAdmin})
	c.send(ctx, conn, protocol.EventToggleAnyoneCanControl, protocol.ToggleAnyoneCanControl{
		Room:    resp.RoomName,
		Enabled: resp.AnyoneCanControl,
	})
	c.send(ctx, conn, protocol.EventQueueUpdate, queueUpdate(resp.QueueState))

	if cu := resp.CatchUp; cu != nil {
		event := protocol.EventPlaySong
		payload := playSongOutput(resp.RoomName, cu.Song, protocol.Millis(cu.StartAt))
		if cu.SeekTo != nil {
			event = protocol.EventSyncToCurrent
			payload.SeekTo = protocol.SecondsPtr(*cu.SeekTo)
		}
		c.send(ctx, conn, event, payload)
	}

	return nil
}

func (c controller) handleLeaveRoom(ctx context.Context, _ *wsrouter.Conn, _ protocol.LeaveRoom) error {
	err := c.leaveCurrentRoom(ctx, c.getMemberIDFromCtx(ctx))
	if err != nil && !errors.Is(err, room.ErrNotInRoom) {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	return nil
}

func (c controller) leaveCurrentRoom(ctx context.Context, memberID string) error {
	roomName, err := c.roomService.MemberRoom(ctx, memberID)
	if err != nil {
		return err
	}

	unlock := c.locks.Lock(roomName)
	defer unlock()

	resp, err := c.roomService.LeaveRoom(ctx, &room.LeaveRoomParams{MemberID: memberID})
	if err != nil {
		return err
	}

	c.announceHandover(ctx, resp.NewAdminConn)
	return nil
}

func (c controller) handlePlaySong(ctx context.Context, _ *wsrouter.Conn, input protocol.PlaySong) error {
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("failed to play song: %w", err)
	}

	roomName := room.NormalizeRoomName(input.Room)
	unlock := c.locks.Lock(roomName)
	defer unlock()

	resp, err := c.roomService.PlaySong(ctx, &room.PlaySongParams{
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomName: roomName,
		Song:     withURL(*input.SongInfo, input.URL),
		StartAt:  protocol.FromMillis(input.StartAt),
	})
	if err != nil {
		return fmt.Errorf("failed to play song: %w", err)
	}

	c.broadcast(ctx, resp.Conns, protocol.EventPlaySong, playSongOutput(roomName, resp.Song, protocol.Millis(resp.StartAt)))
	c.broadcast(ctx, resp.Conns, protocol.EventQueueUpdate, queueUpdate(resp.QueueState))

	return nil
}

func (c controller) handleAddToQueue(ctx context.Context, conn *wsrouter.Conn, input protocol.AddToQueue) error {
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	roomName := room.NormalizeRoomName(input.Room)
	unlock := c.locks.Lock(roomName)
	defer unlock()

	memberID := c.getMemberIDFromCtx(ctx)
	resp, err := c.roomService.AddToQueue(ctx, &room.AddToQueueParams{
		SenderID: memberID,
		RoomName: roomName,
		Song:     withURL(input.SongInfo, input.URL),
	})
	if err != nil {
		c.revertSender(ctx, conn, memberID, roomName)
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	c.broadcast(ctx, resp.Conns, protocol.EventQueueUpdate, queueUpdate(resp.QueueState))
	return nil
}

func (c controller) handleRemoveFromQueue(ctx context.Context, conn *wsrouter.Conn, input protocol.RemoveFromQueue) error {
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}

	roomName := room.NormalizeRoomName(input.Room)
	unlock := c.locks.Lock(roomName)
	defer unlock()

	memberID := c.getMemberIDFromCtx(ctx)
	resp, err := c.roomService.RemoveFromQueue(ctx, &room.RemoveFromQueueParams{
		SenderID: memberID,
		RoomName: roomName,
		Index:    input.Index,
	})
	if err != nil {
		c.revertSender(ctx, conn, memberID, roomName)
		return fmt.Errorf("failed to remove from queue: %w", err)
	}

	c.broadcast(ctx, resp.Conns, protocol.EventQueueUpdate, queueUpdate(resp.QueueState))
	return nil
}

func (c controller) handleClearQueue(ctx context.Context, conn *wsrouter.Conn, input protocol.ClearQueue) error {
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	roomName := room.NormalizeRoomName(input.Room)
	unlock := c.locks.Lock(roomName)
	defer unlock()

	memberID := c.getMemberIDFromCtx(ctx)
	resp, err := c.roomService.ClearQueue(ctx, &room.ClearQueueParams{
		SenderID: memberID,
		RoomName: roomName,
	})
	if err != nil {
		c.revertSender(ctx, conn, memberID, roomName)
		return fmt.Errorf("failed to clear queue: %w", err)
	}

	c.broadcast(ctx, resp.Conns, protocol.EventQueueUpdate, queueUpdate(resp.QueueState))
	return nil
}

func (c controller) handleRequestQueueSync(ctx context.Context, conn *wsrouter.Conn, input protocol.RequestQueueSync) error {
	if err := c.validate.Struct(input); err != nil {
		return fmt.Errorf("failed to sync queue: %w", err)
	}

	state, err := c.roomService.GetQueueState(ctx, &room.GetQueueStateParams{
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomName: room.NormalizeRoomName(input.Room),
	})
	if err != nil {
		return fmt.Errorf("failed to sync queue: %w", err)
	}

	c.send(ctx, conn, protocol.EventQueueSyncResponse, queueUpdate(state))
	return nil
}

func (c controller) handleToggleAnyoneCanControl(ctx context.Context, _ *wsrouter.Conn, input protocol.ToggleAnyoneCanControl) error {
	memberID := c.getMemberIDFromCtx(ctx)

	roomName := room.NormalizeRoomName(input.Room)
	if roomName == "" {
		var err error
		if roomName, err = c.roomService.MemberRoom(ctx, memberID); err != nil {
			return fmt.Errorf("failed to toggle control: %w", err)
		}
	}

	unlock := c.locks.Lock(roomName)
	defer unlock()

	resp, err := c.roomService.ToggleAnyoneCanControl(ctx, &room.ToggleAnyoneCanControlParams{
		SenderID: memberID,
		RoomName: roomName,
		Enabled:  input.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to toggle control: %w", err)
	}

	c.broadcast(ctx, resp.Conns, protocol.EventToggleAnyoneCanControl, protocol.ToggleAnyoneCanControl{
		Room:    roomName,
		Enabled: resp.Enabled,
	})
	return nil
}

// revertSender sends the authoritative queue to a member whose optimistic
// edit was refused.
func (c controller) revertSender(ctx context.Context, conn *wsrouter.Conn, memberID, roomName string) {
	state, err := c.roomService.GetQueueState(ctx, &room.GetQueueStateParams{
		SenderID: memberID,
		RoomName: roomName,
	})
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("no queue state to revert to")
		return
	}

	c.send(ctx, conn, protocol.EventQueueSyncResponse, queueUpdate(state))
}

func queueUpdate(state room.QueueState) protocol.QueueUpdate {
	queue := state.Queue
	if queue == nil {
		queue = []song.Song{}
	}

	return protocol.QueueUpdate{Queue: queue, CurrentSong: state.NowPlaying}
}

func playSongOutput(roomName string, s song.Song, startAt int64) protocol.PlaySong {
	return protocol.PlaySong{
		Room:     roomName,
		URL:      s.GithubURL,
		StartAt:  startAt,
		SongInfo: &s,
	}
}

func withURL(s song.Song, url string) song.Song {
	if s.GithubURL == "" {
		s.GithubURL = url
	}

	return s
}
