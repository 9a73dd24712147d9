package beatsync

import (
	"errors"
	"fmt"

	"github.com/groovify/beatsync/internal/protocol"
	"github.com/groovify/beatsync/internal/queue"
	"github.com/groovify/beatsync/internal/session"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/internal/transport"
)

// CreateRoom joins name asking for the admin role. The role is only held
// once the server confirms it.
func (c *Client) CreateRoom(name string) error { return c.enter(name, true) }

// JoinRoom joins name as a listener.
func (c *Client) JoinRoom(name string) error { return c.enter(name, false) }

func (c *Client) enter(name string, asAdmin bool) error {
	if !c.transport.Connected() {
		return c.reject(transport.ErrNotConnected)
	}

	c.cancelSettle()
	c.monitor.Stop()
	c.playback.Cancel()
	c.queue.Reset()

	return c.join(name, asAdmin)
}

func (c *Client) join(name string, asAdmin bool) error {
	if err := c.session.Join(name, asAdmin); err != nil {
		if errors.Is(err, session.ErrInvalidRoom) {
			return c.reject(err)
		}
		c.logger.Warn().Err(err).Msg("joined without persisting the session")
	}

	room := c.session.View().Room
	if err := c.transport.Send(protocol.EventJoinRoom, protocol.JoinRoom{Room: room, IsAdmin: asAdmin}); err != nil {
		c.session.Disconnected()
		return c.reject(err)
	}

	c.notify(LevelInfo, fmt.Sprintf("Joining room %s (waiting for role confirmation)", room))
	return nil
}

// LeaveRoom leaves the current room and forgets it, so a reconnect will
// not rejoin.
func (c *Client) LeaveRoom() error {
	view := c.session.View()

	c.cancelSettle()
	c.monitor.Stop()
	c.playback.Cancel()
	c.queue.Reset()

	if view.InRoom() && c.transport.Connected() {
		if err := c.transport.Send(protocol.EventLeaveRoom, protocol.LeaveRoom{Room: view.Room}); err != nil {
			c.logger.Warn().Err(err).Msg("failed to tell server about leaving")
		}
	}
	if err := c.session.Leave(); err != nil {
		return err
	}

	if view.InRoom() {
		c.notify(LevelInfo, "Left room "+view.Room)
	}
	return nil
}

// Enqueue adds s to the local queue right away and asks the server to add
// it. The next broadcast confirms or reverts the local change.
func (c *Client) Enqueue(s song.Song) error {
	view, err := c.guard(session.ActionEnqueue)
	if err != nil {
		return err
	}

	s = song.Normalize(s)
	if !c.queue.Enqueue(s) {
		return c.reject(queue.ErrAlreadyQueued)
	}

	if err := c.transport.Send(protocol.EventAddToQueue, protocol.AddToQueue{Room: view.Room, URL: s.GithubURL, SongInfo: s}); err != nil {
		c.queue.Played(s.ID)
		return c.reject(err)
	}
	return nil
}

func (c *Client) RemoveFromQueue(index int) error {
	view, err := c.guard(session.ActionRemove)
	if err != nil {
		return err
	}

	if _, err := c.queue.RemoveAt(index); err != nil {
		return c.reject(err)
	}
	if err := c.transport.Send(protocol.EventRemoveFromQueue, protocol.RemoveFromQueue{Room: view.Room, Index: index}); err != nil {
		return c.reject(err)
	}
	return nil
}

func (c *Client) ClearQueue() error {
	view, err := c.guard(session.ActionClear)
	if err != nil {
		return err
	}

	c.queue.Clear()
	if err := c.transport.Send(protocol.EventClearQueue, protocol.ClearQueue{Room: view.Room}); err != nil {
		return c.reject(err)
	}
	return nil
}

// PlayNext starts the song at the head of the queue for the whole room.
func (c *Client) PlayNext() error {
	view, err := c.guard(session.ActionPlayNext)
	if err != nil {
		return err
	}

	next, err := c.queue.Front()
	if err != nil {
		return err
	}
	return c.playSong(view.Room, next)
}

// PlaySong starts s for the whole room, whether or not it is queued.
func (c *Client) PlaySong(s song.Song) error {
	view, err := c.guard(session.ActionPlayNext)
	if err != nil {
		return err
	}
	return c.playSong(view.Room, song.Normalize(s))
}

func (c *Client) playSong(room string, s song.Song) error {
	startAt := c.server.Now().Add(c.cfg.PlayLead)
	err := c.transport.Send(protocol.EventPlaySong, protocol.PlaySong{
		Room:     room,
		URL:      s.GithubURL,
		StartAt:  protocol.Millis(startAt),
		SongInfo: &s,
	})
	if err != nil {
		return c.reject(err)
	}

	c.queue.Played(s.ID)
	c.logger.Info().Str("song_id", s.ID).Time("start_at", startAt).Msg("requested room playback")
	return nil
}

func (c *Client) SetAnyoneCanControl(enabled bool) error {
	view, err := c.guard(session.ActionToggleControl)
	if err != nil {
		return err
	}

	payload := protocol.ToggleAnyoneCanControl{Room: view.Room, Enabled: enabled}
	if err := c.transport.Send(protocol.EventToggleAnyoneCanControl, payload); err != nil {
		return c.reject(err)
	}
	return nil
}

// RequestQueueSync asks the server for a fresh full-queue broadcast.
func (c *Client) RequestQueueSync() error {
	if !c.session.View().InRoom() {
		return session.ErrNotInRoom
	}

	c.queue.BeginSync()
	if err := c.sendQueueSync(); err != nil {
		c.queue.AbortSync()
		return err
	}
	return nil
}

func (c *Client) sendQueueSync() error {
	view := c.session.View()
	if !view.InRoom() {
		return session.ErrNotInRoom
	}
	return c.transport.Send(protocol.EventRequestQueueSync, protocol.RequestQueueSync{Room: view.Room})
}

// guard applies the permission rule and the connection check before any
// network call.
func (c *Client) guard(a session.Action) (session.View, error) {
	view := c.session.View()
	if err := c.session.Authorize(a); err != nil {
		return view, c.reject(fmt.Errorf("cannot %s: %w", a, err))
	}
	if !c.transport.Connected() {
		return view, c.reject(transport.ErrNotConnected)
	}
	return view, nil
}

func (c *Client) reject(err error) error {
	c.notify(LevelWarn, err.Error())
	return err
}
