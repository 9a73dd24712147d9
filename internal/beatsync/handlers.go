package beatsync

import (
	"errors"
	"time"

	"github.com/groovify/beatsync/internal/playback"
	"github.com/groovify/beatsync/internal/protocol"
	"github.com/groovify/beatsync/internal/queue"
	"github.com/groovify/beatsync/internal/session"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/internal/transport"
)

func (c *Client) subscribe() []func() {
	return []func(){
		c.transport.Subscribe(protocol.EventConnect, c.handleConnect),
		c.transport.Subscribe(protocol.EventDisconnect, c.handleDisconnect),
		c.transport.Subscribe(protocol.EventAdminStatus, c.handleAdminStatus),
		c.transport.Subscribe(protocol.EventToggleAnyoneCanControl, c.handleToggleAnyoneCanControl),
		c.transport.Subscribe(protocol.EventQueueUpdate, c.handleQueueUpdate),
		c.transport.Subscribe(protocol.EventQueueSyncResponse, c.handleQueueUpdate),
		c.transport.Subscribe(protocol.EventPlaySong, c.handlePlaySong),
		c.transport.Subscribe(protocol.EventSyncToCurrent, c.handlePlaySong),
		c.transport.Subscribe(protocol.EventError, c.handleError),
	}
}

// handleConnect restarts the clock refresh and, when a room session was
// persisted, rejoins with the confirmed role and then resyncs the queue.
func (c *Client) handleConnect(transport.Event) {
	c.server.Start(c.cfg.ClockInterval)
	c.notify(LevelInfo, "Connected to server")

	rec, ok, err := c.session.Persisted()
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to read persisted session")
		return
	}
	if !ok {
		return
	}

	c.logger.Info().Str("room", rec.RoomName).Bool("is_admin", rec.IsAdmin).Msg("restoring room membership")
	c.after(c.cfg.RejoinDelay, func() {
		if err := c.join(rec.RoomName, rec.IsAdmin); err != nil {
			c.notify(LevelWarn, "Failed to rejoin room "+rec.RoomName+": "+err.Error())
		}
	})
	c.after(c.cfg.ResyncDelay, func() {
		if err := c.RequestQueueSync(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to resync queue after reconnect")
		}
	})
}

// handleDisconnect drops room state but keeps the persisted record.
func (c *Client) handleDisconnect(transport.Event) {
	c.cancelSettle()
	c.server.Stop()
	c.monitor.Stop()
	c.session.Disconnected()
	c.queue.Reset()
	c.notify(LevelWarn, "Disconnected from server")
}

func (c *Client) handleAdminStatus(ev transport.Event) {
	var p protocol.AdminStatus
	if err := ev.Decode(&p); err != nil {
		c.logger.Warn().Err(err).Msg("malformed admin_status")
		return
	}

	changed, err := c.session.ApplyAdminStatus(p.IsAdmin)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to persist role")
	}
	view := c.session.View()
	if !view.InRoom() {
		return
	}
	if !c.monitor.Running() {
		c.monitor.Start()
	}

	if changed {
		if view.State == session.Admin {
			c.notify(LevelInfo, "You are the admin of room "+view.Room)
		} else {
			c.notify(LevelInfo, "You are a listener in room "+view.Room)
		}
	}
}

func (c *Client) handleToggleAnyoneCanControl(ev transport.Event) {
	var p protocol.ToggleAnyoneCanControl
	if err := ev.Decode(&p); err != nil {
		c.logger.Warn().Err(err).Msg("malformed toggle_anyone_can_control")
		return
	}

	prev := c.session.View().AnyoneCanControl
	c.session.SetAnyoneCanControl(p.Enabled)
	if prev == p.Enabled {
		return
	}
	if p.Enabled {
		c.notify(LevelInfo, "Anyone can now add songs to the queue")
	} else {
		c.notify(LevelInfo, "Only the admin can control the queue")
	}
}

func (c *Client) handleQueueUpdate(ev transport.Event) {
	if !c.session.View().InRoom() {
		return
	}

	var p protocol.QueueUpdate
	if err := ev.Decode(&p); err != nil {
		c.logger.Warn().Err(err).Str("event", ev.Type).Msg("malformed queue broadcast")
		return
	}
	c.queue.Apply(queue.Broadcast{Queue: p.Queue, NowPlaying: p.CurrentSong})
}

func (c *Client) handlePlaySong(ev transport.Event) {
	if !c.session.View().InRoom() {
		return
	}

	var p protocol.PlaySong
	if err := ev.Decode(&p); err != nil || p.SongInfo == nil {
		c.logger.Warn().Err(err).Str("event", ev.Type).Msg("malformed play event")
		return
	}

	s := *p.SongInfo
	if s.GithubURL == "" {
		s.GithubURL = p.URL
	}
	pe := playback.PlayEvent{Song: song.Normalize(s), StartAt: protocol.FromMillis(p.StartAt)}
	if p.SeekTo != nil {
		seek := time.Duration(*p.SeekTo * float64(time.Second))
		pe.SeekTo = &seek
	}

	c.queue.Played(pe.Song.ID)
	c.queue.SetNowPlaying(&pe.Song)
	c.playback.OnPlayEvent(pe)
}

func (c *Client) handleError(ev transport.Event) {
	var p protocol.Error
	if err := ev.Decode(&p); err != nil || p.Message == "" {
		c.notify(LevelWarn, "Server rejected the request")
		return
	}
	c.notify(LevelWarn, "Server: "+p.Message)
}

// advance runs when the current song ends or fails to play. The admin
// moves the room on; listeners wait for the next play event.
func (c *Client) advance(f playback.Finished) {
	if f.Err != nil {
		c.notify(LevelWarn, "Could not play "+f.Song.String()+", skipping")
	}
	if c.session.View().State != session.Admin {
		return
	}

	if err := c.PlayNext(); err != nil {
		if errors.Is(err, queue.ErrQueueEmpty) {
			c.queue.SetNowPlaying(nil)
			c.notify(LevelInfo, "Queue finished")
			return
		}
		c.notify(LevelWarn, "Failed to play next song: "+err.Error())
	}
}
