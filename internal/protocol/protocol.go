// Package protocol defines the websocket events exchanged between BeatSync
// clients and the coordination server. Every frame is an Envelope.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/groovify/beatsync/internal/song"
)

const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"

	EventJoinRoom               = "join_room"
	EventLeaveRoom              = "leave_room"
	EventPlaySong               = "play_song"
	EventSyncToCurrent          = "sync_to_current"
	EventAddToQueue             = "add_to_queue"
	EventRemoveFromQueue        = "remove_from_queue"
	EventClearQueue             = "clear_queue"
	EventToggleAnyoneCanControl = "toggle_anyone_can_control"
	EventRequestQueueSync       = "request_queue_sync"
	EventQueueUpdate            = "queue_update"
	EventQueueSyncResponse      = "queue_sync_response"
	EventAdminStatus            = "admin_status"
	EventError                  = "error"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRoom struct {
	Room    string `json:"room" validate:"required,max=64"`
	IsAdmin bool   `json:"isAdmin"`
}

type LeaveRoom struct {
	Room string `json:"room" validate:"required"`
}

// PlaySong carries an absolute start instant in server-clock epoch milliseconds.
// SeekTo, in seconds, marks a late-join catch-up.
type PlaySong struct {
	Room     string     `json:"room" validate:"required"`
	URL      string     `json:"url"`
	StartAt  int64      `json:"startAt" validate:"required"`
	SongInfo *song.Song `json:"songInfo" validate:"required"`
	SeekTo   *float64   `json:"seekTo,omitempty"`
}

type AddToQueue struct {
	Room     string    `json:"room" validate:"required"`
	URL      string    `json:"url"`
	SongInfo song.Song `json:"songInfo"`
}

type RemoveFromQueue struct {
	Room  string `json:"room" validate:"required"`
	Index int    `json:"index" validate:"min=0"`
}

type ClearQueue struct {
	Room string `json:"room" validate:"required"`
}

type ToggleAnyoneCanControl struct {
	Room    string `json:"room,omitempty"`
	Enabled bool   `json:"enabled"`
}

type RequestQueueSync struct {
	Room string `json:"room" validate:"required"`
}

type QueueUpdate struct {
	Queue       []song.Song `json:"queue"`
	CurrentSong *song.Song  `json:"currentSong"`
}

type AdminStatus struct {
	IsAdmin bool `json:"isAdmin"`
}

type Error struct {
	Message string `json:"message"`
}

func Millis(t time.Time) int64 { return t.UnixMilli() }

func FromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

// SecondsPtr is a convenience for PlaySong.SeekTo.
func SecondsPtr(d time.Duration) *float64 {
	s := d.Seconds()
	return &s
}
