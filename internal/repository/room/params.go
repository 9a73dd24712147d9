package room

import (
	"time"

	"github.com/groovify/beatsync/internal/song"
)

type AddMemberParams struct {
	RoomName string
	MemberID string
}

type RemoveMemberParams struct {
	RoomName string
	MemberID string
}

// AddSongParams appends Song unless it is already queued or the queue
// holds Limit songs. A Limit of zero disables the check.
type AddSongParams struct {
	RoomName string
	Song     song.Song
	Limit    int
}

type SetNowPlayingParams struct {
	RoomName string
	Song     song.Song
	StartAt  time.Time
}
