package room

import (
	"time"

	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/pkg/wsrouter"
)

type QueueState struct {
	Queue      []song.Song
	NowPlaying *song.Song
}

// CatchUp tells a joining member how to align with the song already
// playing. SeekTo is set once StartAt has passed.
type CatchUp struct {
	Song    song.Song
	StartAt time.Time
	SeekTo  *time.Duration
}

// QueueResponse is broadcast to Conns after a queue mutation.
type QueueResponse struct {
	QueueState
	Conns []*wsrouter.Conn
}
