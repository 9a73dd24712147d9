package room

import (
	"time"

	"github.com/groovify/beatsync/internal/song"
)

type Room struct {
	AdminID          string `redis:"admin_id"`
	AnyoneCanControl bool   `redis:"anyone_can_control"`
}

type NowPlaying struct {
	Song    song.Song
	StartAt time.Time
}
