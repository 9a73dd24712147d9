package room

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const maxRoomNameLength = 64

var RoomNameRule = []validation.Rule{
	validation.Required,
	validation.RuneLength(1, maxRoomNameLength),
}

var QueueIndexRule = []validation.Rule{
	validation.Min(0),
}

var SongURLRule = []validation.Rule{
	validation.Required,
}

var SongIDRule = []validation.Rule{
	validation.Required,
}

// NormalizeRoomName returns the form a room is stored and locked under.
func NormalizeRoomName(name string) string {
	return strings.TrimSpace(name)
}
