package controller

import (
	"context"
	"errors"

	"github.com/groovify/beatsync/internal/service/room"
	"github.com/groovify/beatsync/pkg/validator"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// userErrors are safe to echo back to the client verbatim.
var userErrors = []error{
	room.ErrPermissionDenied,
	room.ErrNotInRoom,
	room.ErrAlreadyInRoom,
	room.ErrRoomMismatch,
	room.ErrRoomFull,
	room.ErrInvalidRoomName,
	room.ErrInvalidSong,
	room.ErrSongAlreadyQueued,
	room.ErrQueueLimitReached,
	room.ErrIndexOutOfRange,
	validator.ErrValidation,
	wsrouter.ErrUnknownType,
	wsrouter.ErrInvalidPayload,
}

func isUserError(err error) bool {
	for _, e := range userErrors {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

func userMessage(err error) string {
	if isUserError(err) {
		return err.Error()
	}

	return "internal server error"
}

func (c controller) send(ctx context.Context, conn *wsrouter.Conn, eventType string, payload any) {
	if err := conn.WriteJSON(&Output{Type: eventType, Payload: payload}); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("event", eventType).Msg("failed to write to connection")
	}
}

// broadcast writes the event to every conn. A failing conn is logged and
// skipped; its reader will notice the broken connection.
func (c controller) broadcast(ctx context.Context, conns []*wsrouter.Conn, eventType string, payload any) {
	output := &Output{Type: eventType, Payload: payload}
	for _, conn := range conns {
		if err := conn.WriteJSON(output); err != nil {
			zerolog.Ctx(ctx).Debug().Err(err).Str("event", eventType).Str("remote_addr", conn.RemoteAddr()).Msg("failed to broadcast")
		}
	}
}
