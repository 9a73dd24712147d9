package controller

import (
	"context"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/groovify/beatsync/internal/service/room"
	"github.com/groovify/beatsync/pkg/validator"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

type iRoomService interface {
	ConnectMember(conn *wsrouter.Conn, memberID string) error
	CloseConns()
	DisconnectMember(ctx context.Context, conn *wsrouter.Conn) (string, *room.LeaveRoomResponse, error)
	MemberRoom(ctx context.Context, memberID string) (string, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	LeaveRoom(context.Context, *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	PlaySong(context.Context, *room.PlaySongParams) (room.PlaySongResponse, error)
	AddToQueue(context.Context, *room.AddToQueueParams) (room.QueueResponse, error)
	RemoveFromQueue(context.Context, *room.RemoveFromQueueParams) (room.QueueResponse, error)
	ClearQueue(context.Context, *room.ClearQueueParams) (room.QueueResponse, error)
	GetQueueState(context.Context, *room.GetQueueStateParams) (room.QueueState, error)
	ToggleAnyoneCanControl(context.Context, *room.ToggleAnyoneCanControlParams) (room.ToggleAnyoneCanControlResponse, error)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	clock       clock.Clock
	logger      zerolog.Logger
	locks       *roomLocks
	wsRouter    *wsrouter.WSRouter
	active      *sync.WaitGroup
}

func NewController(roomService iRoomService, clk clock.Clock, logger zerolog.Logger) *controller {
	if clk == nil {
		clk = clock.New()
	}

	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		validate:    validator.NewValidator(),
		clock:       clk,
		logger:      logger.With().Str("component", "controller").Logger(),
		locks:       newRoomLocks(),
		active:      &sync.WaitGroup{},
	}
	c.wsRouter = c.getWSRouter()

	return c
}

// Shutdown closes every websocket and waits for their members to be
// taken out of their rooms.
func (c controller) Shutdown(ctx context.Context) error {
	c.roomService.CloseConns()

	done := make(chan struct{})
	go func() {
		c.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
