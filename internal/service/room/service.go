// Package room implements the coordination rules of a listening room:
// who is admin, who may change the queue, and what a joining member needs
// to catch up with playback.
package room

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/groovify/beatsync/internal/repository/room"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/rs/zerolog"
)

var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrRoomMismatch      = errors.New("member is in another room")
	ErrRoomFull          = errors.New("room is full")
	ErrInvalidRoomName   = errors.New("invalid room name")
	ErrInvalidSong       = errors.New("song has no media url")
	ErrSongAlreadyQueued = errors.New("song already in queue")
	ErrQueueLimitReached = errors.New("queue limit reached")
	ErrIndexOutOfRange   = errors.New("queue index out of range")
)

type iRoomRepo interface {
	GetRoom(ctx context.Context, roomName string) (room.Room, error)
	ClaimAdmin(ctx context.Context, roomName, memberID string) (bool, error)
	SetAdmin(ctx context.Context, roomName, memberID string) error
	ClearAdmin(ctx context.Context, roomName string) error
	SetAnyoneCanControl(ctx context.Context, roomName string, enabled bool) error
	// member
	AddMember(ctx context.Context, params *room.AddMemberParams) error
	RemoveMember(ctx context.Context, params *room.RemoveMemberParams) (int, error)
	GetMemberIDs(ctx context.Context, roomName string) ([]string, error)
	GetMembersCount(ctx context.Context, roomName string) (int, error)
	GetMemberRoom(ctx context.Context, memberID string) (string, error)
	// queue
	AddSong(ctx context.Context, params *room.AddSongParams) (int, error)
	RemoveSongAt(ctx context.Context, roomName string, index int) (song.Song, error)
	RemoveSong(ctx context.Context, roomName, songID string) error
	ClearQueue(ctx context.Context, roomName string) error
	GetQueue(ctx context.Context, roomName string) ([]song.Song, error)
	// now playing
	SetNowPlaying(ctx context.Context, params *room.SetNowPlayingParams) error
	GetNowPlaying(ctx context.Context, roomName string) (room.NowPlaying, error)
	ClearNowPlaying(ctx context.Context, roomName string) error
	// lifetime
	Expire(ctx context.Context, roomName string, d time.Duration) error
}

type iConnRepo interface {
	Add(conn *wsrouter.Conn, memberID string) error
	RemoveByConn(conn *wsrouter.Conn) (string, error)
	GetConn(memberID string) (*wsrouter.Conn, error)
	GetConns(memberIDs []string) []*wsrouter.Conn
	All() []*wsrouter.Conn
}

type Config struct {
	MembersLimit int
	QueueLimit   int
	// RoomExp is how long an empty room keeps its queue.
	RoomExp time.Duration
	// MaxStartDrift bounds how far a requested start instant may be from
	// server time before it is replaced with now+PlayLead.
	MaxStartDrift time.Duration
	PlayLead      time.Duration
}

type service struct {
	roomRepo iRoomRepo
	connRepo iConnRepo
	clock    clock.Clock
	logger   zerolog.Logger
	cfg      Config
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, clk clock.Clock, logger zerolog.Logger, cfg Config) *service {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.PlayLead <= 0 {
		cfg.PlayLead = 2 * time.Second
	}

	return &service{
		roomRepo: roomRepo,
		connRepo: connRepo,
		clock:    clk,
		logger:   logger.With().Str("component", "service.room").Logger(),
		cfg:      cfg,
	}
}
