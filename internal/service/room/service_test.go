package room

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/groovify/beatsync/internal/repository/connection/inmemory"
	roomRedis "github.com/groovify/beatsync/internal/repository/room/redis"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/pkg/wsrouter"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc   *service
	clock *clock.Mock
	mr    *miniredis.Miniredis
	conns map[string]*wsrouter.Conn
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	return &fixture{
		svc:   NewService(roomRedis.NewRepo(rc, zerolog.Nop()), inmemory.NewRepo(zerolog.Nop()), mock, zerolog.Nop(), cfg),
		clock: mock,
		mr:    mr,
		conns: make(map[string]*wsrouter.Conn),
	}
}

func (f *fixture) connect(t *testing.T, memberID string) *wsrouter.Conn {
	t.Helper()
	conn := wsrouter.NewConn(nil)
	require.NoError(t, f.svc.ConnectMember(conn, memberID))
	f.conns[memberID] = conn
	return conn
}

func (f *fixture) join(t *testing.T, memberID, roomName string, asAdmin bool) JoinRoomResponse {
	t.Helper()
	f.connect(t, memberID)
	resp, err := f.svc.JoinRoom(context.Background(), &JoinRoomParams{MemberID: memberID, RoomName: roomName, IsAdmin: asAdmin})
	require.NoError(t, err)
	return resp
}

func track(id, duration string) song.Song {
	return song.Song{ID: id, TrackName: "Track " + id, ArtistsString: "Artist", GithubURL: "https://cdn.example/" + id + ".mp3", DurationFormatted: duration}
}

var defaultCfg = Config{MembersLimit: 3, QueueLimit: 2, RoomExp: 5 * time.Minute, MaxStartDrift: time.Minute}

func TestJoinRoomAdminRace(t *testing.T) {
	f := newFixture(t, defaultCfg)

	first := f.join(t, "alice", "party", true)
	assert.True(t, first.IsAdmin)
	assert.Equal(t, "party", first.RoomName)
	assert.Empty(t, first.Queue)
	assert.Nil(t, first.CatchUp)

	second := f.join(t, "bob", "party", true)
	assert.False(t, second.IsAdmin, "second creator must become a listener")

	third := f.join(t, "carol", "party", false)
	assert.False(t, third.IsAdmin)

	f.connect(t, "dave")
	_, err := f.svc.JoinRoom(context.Background(), &JoinRoomParams{MemberID: "dave", RoomName: "party"})
	assert.ErrorIs(t, err, ErrRoomFull)

	_, err = f.svc.JoinRoom(context.Background(), &JoinRoomParams{MemberID: "alice", RoomName: "other"})
	assert.ErrorIs(t, err, ErrAlreadyInRoom)

	_, err = f.svc.JoinRoom(context.Background(), &JoinRoomParams{MemberID: "dave", RoomName: "   "})
	assert.ErrorIs(t, err, ErrInvalidRoomName)
}

func TestJoinRoomValidatesName(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()

	f.connect(t, "carol")
	_, err := f.svc.JoinRoom(ctx, &JoinRoomParams{MemberID: "carol", RoomName: strings.Repeat("a", 65)})
	assert.ErrorIs(t, err, ErrInvalidRoomName)

	// the limit counts characters, not bytes
	long := f.join(t, "alice", strings.Repeat("é", 64), true)
	assert.Equal(t, strings.Repeat("é", 64), long.RoomName)

	padded := f.join(t, "bob", "  party ", true)
	assert.Equal(t, "party", padded.RoomName)
	assert.Equal(t, "party", NormalizeRoomName(" party  "))

	roomName, err := f.svc.MemberRoom(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "party", roomName)
}

func TestQueuePermissions(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	f.join(t, "alice", "party", true)
	f.join(t, "bob", "party", false)

	_, err := f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "bob", RoomName: "party", Song: track("a", "")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.ToggleAnyoneCanControl(ctx, &ToggleAnyoneCanControlParams{SenderID: "bob", RoomName: "party", Enabled: true})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	toggled, err := f.svc.ToggleAnyoneCanControl(ctx, &ToggleAnyoneCanControlParams{SenderID: "alice", RoomName: "party", Enabled: true})
	require.NoError(t, err)
	assert.True(t, toggled.Enabled)
	assert.Len(t, toggled.Conns, 2)

	resp, err := f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "bob", RoomName: "party", Song: track("a", "")})
	require.NoError(t, err)
	assert.Equal(t, []song.Song{track("a", "")}, resp.Queue)
	assert.Equal(t, []*wsrouter.Conn{f.conns["alice"], f.conns["bob"]}, resp.Conns)

	_, err = f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: track("a", "")})
	assert.ErrorIs(t, err, ErrSongAlreadyQueued)

	_, err = f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: track("b", "")})
	require.NoError(t, err)
	_, err = f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: track("c", "")})
	assert.ErrorIs(t, err, ErrQueueLimitReached)

	_, err = f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: song.Song{TrackName: "no url"}})
	assert.ErrorIs(t, err, ErrInvalidSong)

	// remove and clear stay admin only even with control relaxed
	_, err = f.svc.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderID: "bob", RoomName: "party", Index: 0})
	assert.ErrorIs(t, err, ErrPermissionDenied)
	_, err = f.svc.ClearQueue(ctx, &ClearQueueParams{SenderID: "bob", RoomName: "party"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = f.svc.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderID: "alice", RoomName: "party", Index: 5})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = f.svc.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderID: "alice", RoomName: "party", Index: -1})
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	resp, err = f.svc.RemoveFromQueue(ctx, &RemoveFromQueueParams{SenderID: "alice", RoomName: "party", Index: 0})
	require.NoError(t, err)
	assert.Equal(t, []song.Song{track("b", "")}, resp.Queue)

	resp, err = f.svc.ClearQueue(ctx, &ClearQueueParams{SenderID: "alice", RoomName: "party"})
	require.NoError(t, err)
	assert.Empty(t, resp.Queue)
}

func TestMembershipChecks(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	f.join(t, "alice", "party", true)
	f.join(t, "bob", "other", true)

	_, err := f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "bob", RoomName: "party", Song: track("a", "")})
	assert.ErrorIs(t, err, ErrRoomMismatch)

	_, err = f.svc.GetQueueState(ctx, &GetQueueStateParams{SenderID: "ghost", RoomName: "party"})
	assert.ErrorIs(t, err, ErrNotInRoom)

	_, err = f.svc.PlaySong(ctx, &PlaySongParams{SenderID: "bob", RoomName: "party", Song: track("a", ""), StartAt: f.clock.Now()})
	assert.ErrorIs(t, err, ErrRoomMismatch)
}

func TestPlaySong(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	f.join(t, "alice", "party", true)
	f.join(t, "bob", "party", false)

	_, err := f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: track("a", "3:00")})
	require.NoError(t, err)
	_, err = f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: track("b", "")})
	require.NoError(t, err)

	_, err = f.svc.PlaySong(ctx, &PlaySongParams{SenderID: "bob", RoomName: "party", Song: track("a", "3:00"), StartAt: f.clock.Now()})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	startAt := f.clock.Now().Add(2 * time.Second)
	resp, err := f.svc.PlaySong(ctx, &PlaySongParams{SenderID: "alice", RoomName: "party", Song: track("a", "3:00"), StartAt: startAt})
	require.NoError(t, err)
	assert.True(t, startAt.Equal(resp.StartAt))
	assert.Equal(t, "a", resp.Song.ID)
	assert.Equal(t, []song.Song{track("b", "")}, resp.Queue, "played song leaves the queue")
	require.NotNil(t, resp.NowPlaying)
	assert.Equal(t, "a", resp.NowPlaying.ID)
	assert.Len(t, resp.Conns, 2)

	resp, err = f.svc.PlaySong(ctx, &PlaySongParams{SenderID: "alice", RoomName: "party", Song: track("c", ""), StartAt: f.clock.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Add(2*time.Second).Equal(resp.StartAt), "stale start instant is rescheduled")
}

func TestJoinCatchUp(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	f.join(t, "alice", "party", true)

	startAt := f.clock.Now().Add(2 * time.Second)
	_, err := f.svc.PlaySong(ctx, &PlaySongParams{SenderID: "alice", RoomName: "party", Song: track("a", "1:00"), StartAt: startAt})
	require.NoError(t, err)

	// before the start instant the joiner gets the original schedule
	early := f.join(t, "bob", "party", false)
	require.NotNil(t, early.CatchUp)
	assert.Nil(t, early.CatchUp.SeekTo)
	assert.True(t, startAt.Equal(early.CatchUp.StartAt))

	f.clock.Add(32 * time.Second)
	late := f.join(t, "carol", "party", false)
	require.NotNil(t, late.CatchUp)
	require.NotNil(t, late.CatchUp.SeekTo)
	assert.Equal(t, 30*time.Second, *late.CatchUp.SeekTo)
	assert.Equal(t, "a", late.NowPlaying.ID)

	// once the song's duration has elapsed nothing is replayed
	f.clock.Add(time.Minute)
	_, err = f.svc.LeaveRoom(ctx, &LeaveRoomParams{MemberID: "carol"})
	require.NoError(t, err)
	done, err := f.svc.JoinRoom(ctx, &JoinRoomParams{MemberID: "carol", RoomName: "party"})
	require.NoError(t, err)
	assert.Nil(t, done.CatchUp)
	assert.Nil(t, done.NowPlaying)
}

func TestAdminHandover(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	alice := f.join(t, "alice", "party", true)
	require.True(t, alice.IsAdmin)
	f.join(t, "bob", "party", false)
	f.join(t, "carol", "party", false)

	memberID, left, err := f.svc.DisconnectMember(ctx, f.conns["alice"])
	require.NoError(t, err)
	assert.Equal(t, "alice", memberID)
	require.NotNil(t, left)
	assert.Equal(t, "bob", left.NewAdminID, "earliest remaining member is promoted")
	assert.Same(t, f.conns["bob"], left.NewAdminConn)

	_, err = f.svc.ClearQueue(ctx, &ClearQueueParams{SenderID: "bob", RoomName: "party"})
	require.NoError(t, err)

	// the old admin returning asks for the role back but the slot is taken
	back := f.join(t, "alice", "party", true)
	assert.False(t, back.IsAdmin)

	left2, err := f.svc.LeaveRoom(ctx, &LeaveRoomParams{MemberID: "carol"})
	require.NoError(t, err)
	assert.Empty(t, left2.NewAdminID)

	_, err = f.svc.LeaveRoom(ctx, &LeaveRoomParams{MemberID: "carol"})
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestHandOverAdminWithNoMembersLeft(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	f.join(t, "alice", "party", true)

	// members vanished underneath, e.g. the set expired
	f.mr.Del("room:party:members")

	newAdminID, err := f.svc.handOverAdmin(ctx, "party")
	require.NoError(t, err)
	assert.Empty(t, newAdminID)

	rm, err := f.svc.roomRepo.GetRoom(ctx, "party")
	require.NoError(t, err)
	assert.Empty(t, rm.AdminID)
}

func TestEmptyRoomExpires(t *testing.T) {
	f := newFixture(t, defaultCfg)
	ctx := context.Background()
	f.join(t, "alice", "party", true)
	_, err := f.svc.AddToQueue(ctx, &AddToQueueParams{SenderID: "alice", RoomName: "party", Song: track("a", "")})
	require.NoError(t, err)

	_, left, err := f.svc.DisconnectMember(ctx, f.conns["alice"])
	require.NoError(t, err)
	assert.True(t, left.Emptied)

	// a quick reconnect finds the queue and may claim admin again
	f.mr.FastForward(time.Minute)
	back := f.join(t, "alice2", "party", true)
	assert.True(t, back.IsAdmin)
	assert.Len(t, back.Queue, 1)

	_, _, err = f.svc.DisconnectMember(ctx, f.conns["alice2"])
	require.NoError(t, err)
	f.mr.FastForward(10 * time.Minute)

	fresh := f.join(t, "bob", "party", false)
	assert.Empty(t, fresh.Queue)
}

func TestDisconnectOutsideRoom(t *testing.T) {
	f := newFixture(t, defaultCfg)
	conn := f.connect(t, "alice")

	memberID, left, err := f.svc.DisconnectMember(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "alice", memberID)
	assert.Nil(t, left)

	_, _, err = f.svc.DisconnectMember(context.Background(), conn)
	assert.Error(t, err)
}
