package queue

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groovify/beatsync/internal/song"
)

func track(id string) song.Song {
	return song.Song{ID: id, TrackName: "Track " + id, ArtistsString: "Artist", GithubURL: "https://cdn.example/" + id + ".mp3"}
}

func ids(songs []song.Song) []string {
	out := make([]string, 0, len(songs))
	for _, s := range songs {
		out = append(out, s.ID)
	}
	return out
}

func TestReplaceIsWholesale(t *testing.T) {
	now := time.Unix(1700000000, 0)
	np := track("x")
	old := State{Queue: []song.Song{track("a"), track("b")}, NowPlaying: &np}

	got := Replace(old, Broadcast{Queue: []song.Song{track("c"), {ID: "d"}}}, now)

	assert.Equal(t, []string{"c", "d"}, ids(got.Queue))
	assert.Nil(t, got.NowPlaying)
	assert.Equal(t, now, got.LastBroadcast)
	assert.Equal(t, song.UnknownTrack, got.Queue[1].TrackName)
	assert.Equal(t, song.UnknownArtist, got.Queue[1].ArtistsString)
}

func TestReplaceIsIdempotent(t *testing.T) {
	now := time.Unix(1700000000, 0)
	np := track("n")
	b := Broadcast{Queue: []song.Song{track("a"), track("b")}, NowPlaying: &np}

	once := Replace(State{}, b, now)
	twice := Replace(once, b, now)
	assert.Equal(t, once, twice)
}

func TestApplyNilQueue(t *testing.T) {
	r := NewReconciler()
	got := r.Apply(Broadcast{})
	assert.NotNil(t, got.Queue)
	assert.Empty(t, got.Queue)
}

func TestEnqueueDedupes(t *testing.T) {
	r := NewReconciler()
	assert.True(t, r.Enqueue(track("a")))
	assert.False(t, r.Enqueue(track("a")))
	assert.True(t, r.Enqueue(track("b")))

	assert.Equal(t, []string{"a", "b"}, ids(r.Snapshot().Queue))
}

func TestEnqueueDerivesMissingID(t *testing.T) {
	r := NewReconciler()
	s := song.Song{GithubURL: "https://cdn.example/z.mp3"}
	assert.True(t, r.Enqueue(s))
	assert.False(t, r.Enqueue(s))
	assert.Equal(t, song.IDFromURL(s.GithubURL), r.Snapshot().Queue[0].ID)
}

func TestBroadcastOverwritesOptimisticEdits(t *testing.T) {
	r := NewReconciler()
	r.Apply(Broadcast{Queue: []song.Song{track("a")}})
	r.Enqueue(track("rejected"))
	r.Clear()

	got := r.Apply(Broadcast{Queue: []song.Song{track("a")}})
	assert.Equal(t, []string{"a"}, ids(got.Queue))
}

func TestRemoveAt(t *testing.T) {
	r := NewReconciler()
	r.Apply(Broadcast{Queue: []song.Song{track("a"), track("b"), track("c")}})

	removed, err := r.RemoveAt(1)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.ID)
	assert.Equal(t, []string{"a", "c"}, ids(r.Snapshot().Queue))

	_, err = r.RemoveAt(2)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = r.RemoveAt(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestPlayedRemovesByValue(t *testing.T) {
	r := NewReconciler()
	r.Apply(Broadcast{Queue: []song.Song{track("a"), track("b"), track("c")}})
	_, err := r.RemoveAt(0)
	require.NoError(t, err)

	assert.True(t, r.Played("c"))
	assert.False(t, r.Played("c"))
	assert.Equal(t, []string{"b"}, ids(r.Snapshot().Queue))
}

func TestFront(t *testing.T) {
	r := NewReconciler()
	_, err := r.Front()
	assert.ErrorIs(t, err, ErrQueueEmpty)

	r.Enqueue(track("a"))
	got, err := r.Front()
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
	assert.Len(t, r.Snapshot().Queue, 1)
}

func TestSnapshotIsACopy(t *testing.T) {
	r := NewReconciler()
	np := track("n")
	r.Apply(Broadcast{Queue: []song.Song{track("a")}, NowPlaying: &np})

	snap := r.Snapshot()
	snap.Queue[0].ID = "mutated"
	snap.NowPlaying.ID = "mutated"

	again := r.Snapshot()
	assert.Equal(t, "a", again.Queue[0].ID)
	assert.Equal(t, "n", again.NowPlaying.ID)
}

func TestReset(t *testing.T) {
	r := NewReconciler()
	np := track("n")
	r.Apply(Broadcast{Queue: []song.Song{track("a")}, NowPlaying: &np})
	require.True(t, r.BeginSync())

	r.Reset()
	got := r.Snapshot()
	assert.Empty(t, got.Queue)
	assert.Nil(t, got.NowPlaying)
	assert.True(t, got.LastBroadcast.IsZero())
	assert.False(t, r.Syncing())
}

func TestSyncSettles(t *testing.T) {
	mock := clock.NewMock()
	r := NewReconciler(WithClock(mock))

	require.True(t, r.BeginSync())
	assert.False(t, r.BeginSync())
	assert.True(t, r.Syncing())

	mock.Add(DefaultSyncSettle)
	assert.False(t, r.Syncing())
	assert.True(t, r.BeginSync())

	r.Apply(Broadcast{})
	assert.False(t, r.Syncing())
	assert.True(t, r.BeginSync())
}
