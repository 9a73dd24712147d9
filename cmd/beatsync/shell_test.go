package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groovify/beatsync/internal/beatsync"
	"github.com/groovify/beatsync/internal/session"
	"github.com/groovify/beatsync/internal/song"
)

type fakeClient struct {
	calls []string
	songs []song.Song
	snap  beatsync.Snapshot
}

func (f *fakeClient) CreateRoom(name string) error {
	f.calls = append(f.calls, "create "+name)
	return nil
}

func (f *fakeClient) JoinRoom(name string) error {
	f.calls = append(f.calls, "join "+name)
	return nil
}

func (f *fakeClient) LeaveRoom() error {
	f.calls = append(f.calls, "leave")
	return nil
}

func (f *fakeClient) Enqueue(s song.Song) error {
	f.calls = append(f.calls, "enqueue")
	f.songs = append(f.songs, s)
	return nil
}

func (f *fakeClient) RemoveFromQueue(index int) error {
	f.calls = append(f.calls, "remove "+strings.Repeat("x", index))
	return nil
}

func (f *fakeClient) ClearQueue() error {
	f.calls = append(f.calls, "clear")
	return nil
}

func (f *fakeClient) PlayNext() error {
	f.calls = append(f.calls, "next")
	return nil
}

func (f *fakeClient) PlaySong(s song.Song) error {
	f.calls = append(f.calls, "play")
	f.songs = append(f.songs, s)
	return nil
}

func (f *fakeClient) SetAnyoneCanControl(enabled bool) error {
	if enabled {
		f.calls = append(f.calls, "control on")
	} else {
		f.calls = append(f.calls, "control off")
	}
	return nil
}

func (f *fakeClient) RequestQueueSync() error {
	f.calls = append(f.calls, "sync")
	return nil
}

func (f *fakeClient) Snapshot() beatsync.Snapshot { return f.snap }

func TestShellDispatch(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer
	sh := newShell(client, &out)

	input := strings.Join([]string{
		"create  lounge ",
		"join lounge",
		"",
		"add https://example.com/a.mp3 Song A | Artist A | 3:05",
		"rm 2",
		"clear",
		"next",
		"play https://example.com/b.mp3",
		"control on",
		"CONTROL off",
		"sync",
		"leave",
		"quit",
		"join never-reached",
	}, "\n")

	require.NoError(t, sh.run(context.Background(), strings.NewReader(input)))

	assert.Equal(t, []string{
		"create lounge", "join lounge", "enqueue", "remove xx", "clear", "next",
		"play", "control on", "control off", "sync", "leave",
	}, client.calls)

	require.Len(t, client.songs, 2)
	a := client.songs[0]
	assert.Equal(t, "Song A", a.TrackName)
	assert.Equal(t, "Artist A", a.ArtistsString)
	assert.Equal(t, "3:05", a.DurationFormatted)
	assert.Equal(t, song.IDFromURL("https://example.com/a.mp3"), a.ID)

	b := client.songs[1]
	assert.Equal(t, song.UnknownTrack, b.TrackName)
	assert.Equal(t, song.UnknownArtist, b.ArtistsString)

	assert.Empty(t, out.String())
}

func TestShellErrors(t *testing.T) {
	tests := []struct {
		line string
		err  error
	}{
		{"dance", errUnknownCmd},
		{"join", errMissingArg},
		{"add", errMissingArg},
		{"rm -1", errInvalidIndex},
		{"rm first", errInvalidIndex},
		{"control maybe", errMissingArg},
		{"quit", errQuit},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			sh := newShell(&fakeClient{}, &bytes.Buffer{})
			assert.ErrorIs(t, sh.exec(tt.line), tt.err)
		})
	}

	_, err := parseSong("https://example.com/a.mp3 A | B | soon")
	assert.ErrorContains(t, err, "invalid duration")
}

func TestShellReportsErrorsAndContinues(t *testing.T) {
	client := &fakeClient{}
	var out bytes.Buffer
	sh := newShell(client, &out)

	require.NoError(t, sh.run(context.Background(), strings.NewReader("bogus\nsync\n")))

	assert.Contains(t, out.String(), `error: unknown command "bogus"`)
	assert.Equal(t, []string{"sync"}, client.calls)
}

func TestFormatStatus(t *testing.T) {
	assert.Equal(t, "disconnected, clock offset 0s\nnot in a room\n", formatStatus(beatsync.Snapshot{}))

	playing := song.Normalize(song.Song{GithubURL: "u1", TrackName: "One", ArtistsString: "X"})
	got := formatStatus(beatsync.Snapshot{
		Connected:     true,
		ClockOffset:   1500 * time.Millisecond,
		LastClockSync: time.Date(2024, 5, 1, 12, 30, 5, 0, time.Local),
		Session: session.View{
			State:            session.Admin,
			Room:             "lounge",
			AnyoneCanControl: true,
		},
		NowPlaying: &playing,
		Queue: []song.Song{
			song.Normalize(song.Song{GithubURL: "u2", TrackName: "Two", ArtistsString: "Y", DurationFormatted: "2:00"}),
		},
	})

	assert.Contains(t, got, "connected, clock offset 1.5s (synced 12:30:05)\n")
	assert.Contains(t, got, `room "lounge" as admin, anyone can control`)
	assert.Contains(t, got, "now playing: X - One")
	assert.Contains(t, got, "  0. Y - Two (2:00)")
}

func TestShellNotice(t *testing.T) {
	var out bytes.Buffer
	sh := newShell(&fakeClient{}, &out)

	sh.notice(beatsync.Notice{Level: beatsync.LevelWarn, Message: "Queue sync may be delayed"})

	assert.Equal(t, "[warn] Queue sync may be delayed\n", out.String())
}
