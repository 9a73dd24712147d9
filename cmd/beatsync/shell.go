package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/groovify/beatsync/internal/beatsync"
	"github.com/groovify/beatsync/internal/song"
)

var (
	errQuit         = errors.New("quit")
	errUnknownCmd   = errors.New("unknown command")
	errMissingArg   = errors.New("missing argument")
	errInvalidIndex = errors.New("index must be a non-negative number")
)

// roomClient is the part of the client the shell drives.
type roomClient interface {
	CreateRoom(name string) error
	JoinRoom(name string) error
	LeaveRoom() error
	Enqueue(s song.Song) error
	RemoveFromQueue(index int) error
	ClearQueue() error
	PlayNext() error
	PlaySong(s song.Song) error
	SetAnyoneCanControl(enabled bool) error
	RequestQueueSync() error
	Snapshot() beatsync.Snapshot
}

const helpText = `commands:
  create <room>                     create a room and become admin
  join <room>                       join a room as listener
  leave                             leave the current room
  add <url> [title | artist | m:ss] add a song to the queue
  rm <index>                        remove the queued song at index
  clear                             clear the queue
  next                              play the first queued song
  play <url> [title | artist | m:ss] play a song right away
  control on|off                    let everyone edit the queue
  sync                              request the queue from the server
  status                            show room, queue and playback
  quit                              exit
`

type shell struct {
	client roomClient

	mu  sync.Mutex
	out io.Writer
}

func newShell(client roomClient, out io.Writer) *shell {
	return &shell{client: client, out: out}
}

func (s *shell) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) notice(n beatsync.Notice) {
	s.printf("[%s] %s\n", n.Level, n.Message)
}

// run reads commands from r until quit, EOF or ctx is done.
func (s *shell) run(ctx context.Context, r io.Reader) error {
	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := s.exec(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				s.printf("error: %v\n", err)
			}
		}
	}
}

func (s *shell) exec(line string) error {
	name, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "":
		return nil
	case "help", "?":
		s.printf("%s", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	case "create":
		if rest == "" {
			return fmt.Errorf("%w: room name", errMissingArg)
		}
		return s.client.CreateRoom(rest)
	case "join":
		if rest == "" {
			return fmt.Errorf("%w: room name", errMissingArg)
		}
		return s.client.JoinRoom(rest)
	case "leave":
		return s.client.LeaveRoom()
	case "add":
		sg, err := parseSong(rest)
		if err != nil {
			return err
		}
		return s.client.Enqueue(sg)
	case "play":
		sg, err := parseSong(rest)
		if err != nil {
			return err
		}
		return s.client.PlaySong(sg)
	case "rm", "remove":
		i, err := strconv.Atoi(rest)
		if err != nil || i < 0 {
			return errInvalidIndex
		}
		return s.client.RemoveFromQueue(i)
	case "clear":
		return s.client.ClearQueue()
	case "next":
		return s.client.PlayNext()
	case "control":
		switch strings.ToLower(rest) {
		case "on":
			return s.client.SetAnyoneCanControl(true)
		case "off":
			return s.client.SetAnyoneCanControl(false)
		default:
			return fmt.Errorf("%w: on or off", errMissingArg)
		}
	case "sync":
		return s.client.RequestQueueSync()
	case "status":
		s.printf("%s", formatStatus(s.client.Snapshot()))
		return nil
	default:
		return fmt.Errorf("%w %q, type help", errUnknownCmd, name)
	}
}

// parseSong reads "<url> [title | artist | m:ss]".
func parseSong(arg string) (song.Song, error) {
	url, rest, _ := strings.Cut(strings.TrimSpace(arg), " ")
	if url == "" {
		return song.Song{}, fmt.Errorf("%w: url", errMissingArg)
	}

	s := song.Song{GithubURL: url}
	fields := strings.Split(rest, "|")
	for i, f := range fields {
		f = strings.TrimSpace(f)
		switch i {
		case 0:
			s.TrackName = f
		case 1:
			s.ArtistsString = f
		case 2:
			s.DurationFormatted = f
		}
	}
	if s.DurationFormatted != "" && s.Duration() == 0 {
		return song.Song{}, fmt.Errorf("invalid duration %q, want m:ss", s.DurationFormatted)
	}

	return song.Normalize(s), nil
}

func formatStatus(snap beatsync.Snapshot) string {
	var b strings.Builder

	conn := "disconnected"
	if snap.Connected {
		conn = "connected"
	}
	fmt.Fprintf(&b, "%s, clock offset %s", conn, snap.ClockOffset.Round(time.Millisecond))
	if !snap.LastClockSync.IsZero() {
		fmt.Fprintf(&b, " (synced %s)", snap.LastClockSync.Format(time.TimeOnly))
	}
	b.WriteString("\n")

	if !snap.Session.InRoom() {
		b.WriteString("not in a room\n")
		return b.String()
	}

	fmt.Fprintf(&b, "room %q as %s", snap.Session.Room, snap.Session.State)
	if snap.Session.AnyoneCanControl {
		b.WriteString(", anyone can control")
	}
	b.WriteString("\n")

	switch {
	case snap.Pending != nil:
		fmt.Fprintf(&b, "starting: %s\n", snap.Pending)
	case snap.NowPlaying != nil:
		fmt.Fprintf(&b, "now playing: %s\n", snap.NowPlaying)
	}

	if len(snap.Queue) == 0 {
		b.WriteString("queue is empty\n")
	}
	for i, s := range snap.Queue {
		fmt.Fprintf(&b, "%3d. %s", i, s)
		if s.DurationFormatted != "" {
			fmt.Fprintf(&b, " (%s)", s.DurationFormatted)
		}
		b.WriteString("\n")
	}

	return b.String()
}
