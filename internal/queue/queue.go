// Package queue mirrors the room's shared queue on the client. The server
// broadcast is authoritative; local edits are predictions it overwrites.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"golang.org/x/exp/slices"

	"github.com/groovify/beatsync/internal/song"
)

var (
	ErrQueueEmpty      = errors.New("queue is empty")
	ErrIndexOutOfRange = errors.New("queue index out of range")
	ErrAlreadyQueued   = errors.New("song is already in the queue")
)

// DefaultSyncSettle is how long an unanswered sync request blocks the next one.
const DefaultSyncSettle = 2 * time.Second

// Broadcast is a full-queue push from the server.
type Broadcast struct {
	Queue      []song.Song
	NowPlaying *song.Song
}

type State struct {
	Queue         []song.Song
	NowPlaying    *song.Song
	LastBroadcast time.Time
}

// Replace applies a broadcast to state. The queue is replaced wholesale,
// now playing follows the broadcast even when it is nil, and the
// staleness marker moves to now.
func Replace(_ State, b Broadcast, now time.Time) State {
	next := State{
		Queue:         song.NormalizeAll(b.Queue),
		LastBroadcast: now,
	}
	if b.NowPlaying != nil {
		np := song.Normalize(*b.NowPlaying)
		next.NowPlaying = &np
	}

	return next
}

type Reconciler struct {
	mu          sync.Mutex
	state       State
	syncing     bool
	syncStarted time.Time

	clock  clock.Clock
	settle time.Duration
	logger zerolog.Logger
}

type Option func(*Reconciler)

func WithClock(c clock.Clock) Option { return func(r *Reconciler) { r.clock = c } }

func WithLogger(l zerolog.Logger) Option {
	return func(r *Reconciler) { r.logger = l.With().Str("component", "queue").Logger() }
}

func WithSyncSettle(d time.Duration) Option { return func(r *Reconciler) { r.settle = d } }

func NewReconciler(opts ...Option) *Reconciler {
	r := &Reconciler{
		state:  State{Queue: []song.Song{}},
		clock:  clock.New(),
		settle: DefaultSyncSettle,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Apply replaces local state with a server broadcast and ends any
// in-flight sync.
func (r *Reconciler) Apply(b Broadcast) State {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = Replace(r.state, b, r.clock.Now())
	r.syncing = false
	r.logger.Debug().Int("queue_len", len(r.state.Queue)).Bool("now_playing", r.state.NowPlaying != nil).Msg("queue replaced")

	return r.snapshot()
}

// Enqueue appends s unless a song with the same id is already queued.
func (r *Reconciler) Enqueue(s song.Song) bool {
	s = song.Normalize(s)

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.state.Queue, func(q song.Song) bool { return q.ID == s.ID }) {
		return false
	}
	r.state.Queue = append(r.state.Queue, s)
	return true
}

func (r *Reconciler) RemoveAt(i int) (song.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i < 0 || i >= len(r.state.Queue) {
		return song.Song{}, ErrIndexOutOfRange
	}
	removed := r.state.Queue[i]
	r.state.Queue = slices.Delete(r.state.Queue, i, i+1)
	return removed, nil
}

func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Queue = []song.Song{}
}

// Front returns the next song without removing it.
func (r *Reconciler) Front() (song.Song, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.state.Queue) == 0 {
		return song.Song{}, ErrQueueEmpty
	}
	return r.state.Queue[0], nil
}

// Played removes the song with id from the queue wherever it now sits.
func (r *Reconciler) Played(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.IndexFunc(r.state.Queue, func(q song.Song) bool { return q.ID == id })
	if i < 0 {
		return false
	}
	r.state.Queue = slices.Delete(r.state.Queue, i, i+1)
	return true
}

func (r *Reconciler) SetNowPlaying(s *song.Song) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s == nil {
		r.state.NowPlaying = nil
		return
	}
	np := song.Normalize(*s)
	r.state.NowPlaying = &np
}

// Reset drops all local queue state.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.state = State{Queue: []song.Song{}}
	r.syncing = false
}

func (r *Reconciler) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Reconciler) snapshot() State {
	s := State{
		Queue:         slices.Clone(r.state.Queue),
		LastBroadcast: r.state.LastBroadcast,
	}
	if s.Queue == nil {
		s.Queue = []song.Song{}
	}
	if r.state.NowPlaying != nil {
		np := *r.state.NowPlaying
		s.NowPlaying = &np
	}
	return s
}

// BeginSync marks a sync request as in flight. It returns false while an
// earlier request is still unanswered and younger than the settle window.
func (r *Reconciler) BeginSync() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.syncing && now.Sub(r.syncStarted) < r.settle {
		return false
	}
	r.syncing = true
	r.syncStarted = now
	return true
}

// AbortSync clears the in-flight flag after a request failed to send.
func (r *Reconciler) AbortSync() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncing = false
}

func (r *Reconciler) Syncing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncing && r.clock.Now().Sub(r.syncStarted) < r.settle
}

func (r *Reconciler) LastBroadcast() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.LastBroadcast
}
