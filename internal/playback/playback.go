// Package playback starts songs at an absolute server-clock instant so
// every member of a room begins the same track together.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/groovify/beatsync/internal/song"
)

// Player is the audio output. Play must return once playback has begun.
// Finished reports end of track (err == nil) or a playback failure.
type Player interface {
	Play(ctx context.Context, s song.Song) error
	Seek(pos time.Duration) error
	Stop() error
	OnFinished(func(songID string, err error))
}

// ServerClock estimates the coordination server's current time.
type ServerClock interface {
	Now() time.Time
}

type PlayEvent struct {
	Song    song.Song
	StartAt time.Time
	// SeekTo marks a late-join catch-up; playback starts now at this position.
	SeekTo *time.Duration
}

// Finished is passed to the advance hook when the current song ends or fails.
type Finished struct {
	Song song.Song
	Err  error
}

type Controller struct {
	player Player
	server ServerClock
	clock  clock.Clock
	logger zerolog.Logger

	onAdvance func(Finished)
	onStart   func(song.Song)

	// startMu serializes calls into the player.
	startMu sync.Mutex

	mu      sync.Mutex
	gen     uint64
	timer   *clock.Timer
	pending *song.Song
	current *song.Song
}

type Option func(*Controller)

func WithClock(c clock.Clock) Option { return func(pc *Controller) { pc.clock = c } }

func WithLogger(l zerolog.Logger) Option {
	return func(pc *Controller) { pc.logger = l.With().Str("component", "playback").Logger() }
}

// WithAdvance sets the hook run when the current song ends or fails.
func WithAdvance(f func(Finished)) Option { return func(pc *Controller) { pc.onAdvance = f } }

// WithOnStart sets a hook run after a song has started.
func WithOnStart(f func(song.Song)) Option { return func(pc *Controller) { pc.onStart = f } }

func New(player Player, server ServerClock, opts ...Option) *Controller {
	c := &Controller{
		player: player,
		server: server,
		clock:  clock.New(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	player.OnFinished(c.Finished)

	return c
}

// OnPlayEvent schedules ev, superseding any start that has not fired yet.
func (c *Controller) OnPlayEvent(ev PlayEvent) {
	s := song.Normalize(ev.Song)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.stopTimerLocked()

	if ev.SeekTo != nil {
		c.mu.Unlock()
		c.logger.Info().Str("song_id", s.ID).Dur("seek_to", *ev.SeekTo).Msg("catching up with room")
		c.start(gen, s, *ev.SeekTo)
		return
	}

	delay := ev.StartAt.Sub(c.server.Now())
	if delay > 0 {
		c.pending = &s
		c.timer = c.clock.AfterFunc(delay, func() { c.start(gen, s, 0) })
		c.mu.Unlock()
		c.logger.Info().Str("song_id", s.ID).Dur("delay", delay).Msg("scheduled playback")
		return
	}
	c.mu.Unlock()

	c.logger.Info().Str("song_id", s.ID).Dur("late_by", -delay).Msg("starting late")
	c.start(gen, s, -delay)
}

// Cancel drops any scheduled start and stops the current song.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.gen++
	c.stopTimerLocked()
	playing := c.current != nil
	c.current = nil
	c.mu.Unlock()

	c.startMu.Lock()
	defer c.startMu.Unlock()
	if playing {
		if err := c.player.Stop(); err != nil {
			c.logger.Warn().Err(err).Msg("failed to stop player")
		}
	}
}

// Finished takes the advance path for songID. Reports for a song that is
// no longer current are ignored.
func (c *Controller) Finished(songID string, err error) {
	c.mu.Lock()
	if c.current == nil || c.current.ID != songID {
		c.mu.Unlock()
		return
	}
	done := *c.current
	c.current = nil
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn().Err(err).Str("song_id", songID).Msg("playback failed, advancing")
	} else {
		c.logger.Info().Str("song_id", songID).Msg("song ended")
	}
	if c.onAdvance != nil {
		c.onAdvance(Finished{Song: done, Err: err})
	}
}

// Current returns the song the controller last started.
func (c *Controller) Current() (song.Song, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return song.Song{}, false
	}
	return *c.current, true
}

// Pending returns the song waiting on the start timer, if any.
func (c *Controller) Pending() (song.Song, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return song.Song{}, false
	}
	return *c.pending, true
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pending = nil
}

func (c *Controller) start(gen uint64, s song.Song, offset time.Duration) {
	started, err := c.play(gen, s, offset)
	if !started {
		return
	}
	if err != nil {
		c.Finished(s.ID, err)
		return
	}

	c.logger.Info().Str("song_id", s.ID).Str("song", s.String()).Msg("playing")
	if c.onStart != nil {
		c.onStart(s)
	}
}

func (c *Controller) play(gen uint64, s song.Song, offset time.Duration) (bool, error) {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return false, nil
	}
	c.timer = nil
	c.pending = nil
	c.current = &s
	c.mu.Unlock()

	if err := c.player.Play(context.Background(), s); err != nil {
		return true, err
	}
	if offset > 0 {
		if err := c.player.Seek(offset); err != nil {
			c.logger.Warn().Err(err).Dur("offset", offset).Msg("failed to seek")
		}
	}

	return true, nil
}
