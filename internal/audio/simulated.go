// Package audio provides the players the playback controller drives.
package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/groovify/beatsync/internal/song"
)

var ErrNotPlaying = errors.New("nothing is playing")

// Simulated plays nothing audible. It tracks a virtual position on the
// given clock and reports the end of a song once its duration has passed.
// Songs without a known duration play until stopped or replaced.
type Simulated struct {
	clock  clock.Clock
	logger zerolog.Logger

	mu        sync.Mutex
	current   *song.Song
	base      time.Duration
	startedAt time.Time
	timer     *clock.Timer
	gen       uint64
	finished  func(string, error)
}

func NewSimulated(clk clock.Clock, logger zerolog.Logger) *Simulated {
	if clk == nil {
		clk = clock.New()
	}
	return &Simulated{
		clock:  clk,
		logger: logger.With().Str("component", "audio").Str("player", "simulated").Logger(),
	}
}

func (p *Simulated) OnFinished(f func(string, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = f
}

func (p *Simulated) Play(_ context.Context, s song.Song) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = &s
	p.arm(0)
	p.logger.Debug().Str("song_id", s.ID).Msg("play")
	return nil
}

func (p *Simulated) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return ErrNotPlaying
	}
	if pos < 0 {
		pos = 0
	}
	p.arm(pos)
	p.logger.Debug().Dur("position", pos).Msg("seek")
	return nil
}

func (p *Simulated) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.gen++
	p.stopTimer()
	p.current = nil
	return nil
}

// Position is the virtual playhead of the current song.
func (p *Simulated) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return 0
	}
	pos := p.base + p.clock.Since(p.startedAt)
	if d := p.current.Duration(); d > 0 && pos > d {
		pos = d
	}
	return pos
}

func (p *Simulated) Playing() (song.Song, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return song.Song{}, false
	}
	return *p.current, true
}

func (p *Simulated) arm(pos time.Duration) {
	p.gen++
	p.stopTimer()
	p.base = pos
	p.startedAt = p.clock.Now()

	d := p.current.Duration()
	if d <= 0 {
		return
	}

	gen, id := p.gen, p.current.ID
	p.timer = p.clock.AfterFunc(max(d-pos, 0), func() { p.end(gen, id) })
}

func (p *Simulated) end(gen uint64, id string) {
	p.mu.Lock()
	if gen != p.gen {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.current = nil
	finished := p.finished
	p.mu.Unlock()

	if finished != nil {
		finished(id, nil)
	}
}

func (p *Simulated) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
