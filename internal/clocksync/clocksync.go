// Package clocksync estimates the offset between the local clock and the
// coordination server's clock with a single round-trip probe.
//
// One-way delay is taken as RTT/2, so asymmetric network paths bias the
// estimate by half the asymmetry.
package clocksync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const DefaultInterval = 30 * time.Second

// Prober asks the time authority for its current time.
type Prober interface {
	Probe(ctx context.Context) (time.Time, error)
}

type ProberFunc func(ctx context.Context) (time.Time, error)

func (f ProberFunc) Probe(ctx context.Context) (time.Time, error) { return f(ctx) }

// Synchronizer owns the clock offset. Only Sync mutates it.
type Synchronizer struct {
	prober  Prober
	clock   clock.Clock
	logger  zerolog.Logger
	timeout time.Duration

	offset   atomic.Int64 // milliseconds
	lastSync atomic.Int64 // unix millis of last successful probe
	lastRTT  atomic.Int64 // milliseconds

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*Synchronizer)

func WithClock(c clock.Clock) Option { return func(s *Synchronizer) { s.clock = c } }

func WithLogger(l zerolog.Logger) Option {
	return func(s *Synchronizer) { s.logger = l.With().Str("component", "clocksync").Logger() }
}

// WithTimeout bounds a single probe.
func WithTimeout(d time.Duration) Option { return func(s *Synchronizer) { s.timeout = d } }

func New(prober Prober, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		prober:  prober,
		clock:   clock.New(),
		logger:  zerolog.Nop(),
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sync performs one probe. On failure the previous offset stays in effect.
func (s *Synchronizer) Sync(ctx context.Context) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	t0 := s.clock.Now()
	serverTime, err := s.prober.Probe(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Dur("offset", s.Offset()).Msg("time sync failed, keeping previous offset")
		return fmt.Errorf("failed to probe server time: %w", err)
	}
	t1 := s.clock.Now()

	rtt := t1.Sub(t0)
	estimated := serverTime.Add(rtt / 2)
	offset := estimated.Sub(t1).Round(time.Millisecond)

	s.offset.Store(offset.Milliseconds())
	s.lastRTT.Store(rtt.Milliseconds())
	s.lastSync.Store(t1.UnixMilli())

	s.logger.Debug().Dur("offset", offset).Dur("rtt", rtt).Msg("time synced")
	return nil
}

// Offset is estimatedServerTime - localTime.
func (s *Synchronizer) Offset() time.Duration {
	return time.Duration(s.offset.Load()) * time.Millisecond
}

// Now is the current estimated server time.
func (s *Synchronizer) Now() time.Time {
	return s.clock.Now().Add(s.Offset())
}

// RTT of the last successful probe.
func (s *Synchronizer) RTT() time.Duration {
	return time.Duration(s.lastRTT.Load()) * time.Millisecond
}

// LastSync reports when the last successful probe completed, zero if never.
func (s *Synchronizer) LastSync() time.Time {
	ms := s.lastSync.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Start syncs once immediately and then every interval until Stop.
// Calling Start while running restarts the loop.
func (s *Synchronizer) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	ticker := s.clock.Ticker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()

		_ = s.Sync(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Sync(ctx)
			}
		}
	}()
}

// Stop ends the refresh loop and waits for it to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
