package queue

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

const (
	DefaultHealthInterval = 60 * time.Second
	DefaultResyncInterval = 30 * time.Second
	DefaultStaleAfter     = 60 * time.Second
)

// StaleWarning is raised when no broadcast has landed for a while. It is
// advisory only.
type StaleWarning struct {
	Since time.Time
	Age   time.Duration
}

type MonitorConfig struct {
	HealthInterval time.Duration
	ResyncInterval time.Duration
	StaleAfter     time.Duration

	// RequestSync asks the server for a full-queue broadcast.
	RequestSync func() error
	OnStale     func(StaleWarning)
}

// Monitor runs the health check and the periodic resync while the client
// is connected and in a room.
type Monitor struct {
	rec    *Reconciler
	cfg    MonitorConfig
	clock  clock.Clock
	logger zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewMonitor(rec *Reconciler, cfg MonitorConfig, clk clock.Clock, logger zerolog.Logger) *Monitor {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = DefaultResyncInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if clk == nil {
		clk = clock.New()
	}

	return &Monitor{
		rec:    rec,
		cfg:    cfg,
		clock:  clk,
		logger: logger.With().Str("component", "queue_monitor").Logger(),
	}
}

// Start begins both periodic tasks. Calling Start while running restarts them.
func (m *Monitor) Start() {
	m.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})

	health := m.clock.Ticker(m.cfg.HealthInterval)
	resync := m.clock.Ticker(m.cfg.ResyncInterval)
	go m.loop(ctx, m.clock.Now(), health, resync, m.done)
}

// Stop halts both tasks and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

func (m *Monitor) loop(ctx context.Context, started time.Time, health, resync *clock.Ticker, done chan struct{}) {
	defer close(done)
	defer health.Stop()
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			m.checkHealth(started)
		case <-resync.C:
			m.resync()
		}
	}
}

func (m *Monitor) checkHealth(started time.Time) {
	last := m.rec.LastBroadcast()
	if last.Before(started) {
		last = started
	}

	age := m.clock.Since(last)
	if age < m.cfg.StaleAfter {
		return
	}

	m.logger.Warn().Dur("age", age).Msg("queue sync may be delayed")
	if m.cfg.OnStale != nil {
		m.cfg.OnStale(StaleWarning{Since: last, Age: age})
	}
}

func (m *Monitor) resync() {
	if m.cfg.RequestSync == nil || !m.rec.BeginSync() {
		return
	}

	if err := m.cfg.RequestSync(); err != nil {
		m.rec.AbortSync()
		m.logger.Warn().Err(err).Msg("periodic queue sync failed")
		return
	}
	m.logger.Debug().Msg("requested periodic queue sync")
}
