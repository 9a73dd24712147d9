// Package beatsync wires the clock synchronizer, transport, room session,
// queue reconciler and playback controller into one client.
package beatsync

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/groovify/beatsync/internal/clocksync"
	"github.com/groovify/beatsync/internal/playback"
	"github.com/groovify/beatsync/internal/queue"
	"github.com/groovify/beatsync/internal/session"
	"github.com/groovify/beatsync/internal/song"
	"github.com/groovify/beatsync/internal/transport"
)

// Transport is the connection to the coordination server.
type Transport interface {
	Connect(endpoint string) error
	Disconnect()
	Connected() bool
	Send(eventType string, payload any) error
	Subscribe(eventType string, h transport.Handler) (unsubscribe func())
}

// ServerClock estimates server time and keeps itself fresh while started.
type ServerClock interface {
	Now() time.Time
	Offset() time.Duration
	LastSync() time.Time
	Start(interval time.Duration)
	Stop()
}

type Config struct {
	// Server is the coordination server base URL (http(s) or ws(s)).
	Server         string
	PlayLead       time.Duration
	ClockInterval  time.Duration
	ClockTimeout   time.Duration
	HealthInterval time.Duration
	ResyncInterval time.Duration
	RejoinDelay    time.Duration
	ResyncDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		PlayLead:       2 * time.Second,
		ClockInterval:  clocksync.DefaultInterval,
		ClockTimeout:   5 * time.Second,
		HealthInterval: queue.DefaultHealthInterval,
		ResyncInterval: queue.DefaultResyncInterval,
		RejoinDelay:    500 * time.Millisecond,
		ResyncDelay:    time.Second,
	}
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notice is a user-visible message.
type Notice struct {
	Level   Level
	Message string
}

type Snapshot struct {
	Connected     bool
	Session       session.View
	Queue         []song.Song
	NowPlaying    *song.Song
	LastBroadcast time.Time
	ClockOffset   time.Duration
	LastClockSync time.Time
	Pending       *song.Song
}

type Client struct {
	cfg       Config
	transport Transport
	server    ServerClock
	session   *session.Machine
	queue     *queue.Reconciler
	monitor   *queue.Monitor
	playback  *playback.Controller
	clock     clock.Clock
	logger    zerolog.Logger

	mu      sync.Mutex
	settle  []*clock.Timer
	epoch   uint64
	notices []func(Notice)
	unsubs  []func()
	started bool
}

type Option func(*options)

type options struct {
	clock  clock.Clock
	logger zerolog.Logger
	store  session.Store
	server ServerClock
}

func WithClock(c clock.Clock) Option { return func(o *options) { o.clock = c } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// WithStore sets where the room session survives restarts.
func WithStore(s session.Store) Option { return func(o *options) { o.store = s } }

// WithServerClock replaces the HTTP clock synchronizer.
func WithServerClock(s ServerClock) Option { return func(o *options) { o.server = s } }

func New(cfg Config, tr Transport, player playback.Player, opts ...Option) (*Client, error) {
	o := options{clock: clock.New(), logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	def := DefaultConfig()
	if cfg.PlayLead <= 0 {
		cfg.PlayLead = def.PlayLead
	}
	if cfg.ClockInterval <= 0 {
		cfg.ClockInterval = def.ClockInterval
	}
	if cfg.ClockTimeout <= 0 {
		cfg.ClockTimeout = def.ClockTimeout
	}
	if cfg.RejoinDelay <= 0 {
		cfg.RejoinDelay = def.RejoinDelay
	}
	if cfg.ResyncDelay <= 0 {
		cfg.ResyncDelay = def.ResyncDelay
	}

	if o.server == nil {
		base, err := HTTPBase(cfg.Server)
		if err != nil {
			return nil, err
		}
		o.server = clocksync.New(clocksync.NewHTTPProber(base),
			clocksync.WithClock(o.clock),
			clocksync.WithLogger(o.logger),
			clocksync.WithTimeout(cfg.ClockTimeout),
		)
	}

	c := &Client{
		cfg:       cfg,
		transport: tr,
		server:    o.server,
		session:   session.New(o.store, o.logger),
		queue:     queue.NewReconciler(queue.WithClock(o.clock), queue.WithLogger(o.logger)),
		clock:     o.clock,
		logger:    o.logger.With().Str("component", "beatsync").Logger(),
	}
	c.monitor = queue.NewMonitor(c.queue, queue.MonitorConfig{
		HealthInterval: cfg.HealthInterval,
		ResyncInterval: cfg.ResyncInterval,
		RequestSync:    c.sendQueueSync,
		OnStale: func(w queue.StaleWarning) {
			c.notify(LevelWarn, fmt.Sprintf("Queue sync may be delayed (last update %s ago)", w.Age.Round(time.Second)))
		},
	}, o.clock, o.logger)
	c.playback = playback.New(player, c.server,
		playback.WithClock(o.clock),
		playback.WithLogger(o.logger),
		playback.WithAdvance(c.advance),
		playback.WithOnStart(func(s song.Song) { c.notify(LevelInfo, "Now playing: "+s.String()) }),
	)

	return c, nil
}

// HTTPBase maps a server URL to the http(s) base the time endpoint lives under.
func HTTPBase(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", server, err)
	}

	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme", server)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid server url %q: missing host", server)
	}
	u.Path = strings.TrimSuffix(strings.TrimRight(u.Path, "/"), "/ws")

	return u.String(), nil
}

// OnNotice registers f for user-visible notices.
func (c *Client) OnNotice(f func(Notice)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, f)
}

// Start subscribes to server events and opens the connection.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.unsubs = c.subscribe()
	c.mu.Unlock()

	if err := c.transport.Connect(c.cfg.Server); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Close stops every timer, the audio and the connection. The persisted
// room session is kept.
func (c *Client) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.started = false
	c.mu.Unlock()

	c.transport.Disconnect()
	for _, u := range unsubs {
		u()
	}

	c.cancelSettle()
	c.monitor.Stop()
	c.server.Stop()
	c.playback.Cancel()
}

func (c *Client) Snapshot() Snapshot {
	q := c.queue.Snapshot()
	s := Snapshot{
		Connected:     c.transport.Connected(),
		Session:       c.session.View(),
		Queue:         q.Queue,
		NowPlaying:    q.NowPlaying,
		LastBroadcast: q.LastBroadcast,
		ClockOffset:   c.server.Offset(),
		LastClockSync: c.server.LastSync(),
	}
	if p, ok := c.playback.Pending(); ok {
		s.Pending = &p
	}
	return s
}

func (c *Client) notify(level Level, msg string) {
	c.mu.Lock()
	handlers := append(([]func(Notice))(nil), c.notices...)
	c.mu.Unlock()

	ev := c.logger.Info()
	switch level {
	case LevelWarn:
		ev = c.logger.Warn()
	case LevelError:
		ev = c.logger.Error()
	}
	ev.Msg(msg)

	for _, h := range handlers {
		h(Notice{Level: level, Message: msg})
	}
}

// after runs f once d has passed unless the settle timers are cancelled first.
func (c *Client) after(d time.Duration, f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	epoch := c.epoch
	c.settle = append(c.settle, c.clock.AfterFunc(d, func() {
		c.mu.Lock()
		live := epoch == c.epoch
		c.mu.Unlock()
		if live {
			f()
		}
	}))
}

func (c *Client) cancelSettle() {
	c.mu.Lock()
	timers := c.settle
	c.settle = nil
	c.epoch++
	c.mu.Unlock()

	for _, t := range timers {
		t.Stop()
	}
}
