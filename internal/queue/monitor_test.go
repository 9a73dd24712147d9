package queue

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitorRequestsSyncOnlyWhenIdle(t *testing.T) {
	mock := clock.NewMock()
	r := NewReconciler(WithClock(mock), WithSyncSettle(time.Hour))

	var requests atomic.Int32
	m := NewMonitor(r, MonitorConfig{
		HealthInterval: time.Hour,
		RequestSync:    func() error { requests.Add(1); return nil },
	}, mock, zerolog.Nop())
	m.Start()
	defer m.Stop()

	mock.Add(DefaultResyncInterval)
	require.Eventually(t, func() bool { return requests.Load() == 1 }, time.Second, time.Millisecond)

	// no response yet, the next tick is skipped
	mock.Add(DefaultResyncInterval)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(1), requests.Load())

	r.Apply(Broadcast{})
	mock.Add(DefaultResyncInterval)
	require.Eventually(t, func() bool { return requests.Load() == 2 }, time.Second, time.Millisecond)
}

func TestMonitorFailedRequestDoesNotWedge(t *testing.T) {
	mock := clock.NewMock()
	r := NewReconciler(WithClock(mock), WithSyncSettle(time.Hour))

	var requests atomic.Int32
	m := NewMonitor(r, MonitorConfig{
		HealthInterval: time.Hour,
		RequestSync: func() error {
			requests.Add(1)
			return errors.New("not connected")
		},
	}, mock, zerolog.Nop())
	m.Start()
	defer m.Stop()

	mock.Add(DefaultResyncInterval)
	require.Eventually(t, func() bool { return requests.Load() == 1 }, time.Second, time.Millisecond)
	mock.Add(DefaultResyncInterval)
	require.Eventually(t, func() bool { return requests.Load() == 2 }, time.Second, time.Millisecond)
	assert.False(t, r.Syncing())
}

func TestMonitorRaisesStaleWarning(t *testing.T) {
	mock := clock.NewMock()
	r := NewReconciler(WithClock(mock))

	warnings := make(chan StaleWarning, 4)
	m := NewMonitor(r, MonitorConfig{
		ResyncInterval: time.Hour,
		OnStale:        func(w StaleWarning) { warnings <- w },
	}, mock, zerolog.Nop())
	m.Start()
	defer m.Stop()

	mock.Add(30 * time.Second)
	r.Apply(Broadcast{})

	// 30s since the last broadcast: healthy
	mock.Add(30 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, warnings)

	mock.Add(60 * time.Second)
	select {
	case w := <-warnings:
		assert.Equal(t, 90*time.Second, w.Age)
	case <-time.After(time.Second):
		t.Fatal("expected stale warning")
	}
}

func TestMonitorStopHaltsWork(t *testing.T) {
	mock := clock.NewMock()
	r := NewReconciler(WithClock(mock))

	var requests atomic.Int32
	m := NewMonitor(r, MonitorConfig{RequestSync: func() error { requests.Add(1); return nil }}, mock, zerolog.Nop())
	m.Start()
	assert.True(t, m.Running())
	m.Stop()
	m.Stop()
	assert.False(t, m.Running())

	mock.Add(5 * time.Minute)
	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, requests.Load())
}
