package clocksync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulatedServer answers after latency/2 in each direction with a clock
// that runs skew ahead of the local one.
func simulatedServer(mock *clock.Mock, skew, up, down time.Duration) ProberFunc {
	return func(context.Context) (time.Time, error) {
		mock.Set(mock.Now().Add(up))
		ts := mock.Now().Add(skew)
		mock.Set(mock.Now().Add(down))
		return ts, nil
	}
}

func TestSyncComputesOffset(t *testing.T) {
	mock := clock.NewMock()
	s := New(simulatedServer(mock, 1500*time.Millisecond, 40*time.Millisecond, 40*time.Millisecond), WithClock(mock))

	require.NoError(t, s.Sync(context.Background()))
	assert.Equal(t, 1500*time.Millisecond, s.Offset())
	assert.Equal(t, 80*time.Millisecond, s.RTT())
	assert.Equal(t, mock.Now().Add(1500*time.Millisecond), s.Now())
}

func TestSyncConvergesUnderFixedLatency(t *testing.T) {
	mock := clock.NewMock()
	skew := -3250 * time.Millisecond
	s := New(simulatedServer(mock, skew, 120*time.Millisecond, 120*time.Millisecond), WithClock(mock))

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Sync(context.Background()))
		assert.InDelta(t, skew.Milliseconds(), s.Offset().Milliseconds(), 1)
	}
}

func TestAsymmetricPathBiasIsBounded(t *testing.T) {
	mock := clock.NewMock()
	skew := 500 * time.Millisecond
	s := New(simulatedServer(mock, skew, 10*time.Millisecond, 90*time.Millisecond), WithClock(mock))

	require.NoError(t, s.Sync(context.Background()))
	// error is half the path asymmetry
	assert.InDelta(t, skew.Milliseconds(), s.Offset().Milliseconds(), 40)
}

func TestFailedProbeKeepsOffset(t *testing.T) {
	mock := clock.NewMock()
	var fail atomic.Bool
	ok := simulatedServer(mock, time.Second, 0, 0)
	s := New(ProberFunc(func(ctx context.Context) (time.Time, error) {
		if fail.Load() {
			return time.Time{}, errors.New("network down")
		}
		return ok(ctx)
	}), WithClock(mock))

	require.NoError(t, s.Sync(context.Background()))
	require.Equal(t, time.Second, s.Offset())

	fail.Store(true)
	assert.Error(t, s.Sync(context.Background()))
	assert.Equal(t, time.Second, s.Offset())
}

func TestSyncGivesUpAfterTimeout(t *testing.T) {
	s := New(ProberFunc(func(ctx context.Context) (time.Time, error) {
		<-ctx.Done()
		return time.Time{}, ctx.Err()
	}), WithTimeout(20*time.Millisecond))

	start := time.Now()
	err := s.Sync(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, s.LastSync().IsZero())
}

func TestLastSyncTracksSuccessfulProbes(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	var fail atomic.Bool
	ok := simulatedServer(mock, 0, 10*time.Millisecond, 10*time.Millisecond)
	s := New(ProberFunc(func(ctx context.Context) (time.Time, error) {
		if fail.Load() {
			return time.Time{}, errors.New("network down")
		}
		return ok(ctx)
	}), WithClock(mock))

	assert.True(t, s.LastSync().IsZero())

	require.NoError(t, s.Sync(context.Background()))
	synced := mock.Now()
	assert.True(t, synced.Equal(s.LastSync()))

	mock.Add(time.Minute)
	fail.Store(true)
	require.Error(t, s.Sync(context.Background()))
	assert.True(t, synced.Equal(s.LastSync()))
}

func TestStartSyncsImmediatelyAndPeriodically(t *testing.T) {
	mock := clock.NewMock()
	var probes atomic.Int32
	s := New(ProberFunc(func(context.Context) (time.Time, error) {
		probes.Add(1)
		return mock.Now(), nil
	}), WithClock(mock))

	s.Start(30 * time.Second)
	require.Eventually(t, func() bool { return probes.Load() == 1 }, time.Second, time.Millisecond)

	mock.Add(30 * time.Second)
	require.Eventually(t, func() bool { return probes.Load() == 2 }, time.Second, time.Millisecond)

	s.Stop()
	mock.Add(90 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(2), probes.Load())
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		_, _ = w.Write([]byte(`{"timestamp":"2024-05-01T10:00:00.250Z"}`))
	}))
	defer srv.Close()

	ts, err := NewHTTPProber(srv.URL + "/").Probe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 250*int(time.Millisecond), time.UTC), ts.UTC())
}

func TestHTTPProberBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPProber(srv.URL).Probe(context.Background())
	assert.Error(t, err)
}
