package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/mcprouter/internal/config"
	"github.com/avolkov/mcprouter/internal/util"
)

// monitorConfig builds a snapshot with one monitored server, one enabled
// server without a health check, and one disabled server.
func monitorConfig() *config.EnvironmentConfig {
	return &config.EnvironmentConfig{
		Environment: config.EnvTest,
		Servers: []config.ServerDescriptor{
			{
				ID:       "alpha",
				Name:     "Alpha",
				Category: config.CategoryCore,
				Priority: 9,
				Enabled:  true,
				Connection: config.Connection{
					Transport: config.TransportHTTP,
					Endpoint:  "http://alpha.local:8080",
					Timeout:   config.Duration(5 * time.Second),
				},
				HealthCheck: &config.HealthCheck{
					Interval:         config.Duration(time.Hour),
					Timeout:          config.Duration(time.Second),
					FailureThreshold: 3,
					Endpoint:         "/health",
				},
			},
			{
				ID:       "beta",
				Name:     "Beta",
				Category: config.CategoryCore,
				Priority: 5,
				Enabled:  true,
				Connection: config.Connection{
					Transport: config.TransportHTTP,
					Endpoint:  "http://beta.local:8080",
					Timeout:   config.Duration(5 * time.Second),
				},
			},
			{
				ID:       "gamma",
				Name:     "Gamma",
				Category: config.CategoryCore,
				Priority: 3,
				Enabled:  false,
				Connection: config.Connection{
					Transport: config.TransportHTTP,
					Endpoint:  "http://gamma.local:8080",
					Timeout:   config.Duration(5 * time.Second),
				},
			},
		},
	}
}

// staticProber always returns the same outcome.
func staticProber(ok bool, latency time.Duration, err error) Prober {
	return ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		return ProbeResult{OK: ok, Latency: latency}, err
	})
}

func TestNewMonitor_SeedsEnabledServers(t *testing.T) {
	t.Parallel()

	m := NewMonitor(monitorConfig())

	stats := m.AllStats()
	require.Len(t, stats, 2)

	alpha, ok := stats["alpha"]
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, alpha.Status)
	assert.Zero(t, alpha.TotalChecks)

	_, ok = stats["beta"]
	assert.True(t, ok, "enabled server without health check still gets a stats entry")

	_, ok = stats["gamma"]
	assert.False(t, ok, "disabled servers are not tracked")
}

func TestMonitor_StateMachine(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		if fail.Load() {
			return ProbeResult{}, errors.New("connection refused")
		}
		return ProbeResult{OK: true, Latency: 10 * time.Millisecond}, nil
	})

	m := NewMonitor(monitorConfig(), WithProber(prober))
	ctx := context.Background()

	fail.Store(true)

	// Failures 1 and 2 stay below the threshold of 3.
	for i := 1; i <= 2; i++ {
		result, err := m.ForceCheck(ctx, "alpha")
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, StatusDegraded, result.Status, "failure %d", i)
	}

	result, err := m.ForceCheck(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, result.Status, "third failure reaches the threshold")
	assert.False(t, m.IsLive("alpha"))

	stats, ok := m.ServerStats("alpha")
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.TotalChecks)
	assert.Equal(t, int64(3), stats.FailedChecks)
	assert.Equal(t, 3, stats.ConsecutiveFailures)
	assert.False(t, stats.LastUnhealthy.IsZero())

	fail.Store(false)

	result, err = m.ForceCheck(ctx, "alpha")
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, StatusOnline, result.Status, "one success recovers the server")
	assert.True(t, m.IsLive("alpha"))

	stats, ok = m.ServerStats("alpha")
	require.True(t, ok)
	assert.Equal(t, 0, stats.ConsecutiveFailures)
	assert.Equal(t, int64(1), stats.SuccessfulChecks)
	assert.False(t, stats.LastHealthy.IsZero())
	assert.InDelta(t, 25.0, stats.UptimePercent, 0.01)
}

func TestMonitor_AverageResponseTime(t *testing.T) {
	t.Parallel()

	latencies := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}
	var call atomic.Int32

	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		idx := call.Add(1) - 1
		return ProbeResult{OK: true, Latency: latencies[idx]}, nil
	})

	m := NewMonitor(monitorConfig(), WithProber(prober))
	ctx := context.Background()

	for range latencies {
		_, err := m.ForceCheck(ctx, "alpha")
		require.NoError(t, err)
	}

	stats, ok := m.ServerStats("alpha")
	require.True(t, ok)
	assert.Equal(t, 20*time.Millisecond, stats.AverageResponseTime)
	assert.InDelta(t, 100.0, stats.UptimePercent, 0.01)
}

func TestMonitor_ForceCheck(t *testing.T) {
	t.Parallel()

	m := NewMonitor(monitorConfig(), WithProber(staticProber(true, time.Millisecond, nil)))
	ctx := context.Background()

	t.Run("unknown server", func(t *testing.T) {
		t.Parallel()
		_, err := m.ForceCheck(ctx, "nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, util.ErrServerNotFound)
	})

	t.Run("server without health check", func(t *testing.T) {
		t.Parallel()
		result, err := m.ForceCheck(ctx, "beta")
		require.NoError(t, err)
		assert.False(t, result.OK)
		assert.Equal(t, StatusUnknown, result.Status)
		assert.Equal(t, "health check not configured", result.Error)
	})
}

func TestMonitor_ForceCheckAll(t *testing.T) {
	t.Parallel()

	m := NewMonitor(monitorConfig(), WithProber(staticProber(true, time.Millisecond, nil)))

	results := m.ForceCheckAll(context.Background())
	require.Len(t, results, 1, "only monitored servers are checked")
	assert.Equal(t, "alpha", results[0].ServerID)
	assert.True(t, results[0].OK)
}

func TestMonitor_InFlightGuard(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once

	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		once.Do(func() { close(started) })
		<-release
		return ProbeResult{OK: true, Latency: time.Millisecond}, nil
	})

	m := NewMonitor(monitorConfig(), WithProber(prober))
	ctx := context.Background()

	cfg := monitorConfig()
	srv, ok := cfg.Server("alpha")
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.checkServer(ctx, srv, false)
	}()
	<-started

	// A scheduled check finding the guard held is skipped, not queued.
	result := m.checkServer(ctx, srv, true)
	assert.Equal(t, "probe already in flight", result.Error)

	close(release)
	<-done

	stats, ok := m.ServerStats("alpha")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.TotalChecks, "the skipped check never probed")
}

func TestMonitor_StartStop(t *testing.T) {
	t.Parallel()

	var checks atomic.Int32
	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		checks.Add(1)
		return ProbeResult{OK: true, Latency: time.Millisecond}, nil
	})

	m := NewMonitor(monitorConfig(),
		WithProber(prober),
		WithIntervalOverride(10*time.Millisecond),
	)

	m.Start(context.Background())
	assert.True(t, m.IsRunning())

	require.Eventually(t, func() bool {
		return checks.Load() >= 3
	}, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.IsRunning())

	after := checks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, checks.Load(), "no probes after Stop")
}

func TestMonitor_SetConfig(t *testing.T) {
	t.Parallel()

	m := NewMonitor(monitorConfig(), WithProber(staticProber(true, time.Millisecond, nil)))
	ctx := context.Background()

	_, err := m.ForceCheck(ctx, "alpha")
	require.NoError(t, err)

	next := monitorConfig()
	next.Servers = next.Servers[:1] // drop beta and gamma
	next.Servers = append(next.Servers, config.ServerDescriptor{
		ID:       "delta",
		Name:     "Delta",
		Category: config.CategoryData,
		Priority: 5,
		Enabled:  true,
		Connection: config.Connection{
			Transport: config.TransportHTTP,
			Endpoint:  "http://delta.local:8080",
			Timeout:   config.Duration(5 * time.Second),
		},
	})
	m.SetConfig(next)

	stats := m.AllStats()
	require.Len(t, stats, 2)

	alpha, ok := stats["alpha"]
	require.True(t, ok)
	assert.Equal(t, int64(1), alpha.TotalChecks, "surviving servers keep their history")

	delta, ok := stats["delta"]
	require.True(t, ok)
	assert.Equal(t, StatusUnknown, delta.Status, "new servers start unknown")

	_, ok = stats["beta"]
	assert.False(t, ok, "removed servers are dropped")
}

func TestMonitor_StopDuringSetConfig(t *testing.T) {
	t.Parallel()

	var checks atomic.Int32
	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		checks.Add(1)
		return ProbeResult{OK: true, Latency: time.Millisecond}, nil
	})

	m := NewMonitor(monitorConfig(),
		WithProber(prober),
		WithIntervalOverride(5*time.Millisecond),
	)
	m.Start(context.Background())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			m.SetConfig(monitorConfig())
		}
	}()
	go func() {
		defer wg.Done()
		m.Stop()
	}()
	wg.Wait()
	m.Stop()

	assert.False(t, m.IsRunning())
	after := checks.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, checks.Load(), "no probe loops survive the shutdown")
}

func TestMonitor_Reconnect(t *testing.T) {
	t.Parallel()

	// Fail until the server goes offline, then succeed so the reconnection
	// probe fired by the offline transition recovers it immediately.
	var calls atomic.Int32
	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		if calls.Add(1) <= 3 {
			return ProbeResult{}, errors.New("connection refused")
		}
		return ProbeResult{OK: true, Latency: time.Millisecond}, nil
	})

	m := NewMonitor(monitorConfig(), WithProber(prober), WithAutoReconnect(true))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := m.ForceCheck(ctx, "alpha")
		require.NoError(t, err)
	}

	result, err := m.ForceCheck(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, result.Status, "reconnection probe recovered the server")
	assert.True(t, m.IsLive("alpha"))
}

func TestMonitor_ReconnectMeasuresLatency(t *testing.T) {
	t.Parallel()

	// The recovery probe leaves Latency unset; the measured duration must
	// feed the average instead of a zero sample.
	var calls atomic.Int32
	prober := ProbeFunc(func(context.Context, *config.ServerDescriptor) (ProbeResult, error) {
		if calls.Add(1) <= 3 {
			return ProbeResult{}, errors.New("connection refused")
		}
		return ProbeResult{OK: true}, nil
	})

	m := NewMonitor(monitorConfig(), WithProber(prober), WithAutoReconnect(true))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.ForceCheck(ctx, "alpha")
		require.NoError(t, err)
	}

	stats, ok := m.ServerStats("alpha")
	require.True(t, ok)
	assert.Equal(t, StatusOnline, stats.Status)
	assert.Greater(t, stats.AverageResponseTime, time.Duration(0),
		"average uses the measured probe duration")
}

func TestMonitor_IsLive(t *testing.T) {
	t.Parallel()

	m := NewMonitor(monitorConfig())

	assert.True(t, m.IsLive("alpha"), "unknown status is live")
	assert.True(t, m.IsLive("beta"))
	assert.True(t, m.IsLive("never-seen"), "untracked servers are optimistically live")
}

func TestMonitor_GetSystemHealth(t *testing.T) {
	t.Parallel()

	t.Run("healthy pool", func(t *testing.T) {
		t.Parallel()

		m := NewMonitor(monitorConfig(), WithProber(staticProber(true, time.Millisecond, nil)))
		_, err := m.ForceCheck(context.Background(), "alpha")
		require.NoError(t, err)

		sh := m.GetSystemHealth()
		assert.Equal(t, OverallHealthy, sh.OverallStatus)
		assert.Equal(t, 2, sh.TotalServers)
		assert.Equal(t, 1, sh.OnlineServers)
		assert.Equal(t, 1, sh.UnknownServers)
		assert.InDelta(t, 50.0, sh.AverageUptime, 0.01)
	})

	t.Run("degraded pool", func(t *testing.T) {
		t.Parallel()

		m := NewMonitor(monitorConfig(), WithProber(staticProber(false, 0, errors.New("boom"))))
		_, err := m.ForceCheck(context.Background(), "alpha")
		require.NoError(t, err)

		sh := m.GetSystemHealth()
		assert.Equal(t, OverallDegraded, sh.OverallStatus)
		assert.Equal(t, 1, sh.DegradedServers)
	})

	t.Run("unhealthy pool", func(t *testing.T) {
		t.Parallel()

		m := NewMonitor(monitorConfig(), WithProber(staticProber(false, 0, errors.New("boom"))))
		for i := 0; i < 3; i++ {
			_, err := m.ForceCheck(context.Background(), "alpha")
			require.NoError(t, err)
		}

		sh := m.GetSystemHealth()
		assert.Equal(t, OverallUnhealthy, sh.OverallStatus)
		assert.Equal(t, 1, sh.OfflineServers)
	})
}
