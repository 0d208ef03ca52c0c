package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/avolkov/mcprouter/internal/config"
	"github.com/avolkov/mcprouter/internal/observability"
	"github.com/avolkov/mcprouter/internal/util"
)

// Monitor runs periodic liveness checks against enabled servers, maintains
// a per-server health state machine and rolling statistics, and triggers
// reconnection probes when a server goes offline.
//
// Scheduling: one timer per monitored server at that server's configured
// interval. Checks for different servers are independent; within one server
// checks are strictly sequential (the in-flight guard prevents overlap).
type Monitor struct {
	prober           Prober
	logger           observability.Logger
	autoReconnect    bool
	intervalOverride time.Duration

	// lifecycleMu serializes Start, Stop and SetConfig so a Stop cannot
	// slip into the worker-restart window of a concurrent SetConfig.
	lifecycleMu sync.Mutex

	mu      sync.Mutex
	cfg     *config.EnvironmentConfig
	stats   map[string]*Stats
	guards  map[string]*sync.Mutex
	running bool
	baseCtx context.Context
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// MonitorOption is a functional option for configuring the monitor.
type MonitorOption func(*Monitor)

// WithMonitorLogger sets the logger for the monitor.
func WithMonitorLogger(logger observability.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// WithProber sets the liveness prober.
func WithProber(prober Prober) MonitorOption {
	return func(m *Monitor) {
		m.prober = prober
	}
}

// WithAutoReconnect enables the immediate out-of-band probe after a server
// transitions to offline.
func WithAutoReconnect(enabled bool) MonitorOption {
	return func(m *Monitor) {
		m.autoReconnect = enabled
	}
}

// WithIntervalOverride forces a single check interval for every server,
// overriding per-server health check intervals.
func WithIntervalOverride(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.intervalOverride = interval
	}
}

// NewMonitor creates a monitor for the servers in cfg. Stats entries are
// seeded for every enabled server; servers without a health check policy are
// never probed and stay in the unknown state.
func NewMonitor(cfg *config.EnvironmentConfig, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober: NewHTTPProber(),
		logger: observability.NopLogger(),
		cfg:    cfg,
		stats:  make(map[string]*Stats),
		guards: make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(m)
	}

	m.seedStatsLocked()
	return m
}

// seedStatsLocked creates stats entries for enabled servers that do not have
// one yet and drops entries for servers no longer present.
func (m *Monitor) seedStatsLocked() {
	present := make(map[string]bool, len(m.cfg.Servers))
	for i := range m.cfg.Servers {
		srv := &m.cfg.Servers[i]
		if !srv.Enabled {
			continue
		}
		present[srv.ID] = true
		if _, ok := m.stats[srv.ID]; !ok {
			m.stats[srv.ID] = &Stats{ServerID: srv.ID, Status: StatusUnknown}
			GetMetrics().ServerStatus.WithLabelValues(srv.ID).Set(statusValue(StatusUnknown))
		}
	}
	for id := range m.stats {
		if !present[id] {
			delete(m.stats, id)
			delete(m.guards, id)
		}
	}
}

// Start begins periodic monitoring of every enabled server that has a
// health check policy.
func (m *Monitor) Start(ctx context.Context) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.baseCtx = ctx
	m.stopCh = make(chan struct{})
	m.startWorkersLocked(ctx)
	m.mu.Unlock()
}

// startWorkersLocked launches one probe loop per monitored server.
func (m *Monitor) startWorkersLocked(ctx context.Context) {
	for i := range m.cfg.Servers {
		srv := m.cfg.Servers[i]
		if !srv.Enabled || srv.HealthCheck == nil {
			continue
		}
		m.wg.Add(1)
		go m.runServer(ctx, srv, m.stopCh)
	}
}

// Stop cancels all timers. In-flight probes complete and update stats, but
// no new probes are scheduled after Stop returns.
func (m *Monitor) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stopCh := m.stopCh
	m.mu.Unlock()

	close(stopCh)
	m.wg.Wait()
}

// IsRunning returns true if the monitor is running.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SetConfig atomically swaps the config snapshot. Stats are seeded for newly
// introduced server ids and dropped for removed ids; surviving entries keep
// their history. If the monitor is running, probe loops are restarted
// against the new snapshot.
func (m *Monitor) SetConfig(cfg *config.EnvironmentConfig) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	m.mu.Lock()
	wasRunning := m.running
	if wasRunning {
		m.running = false
		close(m.stopCh)
	}
	m.mu.Unlock()

	if wasRunning {
		m.wg.Wait()
	}

	m.mu.Lock()
	m.cfg = cfg
	m.seedStatsLocked()
	if wasRunning {
		m.running = true
		m.stopCh = make(chan struct{})
		m.startWorkersLocked(m.baseCtx)
	}
	m.mu.Unlock()
}

// runServer is the per-server probe loop.
func (m *Monitor) runServer(ctx context.Context, srv config.ServerDescriptor, stopCh chan struct{}) {
	defer m.wg.Done()

	interval := m.checkInterval(&srv)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.checkServer(ctx, &srv, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.checkServer(ctx, &srv, true)
		}
	}
}

// checkInterval resolves the effective check interval for a server.
func (m *Monitor) checkInterval(srv *config.ServerDescriptor) time.Duration {
	if m.intervalOverride > 0 {
		return m.intervalOverride
	}
	if srv.HealthCheck != nil && srv.HealthCheck.Interval.Duration() > 0 {
		return srv.HealthCheck.Interval.Duration()
	}
	return config.DefaultHealthCheckInterval
}

// checkTimeout resolves the effective probe timeout for a server.
func checkTimeout(srv *config.ServerDescriptor) time.Duration {
	if srv.HealthCheck != nil && srv.HealthCheck.Timeout.Duration() > 0 {
		return srv.HealthCheck.Timeout.Duration()
	}
	return config.DefaultHealthCheckTimeout
}

// failureThreshold resolves the effective failure threshold for a server.
func failureThreshold(srv *config.ServerDescriptor) int {
	if srv.HealthCheck != nil && srv.HealthCheck.FailureThreshold > 0 {
		return srv.HealthCheck.FailureThreshold
	}
	return config.DefaultFailureThreshold
}

// checkServer performs one health check. Scheduled checks skip the server if
// a probe is already outstanding; forced checks wait their turn. A panic
// while checking one server never aborts checks for others.
func (m *Monitor) checkServer(ctx context.Context, srv *config.ServerDescriptor, scheduled bool) CheckResult {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check panicked",
				observability.String("server", srv.ID),
				observability.Any("panic", r),
			)
		}
	}()

	guard := m.serverGuard(srv.ID)
	if scheduled {
		if !guard.TryLock() {
			return CheckResult{ServerID: srv.ID, Error: "probe already in flight"}
		}
	} else {
		guard.Lock()
	}
	defer guard.Unlock()

	result := m.probeOnce(ctx, srv)
	if !result.OK && m.autoReconnect && result.Status == StatusOffline {
		m.reconnect(ctx, srv)
	}

	m.mu.Lock()
	if s, ok := m.stats[srv.ID]; ok {
		result.Status = s.Status
	}
	m.mu.Unlock()

	return result
}

// probeOnce performs one bounded probe and folds the outcome into stats.
func (m *Monitor) probeOnce(ctx context.Context, srv *config.ServerDescriptor) CheckResult {
	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout(srv))
	defer cancel()

	start := time.Now()
	probe, err := m.prober.Probe(probeCtx, srv)
	latency := probe.Latency
	if latency == 0 {
		latency = time.Since(start)
	}

	GetMetrics().CheckDurationSeconds.WithLabelValues(srv.ID).Observe(latency.Seconds())

	result := CheckResult{
		ServerID:  srv.ID,
		Latency:   latency,
		CheckedAt: time.Now(),
	}

	if err != nil || !probe.OK {
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Error = "probe reported not ok"
		}
		result.Status = m.recordFailure(srv, err)
		GetMetrics().ChecksTotal.WithLabelValues(srv.ID, "failure").Inc()
		return result
	}

	result.OK = true
	result.Status = m.recordSuccess(srv, latency)
	GetMetrics().ChecksTotal.WithLabelValues(srv.ID, "success").Inc()
	return result
}

// reconnect performs the single out-of-band probe after an offline
// transition. A success returns the server to online without waiting for
// the next scheduled interval; a failure changes nothing beyond metrics.
func (m *Monitor) reconnect(ctx context.Context, srv *config.ServerDescriptor) {
	m.logger.Info("attempting reconnection probe",
		observability.String("server", srv.ID),
	)

	probeCtx, cancel := context.WithTimeout(ctx, checkTimeout(srv))
	defer cancel()

	start := time.Now()
	probe, err := m.prober.Probe(probeCtx, srv)
	if err != nil || !probe.OK {
		GetMetrics().ReconnectProbesTotal.WithLabelValues(srv.ID, "failure").Inc()
		m.logger.Warn("reconnection probe failed",
			observability.String("server", srv.ID),
			observability.Error(err),
		)
		return
	}

	latency := probe.Latency
	if latency == 0 {
		latency = time.Since(start)
	}

	GetMetrics().ReconnectProbesTotal.WithLabelValues(srv.ID, "success").Inc()
	m.recordSuccess(srv, latency)
}

// recordSuccess folds a successful check into the server's stats and returns
// the new status. Any success resets consecutive failures and moves the
// server to online.
func (m *Monitor) recordSuccess(srv *config.ServerDescriptor, latency time.Duration) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.statsLocked(srv.ID)
	s.TotalChecks++
	s.SuccessfulChecks++
	s.ConsecutiveFailures = 0
	s.LastHealthy = time.Now()
	// Incremental mean: avg' = avg + (sample-avg)/n.
	s.AverageResponseTime += (latency - s.AverageResponseTime) / time.Duration(s.SuccessfulChecks)
	s.UptimePercent = uptimePercent(s)

	if s.Status != StatusOnline {
		m.logger.Info("server became online",
			observability.String("server", srv.ID),
			observability.String("previous", string(s.Status)),
		)
	}
	s.Status = StatusOnline

	GetMetrics().ServerStatus.WithLabelValues(srv.ID).Set(statusValue(StatusOnline))
	GetMetrics().ConsecutiveFailures.WithLabelValues(srv.ID).Set(0)

	return s.Status
}

// recordFailure folds a failed check into the server's stats and returns the
// new status.
func (m *Monitor) recordFailure(srv *config.ServerDescriptor, err error) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.statsLocked(srv.ID)
	s.TotalChecks++
	s.FailedChecks++
	s.ConsecutiveFailures++
	s.LastUnhealthy = time.Now()
	s.UptimePercent = uptimePercent(s)

	previous := s.Status
	if s.ConsecutiveFailures >= failureThreshold(srv) {
		s.Status = StatusOffline
	} else {
		s.Status = StatusDegraded
	}

	if s.Status != previous {
		m.logger.Warn("server health degraded",
			observability.String("server", srv.ID),
			observability.String("previous", string(previous)),
			observability.String("status", string(s.Status)),
			observability.Int("consecutiveFailures", s.ConsecutiveFailures),
			observability.Error(err),
		)
	}

	GetMetrics().ServerStatus.WithLabelValues(srv.ID).Set(statusValue(s.Status))
	GetMetrics().ConsecutiveFailures.WithLabelValues(srv.ID).Set(float64(s.ConsecutiveFailures))

	return s.Status
}

// statsLocked returns the stats entry for a server, creating it on demand.
func (m *Monitor) statsLocked(serverID string) *Stats {
	s, ok := m.stats[serverID]
	if !ok {
		s = &Stats{ServerID: serverID, Status: StatusUnknown}
		m.stats[serverID] = s
	}
	return s
}

// uptimePercent recomputes the uptime ratio; 0 before the first check.
func uptimePercent(s *Stats) float64 {
	if s.TotalChecks == 0 {
		return 0
	}
	return float64(s.SuccessfulChecks) / float64(s.TotalChecks) * 100
}

// serverGuard returns the in-flight guard for a server.
func (m *Monitor) serverGuard(serverID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guards[serverID]
	if !ok {
		g = &sync.Mutex{}
		m.guards[serverID] = g
	}
	return g
}

// ForceCheck performs an immediate health check for one server, outside its
// schedule. It waits for any outstanding probe to finish first.
func (m *Monitor) ForceCheck(ctx context.Context, serverID string) (CheckResult, error) {
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	srv, ok := cfg.Server(serverID)
	if !ok {
		return CheckResult{}, fmt.Errorf("%w: %s", util.ErrServerNotFound, serverID)
	}

	if srv.HealthCheck == nil {
		status := StatusUnknown
		m.mu.Lock()
		if s, ok := m.stats[serverID]; ok {
			status = s.Status
		}
		m.mu.Unlock()
		return CheckResult{
			ServerID:  serverID,
			Status:    status,
			Error:     "health check not configured",
			CheckedAt: time.Now(),
		}, nil
	}

	return m.checkServer(ctx, srv, false), nil
}

// ForceCheckAll performs an immediate health check for every monitored
// server. A failure for one server never prevents checks for the others.
func (m *Monitor) ForceCheckAll(ctx context.Context) []CheckResult {
	m.mu.Lock()
	servers := make([]config.ServerDescriptor, 0, len(m.cfg.Servers))
	for i := range m.cfg.Servers {
		srv := m.cfg.Servers[i]
		if srv.Enabled && srv.HealthCheck != nil {
			servers = append(servers, srv)
		}
	}
	m.mu.Unlock()

	results := make([]CheckResult, len(servers))
	var wg sync.WaitGroup
	for i := range servers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx] = m.checkServer(ctx, &servers[idx], false)
		}(i)
	}
	wg.Wait()

	return results
}

// ServerStats returns a copy of one server's stats.
func (m *Monitor) ServerStats(serverID string) (Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[serverID]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// AllStats returns copies of all per-server stats keyed by server id.
func (m *Monitor) AllStats() map[string]Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Stats, len(m.stats))
	for id, s := range m.stats {
		out[id] = *s
	}
	return out
}

// IsLive reports whether a server is currently usable for routing. Offline
// servers are not live; online, degraded and unknown servers are.
func (m *Monitor) IsLive(serverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.stats[serverID]
	if !ok {
		return true
	}
	return s.Status != StatusOffline
}

// GetSystemHealth aggregates per-server states into the pool-level view.
func (m *Monitor) GetSystemHealth() SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()

	sh := SystemHealth{TotalServers: len(m.stats)}

	var uptimeSum float64
	for _, s := range m.stats {
		switch s.Status {
		case StatusOnline:
			sh.OnlineServers++
		case StatusDegraded:
			sh.DegradedServers++
		case StatusOffline:
			sh.OfflineServers++
		default:
			sh.UnknownServers++
		}
		uptimeSum += s.UptimePercent
	}

	if sh.TotalServers > 0 {
		sh.AverageUptime = uptimeSum / float64(sh.TotalServers)
	}

	switch {
	case sh.OfflineServers > 0:
		sh.OverallStatus = OverallUnhealthy
	case sh.DegradedServers > 0:
		sh.OverallStatus = OverallDegraded
	default:
		sh.OverallStatus = OverallHealthy
	}

	return sh
}
