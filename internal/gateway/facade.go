// Package gateway composes the environment resolver, request router and
// health monitor behind a single facade consumed by callers outside the
// routing core.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/avolkov/mcprouter/internal/config"
	"github.com/avolkov/mcprouter/internal/health"
	"github.com/avolkov/mcprouter/internal/observability"
	"github.com/avolkov/mcprouter/internal/router"
)

// RoutingStats is the operator-facing view of the router state.
type RoutingStats struct {
	Strategy  string           `json:"strategy"`
	Rules     []RuleView       `json:"rules"`
	LoadStats map[string]int64 `json:"loadStats"`
}

// RuleView is the serializable form of one routing rule.
type RuleView struct {
	Pattern    string             `json:"pattern"`
	IsRegex    bool               `json:"isRegex"`
	ServerID   string             `json:"serverId"`
	Priority   int                `json:"priority"`
	Conditions *router.Conditions `json:"conditions,omitempty"`
}

// Facade is the single entry point of the routing core. Construct one per
// process and pass it by reference to all consumers; fresh instances per
// test keep state isolated.
type Facade struct {
	router  *router.Router
	monitor *health.Monitor
	logger  observability.Logger

	// updateMu serializes config swaps; readers are lock-free.
	updateMu sync.Mutex
}

// FacadeOption is a functional option for configuring the facade.
type FacadeOption func(*facadeSettings)

// facadeSettings collects construction parameters for the facade's parts.
type facadeSettings struct {
	logger        observability.Logger
	strategy      router.Strategy
	prober        health.Prober
	autoReconnect bool
	monitorOpts   []health.MonitorOption
}

// WithFacadeLogger sets the logger for the facade and its parts.
func WithFacadeLogger(logger observability.Logger) FacadeOption {
	return func(s *facadeSettings) {
		s.logger = logger
	}
}

// WithStrategy sets the load-balancing strategy.
func WithStrategy(strategy router.Strategy) FacadeOption {
	return func(s *facadeSettings) {
		s.strategy = strategy
	}
}

// WithProber sets the liveness prober used by the health monitor.
func WithProber(prober health.Prober) FacadeOption {
	return func(s *facadeSettings) {
		s.prober = prober
	}
}

// WithAutoReconnect enables the out-of-band reconnection probe.
func WithAutoReconnect(enabled bool) FacadeOption {
	return func(s *facadeSettings) {
		s.autoReconnect = enabled
	}
}

// WithMonitorOptions forwards extra options to the health monitor.
func WithMonitorOptions(opts ...health.MonitorOption) FacadeOption {
	return func(s *facadeSettings) {
		s.monitorOpts = append(s.monitorOpts, opts...)
	}
}

// New creates a facade over a validated config snapshot.
func New(cfg *config.EnvironmentConfig, opts ...FacadeOption) (*Facade, error) {
	if result := config.ValidateConfig(cfg); !result.Valid {
		return nil, fmt.Errorf("refusing to activate config: %w", result.Err())
	}

	settings := &facadeSettings{
		logger:   observability.NopLogger(),
		strategy: router.StrategyPriority,
	}
	for _, opt := range opts {
		opt(settings)
	}

	monitorOpts := []health.MonitorOption{
		health.WithMonitorLogger(settings.logger),
		health.WithAutoReconnect(settings.autoReconnect),
	}
	if settings.prober != nil {
		monitorOpts = append(monitorOpts, health.WithProber(settings.prober))
	}
	monitorOpts = append(monitorOpts, settings.monitorOpts...)

	monitor := health.NewMonitor(cfg, monitorOpts...)

	rt := router.New(cfg,
		router.WithLogger(settings.logger),
		router.WithStrategy(settings.strategy),
		router.WithLiveness(monitor.IsLive),
	)

	return &Facade{
		router:  rt,
		monitor: monitor,
		logger:  settings.logger,
	}, nil
}

// Start begins health monitoring.
func (f *Facade) Start(ctx context.Context) {
	f.monitor.Start(ctx)
}

// Stop stops health monitoring. In-flight probes complete; no new probes
// are scheduled.
func (f *Facade) Stop() {
	f.monitor.Stop()
}

// RouteRequest resolves a request to a server id. Errors are expected,
// recoverable conditions: the caller should try another server or surface
// a 5xx-equivalent. The router performs no retries; the transport layer
// applies the chosen server's retry policy.
func (f *Facade) RouteRequest(ctx context.Context, req router.Request) (string, error) {
	requestID := observability.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := f.logger.With(observability.String("request_id", requestID))

	serverID, err := f.router.Route(req)
	if err != nil {
		log.Warn("routing failed",
			observability.String("routingKey", req.RoutingKey),
			observability.Error(err),
		)
		return "", err
	}

	log.Debug("request routed",
		observability.String("routingKey", req.RoutingKey),
		observability.String("server", serverID),
	)
	return serverID, nil
}

// ServerDescriptor returns a copy of a server's descriptor so the transport
// layer can apply its connection timeout and retry policy.
func (f *Facade) ServerDescriptor(serverID string) (config.ServerDescriptor, bool) {
	srv, ok := f.router.Config().Server(serverID)
	if !ok {
		return config.ServerDescriptor{}, false
	}
	cp := *srv
	if hc := cp.HealthCheck; hc != nil {
		h := *hc
		cp.HealthCheck = &h
	}
	return cp, true
}

// CheckHealth forces a health check for one server, or for all monitored
// servers when serverID is empty.
func (f *Facade) CheckHealth(ctx context.Context, serverID string) ([]health.CheckResult, error) {
	if serverID == "" {
		return f.monitor.ForceCheckAll(ctx), nil
	}

	result, err := f.monitor.ForceCheck(ctx, serverID)
	if err != nil {
		return nil, err
	}
	return []health.CheckResult{result}, nil
}

// GetSystemHealth returns the aggregate health of the server pool.
func (f *Facade) GetSystemHealth() health.SystemHealth {
	return f.monitor.GetSystemHealth()
}

// GetAllHealthStats returns copies of all per-server health stats.
func (f *Facade) GetAllHealthStats() map[string]health.Stats {
	return f.monitor.AllStats()
}

// GetServerHealthStats returns a copy of one server's health stats.
func (f *Facade) GetServerHealthStats(serverID string) (health.Stats, bool) {
	return f.monitor.ServerStats(serverID)
}

// GetRoutingStats returns the rules and load counters for dashboards.
func (f *Facade) GetRoutingStats() RoutingStats {
	rules := f.router.Rules()
	views := make([]RuleView, 0, len(rules))
	for _, r := range rules {
		views = append(views, RuleView{
			Pattern:    r.Pattern.String(),
			IsRegex:    r.Pattern.IsRegex(),
			ServerID:   r.ServerID,
			Priority:   r.Priority,
			Conditions: r.Conditions,
		})
	}

	return RoutingStats{
		Strategy:  string(f.router.Strategy()),
		Rules:     views,
		LoadStats: f.router.LoadStats(),
	}
}

// AddRoutingRule adds a routing rule.
func (f *Facade) AddRoutingRule(rule router.Rule) {
	f.router.AddRule(rule)
}

// RemoveRoutingRule removes rules by pattern equality and returns how many
// were removed.
func (f *Facade) RemoveRoutingRule(pattern router.Pattern) int {
	return f.router.RemoveRule(pattern)
}

// ResetLoadCounters clears the round-robin and least-connections counters.
func (f *Facade) ResetLoadCounters() {
	f.router.ResetLoadCounters()
}

// UpdateConfig validates the new snapshot and atomically swaps it into the
// router and monitor. Health stats are seeded for newly introduced server
// ids and dropped for removed ids. An invalid snapshot is rejected and the
// previous one stays active.
func (f *Facade) UpdateConfig(cfg *config.EnvironmentConfig) error {
	if result := config.ValidateConfig(cfg); !result.Valid {
		return fmt.Errorf("refusing to activate config: %w", result.Err())
	}

	f.updateMu.Lock()
	defer f.updateMu.Unlock()

	f.router.SetConfig(cfg)
	f.monitor.SetConfig(cfg)

	f.logger.Info("configuration updated",
		observability.String("environment", string(cfg.Environment)),
		observability.Int("servers", len(cfg.Servers)),
	)

	return nil
}

// ExportConfig writes the active snapshot to a YAML file. Re-importing the
// file yields a config that validates and routes identically.
func (f *Facade) ExportConfig(path string) error {
	return config.SaveEnvironmentConfig(f.router.Config(), path)
}

// ImportConfig loads a snapshot from a YAML file and activates it.
func (f *Facade) ImportConfig(path string) error {
	cfg, err := config.LoadEnvironmentConfig(path)
	if err != nil {
		return err
	}
	return f.UpdateConfig(cfg)
}
