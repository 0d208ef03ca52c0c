// Package router implements rule-based dispatch of tool-call requests
// across the server pool, with pluggable load-balancing strategies.
package router

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/avolkov/mcprouter/internal/config"
	"github.com/avolkov/mcprouter/internal/observability"
	"github.com/avolkov/mcprouter/internal/util"
)

// Strategy selects one server among equally-eligible candidates.
type Strategy string

// Supported load-balancing strategies.
const (
	StrategyPriority   Strategy = "priority-based"
	StrategyRoundRobin Strategy = "round-robin"
	StrategyLeastConn  Strategy = "least-connections"
	StrategyRandom     Strategy = "random"
)

// Request is an inbound routing request. RoutingKey is the string matched
// against rule patterns (e.g. a tool or method name); ServerID, if set,
// bypasses rule matching and pins the request to one server.
type Request struct {
	RoutingKey string `json:"routingKey"`
	ServerID   string `json:"serverId,omitempty"`
}

// LivenessFunc reports whether a server is currently usable. The health
// monitor supplies the real implementation.
type LivenessFunc func(serverID string) bool

// Router routes requests to servers. routeRequest performs no I/O and never
// blocks; only the config snapshot swap and the shared counters require
// synchronization.
type Router struct {
	cfg      atomic.Pointer[config.EnvironmentConfig]
	live     LivenessFunc
	strategy Strategy
	load     *LoadCounterStore
	rr       *RoundRobinStore
	logger   observability.Logger

	mu    sync.RWMutex
	rules []Rule
}

// Option is a functional option for configuring the router.
type Option func(*Router)

// WithLogger sets the logger for the router.
func WithLogger(logger observability.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// WithStrategy sets the load-balancing strategy.
func WithStrategy(strategy Strategy) Option {
	return func(r *Router) {
		r.strategy = strategy
	}
}

// WithLiveness sets the liveness check used to filter candidates.
func WithLiveness(fn LivenessFunc) Option {
	return func(r *Router) {
		r.live = fn
	}
}

// WithLoadCounterStore injects a shared load counter store.
func WithLoadCounterStore(store *LoadCounterStore) Option {
	return func(r *Router) {
		r.load = store
	}
}

// New creates a router over the given config snapshot.
func New(cfg *config.EnvironmentConfig, opts ...Option) *Router {
	r := &Router{
		strategy: StrategyPriority,
		load:     NewLoadCounterStore(),
		rr:       NewRoundRobinStore(),
		logger:   observability.NopLogger(),
		live:     func(string) bool { return true },
		rules:    make([]Rule, 0),
	}
	r.cfg.Store(cfg)

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// SetConfig atomically swaps the config snapshot. A routing decision in
// progress reads either the old or the new snapshot entirely, never a mix.
func (r *Router) SetConfig(cfg *config.EnvironmentConfig) {
	r.cfg.Store(cfg)
}

// Config returns the current snapshot.
func (r *Router) Config() *config.EnvironmentConfig {
	return r.cfg.Load()
}

// Strategy returns the configured load-balancing strategy.
func (r *Router) Strategy() Strategy {
	return r.strategy
}

// AddRule inserts a rule at the front of the rule list and re-sorts stable
// by priority descending, so a rule added later wins ties against existing
// rules of equal priority.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append([]Rule{rule}, r.rules...)
	sort.SliceStable(r.rules, func(i, j int) bool {
		return r.rules[i].Priority > r.rules[j].Priority
	})
}

// RemoveRule removes every rule whose pattern equals the given one (string
// equality for literals, source equality for regexes). It returns the
// number of rules removed.
func (r *Router) RemoveRule(pattern Pattern) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.rules[:0]
	removed := 0
	for _, rule := range r.rules {
		if rule.Pattern.Equal(pattern) {
			removed++
			continue
		}
		kept = append(kept, rule)
	}
	r.rules = kept
	return removed
}

// Rules returns a defensive copy of the rule list in evaluation order.
func (r *Router) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]Rule, len(r.rules))
	copy(rules, r.rules)
	return rules
}

// ResetLoadCounters clears the least-connections and round-robin counters.
func (r *Router) ResetLoadCounters() {
	r.load.Reset()
	r.rr.Reset()
}

// LoadStats returns a copy of the current per-server load counters.
func (r *Router) LoadStats() map[string]int64 {
	return r.load.Snapshot()
}

// Route resolves a request to a server id. It fails with
// util.ErrServerUnavailable when an explicitly requested server is unknown
// or not live, and with util.ErrNoAvailableServer when no candidate remains
// after filtering and no catch-all applies.
func (r *Router) Route(req Request) (string, error) {
	cfg := r.cfg.Load()

	if req.ServerID != "" {
		return r.routePinned(cfg, req)
	}

	candidates, fallback := r.matchCandidates(cfg, req.RoutingKey)
	if len(candidates) == 0 {
		candidates = fallback
		if len(candidates) > 0 {
			GetMetrics().FallbacksTotal.Inc()
		}
	}
	if len(candidates) == 0 {
		GetMetrics().RequestsTotal.WithLabelValues(string(r.strategy), "no_server").Inc()
		return "", util.NewNoAvailableServerError(req.RoutingKey)
	}

	winner := r.selectServer(candidates)
	r.load.Increment(winner)

	GetMetrics().RequestsTotal.WithLabelValues(string(r.strategy), "routed").Inc()
	GetMetrics().SelectionsTotal.WithLabelValues(winner).Inc()

	r.logger.Debug("routed request",
		observability.String("routingKey", req.RoutingKey),
		observability.String("server", winner),
		observability.String("strategy", string(r.strategy)),
	)

	return winner, nil
}

// routePinned validates an explicitly requested server.
func (r *Router) routePinned(cfg *config.EnvironmentConfig, req Request) (string, error) {
	srv, ok := cfg.Server(req.ServerID)
	if !ok {
		GetMetrics().RequestsTotal.WithLabelValues(string(r.strategy), "pinned_unavailable").Inc()
		return "", util.NewServerUnavailableError(req.RoutingKey, req.ServerID, "server not in current config")
	}
	if !srv.Enabled {
		GetMetrics().RequestsTotal.WithLabelValues(string(r.strategy), "pinned_unavailable").Inc()
		return "", util.NewServerUnavailableError(req.RoutingKey, req.ServerID, "server is disabled")
	}
	if !r.live(req.ServerID) {
		GetMetrics().RequestsTotal.WithLabelValues(string(r.strategy), "pinned_unavailable").Inc()
		return "", util.NewServerUnavailableError(req.RoutingKey, req.ServerID, "server is not live")
	}

	GetMetrics().RequestsTotal.WithLabelValues(string(r.strategy), "routed").Inc()
	return req.ServerID, nil
}

// candidate pairs a matched rule with its resolved target server.
type candidate struct {
	rule Rule
	srv  *config.ServerDescriptor
}

// matchCandidates evaluates the rule list against the routing key and
// returns the filtered candidates in evaluation order, plus the catch-all
// fallback (at most one rule, the lowest-priority catch-all) already
// filtered the same way.
func (r *Router) matchCandidates(cfg *config.EnvironmentConfig, key string) (matched, fallback []candidate) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var catchAll *Rule
	for i := range r.rules {
		rule := r.rules[i]
		if rule.Pattern.IsCatchAll() {
			// The rule list is evaluation-ordered, so the last
			// catch-all seen is the lowest-priority one.
			catchAll = &r.rules[i]
			continue
		}
		if !rule.Pattern.Matches(key) {
			continue
		}
		if c, ok := r.eligible(cfg, rule); ok {
			matched = append(matched, c)
		}
	}

	if catchAll != nil {
		if catchAll.ServerID == "" {
			// An untargeted catch-all opens the whole pool, in
			// declaration order.
			for i := range cfg.Servers {
				if c, ok := r.eligibleServer(&cfg.Servers[i], *catchAll); ok {
					fallback = append(fallback, c)
				}
			}
		} else if c, ok := r.eligible(cfg, *catchAll); ok {
			fallback = []candidate{c}
		}
	}

	return matched, fallback
}

// eligible filters one rule: its target must exist, be enabled, be live,
// and satisfy the rule's conditions.
func (r *Router) eligible(cfg *config.EnvironmentConfig, rule Rule) (candidate, bool) {
	srv, ok := cfg.Server(rule.ServerID)
	if !ok {
		return candidate{}, false
	}
	return r.eligibleServer(srv, rule)
}

// eligibleServer filters one concrete server against a rule's conditions.
func (r *Router) eligibleServer(srv *config.ServerDescriptor, rule Rule) (candidate, bool) {
	if !srv.Enabled || !r.live(srv.ID) {
		return candidate{}, false
	}
	if !rule.Conditions.Satisfied(srv) {
		return candidate{}, false
	}
	return candidate{rule: rule, srv: srv}, true
}

// selectServer applies the configured strategy to the candidates, which
// arrive in rule evaluation order.
func (r *Router) selectServer(candidates []candidate) string {
	switch r.strategy {
	case StrategyRoundRobin:
		return r.selectRoundRobin(candidates)
	case StrategyLeastConn:
		return r.selectLeastConn(candidates)
	case StrategyRandom:
		return r.selectRandom(candidates)
	default:
		return r.selectPriority(candidates)
	}
}

// selectPriority picks the highest-priority server; ties keep rule order.
func (r *Router) selectPriority(candidates []candidate) string {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.srv.Priority > best.srv.Priority {
			best = c
		}
	}
	return best.srv.ID
}

// selectRoundRobin advances the shared counter keyed by the sorted,
// comma-joined candidate id set and cycles through the sorted ids.
func (r *Router) selectRoundRobin(candidates []candidate) string {
	ids := dedupedIDs(candidates)
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	key := strings.Join(sorted, ",")
	idx := r.rr.Next(key, len(sorted))
	return sorted[idx]
}

// selectLeastConn picks the server with the smallest load counter; ties
// keep rule order.
func (r *Router) selectLeastConn(candidates []candidate) string {
	ids := dedupedIDs(candidates)
	best := ids[0]
	bestLoad := r.load.Get(best)
	for _, id := range ids[1:] {
		if load := r.load.Get(id); load < bestLoad {
			best = id
			bestLoad = load
		}
	}
	return best
}

// selectRandom picks uniformly among the candidates.
func (r *Router) selectRandom(candidates []candidate) string {
	ids := dedupedIDs(candidates)
	return ids[secureRandomInt(len(ids))]
}

// dedupedIDs returns the candidate server ids, first occurrence wins,
// preserving rule order.
func dedupedIDs(candidates []candidate) []string {
	seen := make(map[string]bool, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.srv.ID] {
			continue
		}
		seen[c.srv.ID] = true
		ids = append(ids, c.srv.ID)
	}
	return ids
}

// secureRandomInt returns a cryptographically secure random int in [0, n).
func secureRandomInt(n int) int {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int(binary.LittleEndian.Uint64(b[:]) % uint64(n)) //nolint:gosec // bounds checked
}
