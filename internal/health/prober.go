package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/avolkov/mcprouter/internal/config"
	"github.com/avolkov/mcprouter/internal/observability"
	"github.com/avolkov/mcprouter/internal/util"
)

// ProbeResult is the outcome of one liveness probe.
type ProbeResult struct {
	OK      bool
	Latency time.Duration
}

// Prober performs a single bounded-timeout liveness probe against a server.
// Implementations must honor context cancellation.
type Prober interface {
	Probe(ctx context.Context, srv *config.ServerDescriptor) (ProbeResult, error)
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context, srv *config.ServerDescriptor) (ProbeResult, error)

// Probe implements Prober.
func (f ProbeFunc) Probe(ctx context.Context, srv *config.ServerDescriptor) (ProbeResult, error) {
	return f(ctx, srv)
}

// HTTPProber probes servers with an HTTP GET to the health check endpoint.
type HTTPProber struct {
	client *http.Client
}

// HTTPProberOption is a functional option for configuring the prober.
type HTTPProberOption func(*HTTPProber)

// WithHTTPClient sets the HTTP client used for probes.
func WithHTTPClient(client *http.Client) HTTPProberOption {
	return func(p *HTTPProber) {
		p.client = client
	}
}

// NewHTTPProber creates a new HTTP prober.
func NewHTTPProber(opts ...HTTPProberOption) *HTTPProber {
	p := &HTTPProber{
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe performs a GET against the server's health check endpoint. The
// endpoint may be absolute or a path relative to the connection endpoint.
func (p *HTTPProber) Probe(ctx context.Context, srv *config.ServerDescriptor) (ProbeResult, error) {
	url := probeURL(srv)
	if url == "" {
		return ProbeResult{}, util.NewProbeError(srv.ID, fmt.Errorf("no health check endpoint"))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return ProbeResult{}, util.NewProbeError(srv.ID, err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	latency := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ProbeResult{Latency: latency}, util.NewProbeTimeoutError(srv.ID, latency)
		}
		return ProbeResult{Latency: latency}, util.NewProbeError(srv.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return ProbeResult{OK: true, Latency: latency}, nil
	}
	return ProbeResult{Latency: latency},
		util.NewProbeError(srv.ID, fmt.Errorf("unexpected status %d", resp.StatusCode))
}

// probeURL resolves the probe target from the descriptor.
func probeURL(srv *config.ServerDescriptor) string {
	if srv.HealthCheck == nil {
		return ""
	}
	endpoint := srv.HealthCheck.Endpoint
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	base := strings.TrimSuffix(srv.Connection.Endpoint, "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return base + endpoint
}

// BreakerProber decorates a Prober with one circuit breaker per server so a
// persistently dead endpoint is not hammered on every tick. A rejected probe
// is reported as a normal failed check.
type BreakerProber struct {
	inner    Prober
	logger   observability.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	timeout  time.Duration
}

// BreakerProberOption is a functional option for configuring the prober.
type BreakerProberOption func(*BreakerProber)

// WithBreakerLogger sets the logger for breaker state transitions.
func WithBreakerLogger(logger observability.Logger) BreakerProberOption {
	return func(p *BreakerProber) {
		p.logger = logger
	}
}

// WithBreakerTimeout sets how long an open breaker stays open before a
// trial probe is allowed through.
func WithBreakerTimeout(timeout time.Duration) BreakerProberOption {
	return func(p *BreakerProber) {
		p.timeout = timeout
	}
}

// NewBreakerProber creates a breaker-guarded prober around inner.
func NewBreakerProber(inner Prober, opts ...BreakerProberOption) *BreakerProber {
	p := &BreakerProber{
		inner:    inner,
		logger:   observability.NopLogger(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		timeout:  2 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe implements Prober.
func (p *BreakerProber) Probe(ctx context.Context, srv *config.ServerDescriptor) (ProbeResult, error) {
	cb := p.breaker(srv.ID)

	out, err := cb.Execute(func() (interface{}, error) {
		result, probeErr := p.inner.Probe(ctx, srv)
		if probeErr != nil {
			return result, probeErr
		}
		return result, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return ProbeResult{}, util.NewProbeError(srv.ID, err)
		}
		if result, ok := out.(ProbeResult); ok {
			return result, err
		}
		return ProbeResult{}, err
	}

	result, _ := out.(ProbeResult)
	return result, nil
}

// breaker returns the per-server circuit breaker, creating it on first use.
func (p *BreakerProber) breaker(serverID string) *gobreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cb, ok := p.breakers[serverID]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    serverID,
		Timeout: p.timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.logger.Info("probe circuit breaker state change",
				observability.String("server", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})
	p.breakers[serverID] = cb
	return cb
}
