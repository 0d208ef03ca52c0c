package config

import (
	"fmt"
	"time"

	"github.com/avolkov/mcprouter/internal/util"
)

// Environment names the active deployment profile.
type Environment string

// Supported environments.
const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	EnvTest        Environment = "test"
)

// Valid returns true for a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTest:
		return true
	}
	return false
}

// Registry is the static base server registry the resolver derives
// environment profiles from. CatchAllServerID names the server the test
// profile keeps enabled regardless of category.
type Registry struct {
	Servers          []ServerDescriptor `yaml:"servers" json:"servers"`
	CatchAllServerID string             `yaml:"catchAllServerId,omitempty" json:"catchAllServerId,omitempty"`
	SecretsNamespace string             `yaml:"secretsNamespace,omitempty" json:"secretsNamespace,omitempty"`
}

// Profile timing constants.
const (
	devMaxConnectionTimeout  = 15 * time.Second
	devMaxHealthInterval     = 60 * time.Second
	prodMinConnectionTimeout = 30 * time.Second
	prodMinHealthInterval    = 300 * time.Second
	prodMinFailureThreshold  = 5
	prodRetryAttempts        = 5
	testConnectionTimeout    = 5 * time.Second

	defaultMaxRequestBytes = 64 << 20
	prodMaxRequestBytes    = 8 << 20
)

// Resolve derives the effective EnvironmentConfig for the given environment
// from the base registry. It is a pure function: deterministic and
// side-effect-free, so callers may cache the result. Requesting an unknown
// environment fails with util.ErrUnknownEnvironment.
func Resolve(registry *Registry, env Environment) (*EnvironmentConfig, error) {
	if !env.Valid() {
		return nil, fmt.Errorf("%w: %q", util.ErrUnknownEnvironment, string(env))
	}

	cfg := &EnvironmentConfig{
		Environment:      env,
		Servers:          make([]ServerDescriptor, 0, len(registry.Servers)),
		SecretsNamespace: registry.SecretsNamespace,
	}

	for i := range registry.Servers {
		// Descriptors are copied so profile overrides never leak back
		// into the registry.
		srv := registry.Servers[i]
		if hc := srv.HealthCheck; hc != nil {
			cp := *hc
			srv.HealthCheck = &cp
		}

		switch env {
		case EnvDevelopment:
			applyDevelopment(&srv)
		case EnvStaging:
			applyStaging(&srv)
		case EnvProduction:
			applyProduction(&srv)
		case EnvTest:
			applyTest(&srv, registry.CatchAllServerID)
		}

		cfg.Servers = append(cfg.Servers, srv)
	}

	cfg.Global = globalFor(env)
	return cfg, nil
}

// applyDevelopment force-enables the local development categories and keeps
// timeouts short so a broken server surfaces quickly.
func applyDevelopment(srv *ServerDescriptor) {
	switch srv.Category {
	case CategoryCore, CategoryDevelopment, CategoryData:
		srv.Enabled = true
	}
	if srv.Connection.Timeout.Duration() == 0 ||
		srv.Connection.Timeout.Duration() > devMaxConnectionTimeout {
		srv.Connection.Timeout = Duration(devMaxConnectionTimeout)
	}
	if hc := srv.HealthCheck; hc != nil {
		if hc.Interval.Duration() == 0 || hc.Interval.Duration() > devMaxHealthInterval {
			hc.Interval = Duration(devMaxHealthInterval)
		}
	}
}

// applyStaging enables everything except the testing category unless it is
// explicitly enabled in the registry.
func applyStaging(srv *ServerDescriptor) {
	if srv.Category != CategoryTesting {
		srv.Enabled = true
	}
	if srv.Connection.Timeout.Duration() == 0 {
		srv.Connection.Timeout = Duration(DefaultConnectionTimeout)
	}
}

// applyProduction restricts the enabled set to explicitly-enabled servers in
// the production-safe categories and hardens timeouts and thresholds.
func applyProduction(srv *ServerDescriptor) {
	switch srv.Category {
	case CategoryCore, CategoryDevelopment, CategoryData, CategoryPlatforms:
		// Keep the registry's explicit Enabled flag.
	default:
		srv.Enabled = false
	}
	if srv.Connection.Timeout.Duration() < prodMinConnectionTimeout {
		srv.Connection.Timeout = Duration(prodMinConnectionTimeout)
	}
	srv.Connection.Retry = RetryPolicy{
		Attempts: prodRetryAttempts,
		Delay:    srv.Connection.Retry.Delay,
		Backoff:  BackoffExponential,
	}
	if srv.Connection.Retry.Delay.Duration() == 0 {
		srv.Connection.Retry.Delay = Duration(time.Second)
	}
	if hc := srv.HealthCheck; hc != nil {
		if hc.Interval.Duration() < prodMinHealthInterval {
			hc.Interval = Duration(prodMinHealthInterval)
		}
		if hc.FailureThreshold < prodMinFailureThreshold {
			hc.FailureThreshold = prodMinFailureThreshold
		}
	}
}

// applyTest enables only core and testing servers plus the designated
// catch-all, with a short timeout, a single retry attempt, and health checks
// disabled entirely.
func applyTest(srv *ServerDescriptor, catchAllID string) {
	switch {
	case srv.ID == catchAllID && catchAllID != "":
		srv.Enabled = true
	case srv.Category == CategoryCore || srv.Category == CategoryTesting:
		srv.Enabled = true
	default:
		srv.Enabled = false
	}
	srv.Connection.Timeout = Duration(testConnectionTimeout)
	srv.Connection.Retry.Attempts = 1
	srv.HealthCheck = nil
}

// globalFor returns the environment-wide policy for a profile.
func globalFor(env Environment) Global {
	switch env {
	case EnvDevelopment:
		return Global{
			DefaultTimeout: Duration(devMaxConnectionTimeout),
			DefaultRetry:   RetryPolicy{Attempts: 3, Delay: Duration(time.Second), Backoff: BackoffLinear},
			LogLevel:       "debug",
			Security:       Security{MaxRequestBytes: defaultMaxRequestBytes},
		}
	case EnvProduction:
		return Global{
			DefaultTimeout: Duration(prodMinConnectionTimeout),
			DefaultRetry:   RetryPolicy{Attempts: prodRetryAttempts, Delay: Duration(time.Second), Backoff: BackoffExponential},
			LogLevel:       "warn",
			Security:       Security{TLSRequired: true, MaxRequestBytes: prodMaxRequestBytes},
		}
	case EnvTest:
		return Global{
			DefaultTimeout: Duration(testConnectionTimeout),
			DefaultRetry:   RetryPolicy{Attempts: 1, Delay: Duration(100 * time.Millisecond), Backoff: BackoffLinear},
			LogLevel:       "error",
			Security:       Security{MaxRequestBytes: defaultMaxRequestBytes},
		}
	default: // staging
		return Global{
			DefaultTimeout: Duration(DefaultConnectionTimeout),
			DefaultRetry:   RetryPolicy{Attempts: 3, Delay: Duration(time.Second), Backoff: BackoffExponential},
			LogLevel:       "info",
			Security:       Security{MaxRequestBytes: defaultMaxRequestBytes},
		}
	}
}
