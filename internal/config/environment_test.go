package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/mcprouter/internal/util"
)

// testRegistry builds a registry covering all category branches the
// resolver distinguishes.
func testRegistry() *Registry {
	return &Registry{
		CatchAllServerID: "echo",
		SecretsNamespace: "mcprouter/secrets",
		Servers: []ServerDescriptor{
			{
				ID:       "filesystem",
				Name:     "Filesystem",
				Category: CategoryCore,
				Priority: 9,
				Enabled:  false,
				Connection: Connection{
					Transport: TransportStdio,
					Endpoint:  "local",
					Command:   "mcp-server-filesystem",
					Timeout:   Duration(60 * time.Second),
					Retry:     RetryPolicy{Attempts: 3, Delay: Duration(time.Second), Backoff: BackoffLinear},
				},
				HealthCheck: &HealthCheck{
					Interval:         Duration(120 * time.Second),
					Timeout:          Duration(5 * time.Second),
					FailureThreshold: 3,
					Endpoint:         "/health",
				},
			},
			{
				ID:       "github",
				Name:     "GitHub",
				Category: CategoryPlatforms,
				Priority: 6,
				Enabled:  true,
				Connection: Connection{
					Transport: TransportHTTP,
					Endpoint:  "https://mcp-github.internal:8443",
					Timeout:   Duration(10 * time.Second),
				},
				Auth: Auth{Kind: AuthOAuth, CredentialRef: "github-oauth"},
				HealthCheck: &HealthCheck{
					Interval:         Duration(60 * time.Second),
					Timeout:          Duration(5 * time.Second),
					FailureThreshold: 3,
					Endpoint:         "/health",
				},
			},
			{
				ID:       "browser",
				Name:     "Browser",
				Category: CategoryAutomation,
				Priority: 4,
				Enabled:  true,
				Connection: Connection{
					Transport: TransportWebsocket,
					Endpoint:  "wss://mcp-browser.internal:9443",
					Timeout:   Duration(20 * time.Second),
				},
			},
			{
				ID:       "echo",
				Name:     "Echo",
				Category: CategorySpecialized,
				Priority: 1,
				Enabled:  false,
				Connection: Connection{
					Transport: TransportHTTP,
					Endpoint:  "http://localhost:8099",
					Timeout:   Duration(5 * time.Second),
				},
			},
		},
	}
}

func TestResolve_UnknownEnvironment(t *testing.T) {
	t.Parallel()

	_, err := Resolve(testRegistry(), Environment("qa"))
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrUnknownEnvironment)
	assert.Contains(t, err.Error(), "qa")
}

func TestResolve_Development(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(testRegistry(), EnvDevelopment)
	require.NoError(t, err)

	fs, ok := cfg.Server("filesystem")
	require.True(t, ok)
	assert.True(t, fs.Enabled, "core servers are force-enabled")
	assert.Equal(t, 15*time.Second, fs.Connection.Timeout.Duration(), "timeouts are capped")
	require.NotNil(t, fs.HealthCheck)
	assert.Equal(t, 60*time.Second, fs.HealthCheck.Interval.Duration(), "intervals are capped")

	gh, ok := cfg.Server("github")
	require.True(t, ok)
	assert.True(t, gh.Enabled, "explicit registry flag survives")
	assert.Equal(t, 10*time.Second, gh.Connection.Timeout.Duration(), "short timeouts stay")

	assert.Equal(t, "debug", cfg.Global.LogLevel)
	assert.False(t, cfg.Global.Security.TLSRequired)
}

func TestResolve_Staging(t *testing.T) {
	t.Parallel()

	registry := testRegistry()
	registry.Servers = append(registry.Servers, ServerDescriptor{
		ID:       "mock",
		Name:     "Mock",
		Category: CategoryTesting,
		Priority: 1,
		Enabled:  false,
		Connection: Connection{
			Transport: TransportHTTP,
			Endpoint:  "http://localhost:8098",
		},
	})

	cfg, err := Resolve(registry, EnvStaging)
	require.NoError(t, err)

	for _, srv := range cfg.Servers {
		if srv.Category == CategoryTesting {
			assert.False(t, srv.Enabled, "testing servers stay disabled in staging")
			continue
		}
		assert.True(t, srv.Enabled, "server %s should be enabled", srv.ID)
	}

	mock, ok := cfg.Server("mock")
	require.True(t, ok)
	assert.Equal(t, DefaultConnectionTimeout, mock.Connection.Timeout.Duration(), "zero timeout gets the default")
	assert.Equal(t, "info", cfg.Global.LogLevel)
}

func TestResolve_Production(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(testRegistry(), EnvProduction)
	require.NoError(t, err)

	fs, ok := cfg.Server("filesystem")
	require.True(t, ok)
	assert.False(t, fs.Enabled, "registry flag is kept for production-safe categories")

	gh, ok := cfg.Server("github")
	require.True(t, ok)
	assert.True(t, gh.Enabled)
	assert.Equal(t, 30*time.Second, gh.Connection.Timeout.Duration(), "timeouts are raised to the floor")
	assert.Equal(t, 5, gh.Connection.Retry.Attempts)
	assert.Equal(t, BackoffExponential, gh.Connection.Retry.Backoff)
	require.NotNil(t, gh.HealthCheck)
	assert.Equal(t, 300*time.Second, gh.HealthCheck.Interval.Duration())
	assert.Equal(t, 5, gh.HealthCheck.FailureThreshold)

	browser, ok := cfg.Server("browser")
	require.True(t, ok)
	assert.False(t, browser.Enabled, "automation is disabled in production")

	assert.Equal(t, "warn", cfg.Global.LogLevel)
	assert.True(t, cfg.Global.Security.TLSRequired)
}

func TestResolve_Test(t *testing.T) {
	t.Parallel()

	cfg, err := Resolve(testRegistry(), EnvTest)
	require.NoError(t, err)

	fs, ok := cfg.Server("filesystem")
	require.True(t, ok)
	assert.True(t, fs.Enabled, "core stays enabled")
	assert.Nil(t, fs.HealthCheck, "health checks are disabled")
	assert.Equal(t, 5*time.Second, fs.Connection.Timeout.Duration())
	assert.Equal(t, 1, fs.Connection.Retry.Attempts)

	echo, ok := cfg.Server("echo")
	require.True(t, ok)
	assert.True(t, echo.Enabled, "the designated catch-all is enabled regardless of category")

	browser, ok := cfg.Server("browser")
	require.True(t, ok)
	assert.False(t, browser.Enabled)

	assert.Equal(t, "error", cfg.Global.LogLevel)
}

func TestResolve_DoesNotMutateRegistry(t *testing.T) {
	t.Parallel()

	registry := testRegistry()

	_, err := Resolve(registry, EnvProduction)
	require.NoError(t, err)

	fs := registry.Servers[0]
	assert.False(t, fs.Enabled)
	assert.Equal(t, 60*time.Second, fs.Connection.Timeout.Duration())
	require.NotNil(t, fs.HealthCheck)
	assert.Equal(t, 120*time.Second, fs.HealthCheck.Interval.Duration())
	assert.Equal(t, 3, fs.HealthCheck.FailureThreshold)
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()

	registry := testRegistry()

	first, err := Resolve(registry, EnvStaging)
	require.NoError(t, err)
	second, err := Resolve(registry, EnvStaging)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEnvironment_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, EnvDevelopment.Valid())
	assert.True(t, EnvStaging.Valid())
	assert.True(t, EnvProduction.Valid())
	assert.True(t, EnvTest.Valid())
	assert.False(t, Environment("qa").Valid())
	assert.False(t, Environment("").Valid())
}
