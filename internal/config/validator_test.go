package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSnapshot builds a minimal snapshot that passes validation.
func validSnapshot() *EnvironmentConfig {
	return &EnvironmentConfig{
		Environment: EnvDevelopment,
		Servers: []ServerDescriptor{
			{
				ID:       "filesystem",
				Name:     "Filesystem",
				Category: CategoryCore,
				Priority: 9,
				Enabled:  true,
				Connection: Connection{
					Transport: TransportStdio,
					Endpoint:  "local",
					Command:   "mcp-server-filesystem",
					Timeout:   Duration(10 * time.Second),
				},
			},
		},
	}
}

func TestValidateConfig_Valid(t *testing.T) {
	t.Parallel()

	result := ValidateConfig(validSnapshot())
	assert.True(t, result.Valid)
	assert.Empty(t, result.Errors)
	assert.NoError(t, result.Err())
}

func TestValidateConfig_Nil(t *testing.T) {
	t.Parallel()

	result := ValidateConfig(nil)
	assert.False(t, result.Valid)
	assert.Error(t, result.Err())
}

func TestValidateConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*EnvironmentConfig)
		contains string
	}{
		{
			name: "unknown environment",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Environment = "qa"
			},
			contains: `unknown environment "qa"`,
		},
		{
			name: "missing server id",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].ID = ""
			},
			contains: "server id is required",
		},
		{
			name: "missing name",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Name = ""
			},
			contains: "servers[filesystem].name",
		},
		{
			name: "unknown category",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Category = "misc"
			},
			contains: `unknown category "misc"`,
		},
		{
			name: "priority below range",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Priority = 0
			},
			contains: "priority 0 out of range",
		},
		{
			name: "priority above range",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Priority = 11
			},
			contains: "priority 11 out of range",
		},
		{
			name: "missing endpoint",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Connection.Endpoint = ""
			},
			contains: "connection endpoint is required",
		},
		{
			name: "stdio without command",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Connection.Command = ""
			},
			contains: "command is required for stdio transport",
		},
		{
			name: "unknown transport",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Connection.Transport = "pigeon"
			},
			contains: `unknown transport "pigeon"`,
		},
		{
			name: "negative timeout",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Connection.Timeout = Duration(-time.Second)
			},
			contains: "timeout must not be negative",
		},
		{
			name: "negative retry attempts",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Connection.Retry.Attempts = -1
			},
			contains: "retry attempts must not be negative",
		},
		{
			name: "unknown backoff",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Connection.Retry.Backoff = "fibonacci"
			},
			contains: `unknown backoff "fibonacci"`,
		},
		{
			name: "auth without credential ref",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Auth = Auth{Kind: AuthAPIKey}
			},
			contains: "credentialRef is required",
		},
		{
			name: "unknown auth kind",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].Auth = Auth{Kind: "password", CredentialRef: "ref"}
			},
			contains: `unknown auth kind "password"`,
		},
		{
			name: "health check without endpoint",
			mutate: func(cfg *EnvironmentConfig) {
				cfg.Servers[0].HealthCheck = &HealthCheck{
					Interval: Duration(30 * time.Second),
					Timeout:  Duration(5 * time.Second),
				}
			},
			contains: "health check endpoint is required",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validSnapshot()
			tt.mutate(cfg)

			result := ValidateConfig(cfg)
			require.False(t, result.Valid)
			require.Error(t, result.Err())

			assert.Contains(t, result.Err().Error(), tt.contains)
		})
	}
}

func TestValidateConfig_DuplicateIDs(t *testing.T) {
	t.Parallel()

	cfg := validSnapshot()
	cfg.Servers = append(cfg.Servers, cfg.Servers[0])

	result := ValidateConfig(cfg)
	require.False(t, result.Valid)
	assert.Contains(t, result.Err().Error(), `duplicate server id "filesystem"`)
}
