// Package config provides the configuration model for the MCP router:
// server descriptors, resolved environment profiles, validation, YAML
// import/export, and file watching.
package config

import "time"

// Category classifies a server by capability.
type Category string

// Known server categories.
const (
	CategoryCore        Category = "core"
	CategoryDevelopment Category = "development"
	CategoryData        Category = "data"
	CategoryWeb         Category = "web"
	CategoryPlatforms   Category = "platforms"
	CategorySpecialized Category = "specialized"
	CategoryTesting     Category = "testing"
	CategoryAutomation  Category = "automation"
)

// Valid returns true for a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCore, CategoryDevelopment, CategoryData, CategoryWeb,
		CategoryPlatforms, CategorySpecialized, CategoryTesting, CategoryAutomation:
		return true
	}
	return false
}

// Transport identifies the connection transport of a server.
type Transport string

// Supported transports. The transport itself is performed by an external
// layer; this core only threads the connection parameters through.
const (
	TransportStdio     Transport = "stdio"
	TransportWebsocket Transport = "websocket"
	TransportHTTP      Transport = "http"
)

// AuthKind identifies the authentication mechanism of a server.
type AuthKind string

// Supported auth kinds.
const (
	AuthNone           AuthKind = "none"
	AuthAPIKey         AuthKind = "api-key"
	AuthOAuth          AuthKind = "oauth"
	AuthJWT            AuthKind = "jwt"
	AuthServiceAccount AuthKind = "service-account"
)

// Backoff identifies the retry backoff shape.
type Backoff string

// Supported backoff shapes.
const (
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// Priority bounds for servers and the catch-all rule floor.
const (
	MinPriority = 1
	MaxPriority = 10
)

// RetryPolicy describes the retry behavior for connecting to a server.
// Retrying is performed by the transport layer, not by the router.
type RetryPolicy struct {
	Attempts int      `yaml:"attempts" json:"attempts"`
	Delay    Duration `yaml:"delay" json:"delay"`
	Backoff  Backoff  `yaml:"backoff" json:"backoff"`
}

// Connection describes how to reach a server.
type Connection struct {
	Transport Transport   `yaml:"transport" json:"transport"`
	Endpoint  string      `yaml:"endpoint" json:"endpoint"`
	Command   string      `yaml:"command,omitempty" json:"command,omitempty"`
	Timeout   Duration    `yaml:"timeout" json:"timeout"`
	Retry     RetryPolicy `yaml:"retry" json:"retry"`
}

// Auth describes the authentication of a server. CredentialRef is an opaque
// reference into the secrets namespace, never a literal secret.
type Auth struct {
	Kind          AuthKind `yaml:"kind" json:"kind"`
	CredentialRef string   `yaml:"credentialRef,omitempty" json:"credentialRef,omitempty"`
}

// HealthCheck describes the liveness probe policy for a server. A server
// without a HealthCheck is never probed and reports unknown health.
type HealthCheck struct {
	Interval         Duration `yaml:"interval" json:"interval"`
	Timeout          Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold int      `yaml:"failureThreshold" json:"failureThreshold"`
	Endpoint         string   `yaml:"endpoint" json:"endpoint"`
}

// ServerDescriptor is the identity and operating parameters of one backend
// MCP server.
type ServerDescriptor struct {
	ID          string       `yaml:"id" json:"id"`
	Name        string       `yaml:"name" json:"name"`
	Category    Category     `yaml:"category" json:"category"`
	Priority    int          `yaml:"priority" json:"priority"`
	Enabled     bool         `yaml:"enabled" json:"enabled"`
	Connection  Connection   `yaml:"connection" json:"connection"`
	Auth        Auth         `yaml:"auth" json:"auth"`
	HealthCheck *HealthCheck `yaml:"healthCheck,omitempty" json:"healthCheck,omitempty"`
}

// HasAuth returns true if the server requires credentials.
func (s *ServerDescriptor) HasAuth() bool {
	return s.Auth.Kind != "" && s.Auth.Kind != AuthNone
}

// Security holds the global security limits.
type Security struct {
	TLSRequired     bool  `yaml:"tlsRequired" json:"tlsRequired"`
	MaxRequestBytes int64 `yaml:"maxRequestBytes" json:"maxRequestBytes"`
}

// Global holds the environment-wide default policy.
type Global struct {
	DefaultTimeout Duration    `yaml:"defaultTimeout" json:"defaultTimeout"`
	DefaultRetry   RetryPolicy `yaml:"defaultRetry" json:"defaultRetry"`
	LogLevel       string      `yaml:"logLevel" json:"logLevel"`
	Security       Security    `yaml:"security" json:"security"`
}

// EnvironmentConfig is a resolved, immutable-per-session configuration
// snapshot. It is built once by Resolve (or imported from file), treated as
// read-only by the router and monitor, and replaced wholesale on update,
// never mutated field-by-field while concurrent readers hold it.
type EnvironmentConfig struct {
	Environment      Environment        `yaml:"environment" json:"environment"`
	Servers          []ServerDescriptor `yaml:"servers" json:"servers"`
	Global           Global             `yaml:"global" json:"global"`
	SecretsNamespace string             `yaml:"secretsNamespace,omitempty" json:"secretsNamespace,omitempty"`
}

// Server returns the descriptor with the given id.
func (c *EnvironmentConfig) Server(id string) (*ServerDescriptor, bool) {
	for i := range c.Servers {
		if c.Servers[i].ID == id {
			return &c.Servers[i], true
		}
	}
	return nil, false
}

// ServerIDs returns the ids of all servers in declaration order.
func (c *EnvironmentConfig) ServerIDs() []string {
	ids := make([]string, 0, len(c.Servers))
	for i := range c.Servers {
		ids = append(ids, c.Servers[i].ID)
	}
	return ids
}

// EnabledServers returns the descriptors of all enabled servers.
func (c *EnvironmentConfig) EnabledServers() []ServerDescriptor {
	enabled := make([]ServerDescriptor, 0, len(c.Servers))
	for i := range c.Servers {
		if c.Servers[i].Enabled {
			enabled = append(enabled, c.Servers[i])
		}
	}
	return enabled
}

// Clone returns a deep copy of the snapshot. Descriptors are copied so the
// caller cannot alias the published snapshot's HealthCheck pointers.
func (c *EnvironmentConfig) Clone() *EnvironmentConfig {
	out := &EnvironmentConfig{
		Environment:      c.Environment,
		Global:           c.Global,
		SecretsNamespace: c.SecretsNamespace,
		Servers:          make([]ServerDescriptor, len(c.Servers)),
	}
	copy(out.Servers, c.Servers)
	for i := range out.Servers {
		if hc := out.Servers[i].HealthCheck; hc != nil {
			cp := *hc
			out.Servers[i].HealthCheck = &cp
		}
	}
	return out
}

// Default timing constants applied by the resolver and monitor.
const (
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
	DefaultFailureThreshold    = 3
	DefaultConnectionTimeout   = 30 * time.Second
)
