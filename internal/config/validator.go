package config

import (
	"fmt"

	"github.com/avolkov/mcprouter/internal/util"
)

// ValidationResult is the outcome of validating a configuration snapshot.
// An invalid result blocks activation of that config.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Err returns the result as an error, or nil if the config is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return util.ValidationErrors(r.Errors)
}

// Validator validates configuration snapshots.
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{errors: make([]string, 0)}
}

// ValidateConfig validates an EnvironmentConfig snapshot.
func ValidateConfig(cfg *EnvironmentConfig) ValidationResult {
	return NewValidator().Validate(cfg)
}

// Validate validates the snapshot and returns the result.
func (v *Validator) Validate(cfg *EnvironmentConfig) ValidationResult {
	v.errors = v.errors[:0]

	if cfg == nil {
		v.addError("", "configuration is nil")
		return v.result()
	}

	if !cfg.Environment.Valid() {
		v.addError("environment", fmt.Sprintf("unknown environment %q", string(cfg.Environment)))
	}

	seen := make(map[string]bool, len(cfg.Servers))
	for i := range cfg.Servers {
		srv := &cfg.Servers[i]
		path := fmt.Sprintf("servers[%d]", i)
		if srv.ID != "" {
			if seen[srv.ID] {
				v.addError(path+".id", fmt.Sprintf("duplicate server id %q", srv.ID))
			}
			seen[srv.ID] = true
			path = fmt.Sprintf("servers[%s]", srv.ID)
		}
		v.validateServer(path, srv)
	}

	return v.result()
}

// validateServer validates a single server descriptor.
func (v *Validator) validateServer(path string, srv *ServerDescriptor) {
	if srv.ID == "" {
		v.addError(path+".id", "server id is required")
	}
	if srv.Name == "" {
		v.addError(path+".name", "server name is required")
	}
	if !srv.Category.Valid() {
		v.addError(path+".category", fmt.Sprintf("unknown category %q", string(srv.Category)))
	}
	if srv.Priority < MinPriority || srv.Priority > MaxPriority {
		v.addError(path+".priority",
			fmt.Sprintf("priority %d out of range [%d,%d]", srv.Priority, MinPriority, MaxPriority))
	}

	v.validateConnection(path+".connection", &srv.Connection)
	v.validateAuth(path+".auth", &srv.Auth)
	if srv.HealthCheck != nil {
		v.validateHealthCheck(path+".healthCheck", srv.HealthCheck)
	}
}

// validateConnection validates connection parameters.
func (v *Validator) validateConnection(path string, conn *Connection) {
	switch conn.Transport {
	case TransportStdio, TransportWebsocket, TransportHTTP:
	case "":
		v.addError(path+".transport", "transport is required")
	default:
		v.addError(path+".transport", fmt.Sprintf("unknown transport %q", string(conn.Transport)))
	}

	if conn.Endpoint == "" {
		v.addError(path+".endpoint", "connection endpoint is required")
	}
	if conn.Transport == TransportStdio && conn.Command == "" {
		v.addError(path+".command", "command is required for stdio transport")
	}
	if conn.Timeout.Duration() < 0 {
		v.addError(path+".timeout", "timeout must not be negative")
	}

	if conn.Retry.Attempts < 0 {
		v.addError(path+".retry.attempts", "retry attempts must not be negative")
	}
	switch conn.Retry.Backoff {
	case "", BackoffLinear, BackoffExponential:
	default:
		v.addError(path+".retry.backoff",
			fmt.Sprintf("unknown backoff %q", string(conn.Retry.Backoff)))
	}
}

// validateAuth validates auth parameters.
func (v *Validator) validateAuth(path string, auth *Auth) {
	switch auth.Kind {
	case "", AuthNone, AuthAPIKey, AuthOAuth, AuthJWT, AuthServiceAccount:
	default:
		v.addError(path+".kind", fmt.Sprintf("unknown auth kind %q", string(auth.Kind)))
	}
	if auth.Kind != "" && auth.Kind != AuthNone && auth.CredentialRef == "" {
		v.addError(path+".credentialRef",
			fmt.Sprintf("credentialRef is required for auth kind %q", string(auth.Kind)))
	}
}

// validateHealthCheck validates health check parameters.
func (v *Validator) validateHealthCheck(path string, hc *HealthCheck) {
	if hc.Interval.Duration() < 0 {
		v.addError(path+".interval", "interval must not be negative")
	}
	if hc.Timeout.Duration() < 0 {
		v.addError(path+".timeout", "timeout must not be negative")
	}
	if hc.FailureThreshold < 0 {
		v.addError(path+".failureThreshold", "failureThreshold must not be negative")
	}
	if hc.Endpoint == "" {
		v.addError(path+".endpoint", "health check endpoint is required")
	}
}

// addError records a validation error at the given field path.
func (v *Validator) addError(path, message string) {
	if path == "" {
		v.errors = append(v.errors, message)
		return
	}
	v.errors = append(v.errors, fmt.Sprintf("%s: %s", path, message))
}

// result builds the final ValidationResult.
func (v *Validator) result() ValidationResult {
	if len(v.errors) == 0 {
		return ValidationResult{Valid: true}
	}
	errs := make([]string, len(v.errors))
	copy(errs, v.errors)
	return ValidationResult{Valid: false, Errors: errs}
}
