package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadRegistry loads and parses a YAML server registry from the given path.
func LoadRegistry(path string) (*Registry, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("failed to parse registry YAML: %w", err)
	}

	return &reg, nil
}

// LoadEnvironmentConfig loads a resolved EnvironmentConfig snapshot from a
// YAML file, as produced by SaveEnvironmentConfig. The snapshot is validated
// before it is returned; an invalid snapshot is never activated.
func LoadEnvironmentConfig(path string) (*EnvironmentConfig, error) {
	data, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var cfg EnvironmentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if result := ValidateConfig(&cfg); !result.Valid {
		return nil, fmt.Errorf("config validation failed: %w", result.Err())
	}

	return &cfg, nil
}

// SaveEnvironmentConfig writes an EnvironmentConfig snapshot to a YAML file.
// A snapshot saved and re-loaded validates and routes identically.
func SaveEnvironmentConfig(cfg *EnvironmentConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Config files need to be readable by other processes, 0o644 is intentional.
	if err := os.WriteFile(filepath.Clean(path), data, 0o644); err != nil { //nolint:gosec
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// readConfigFile reads a regular file, with friendlier errors for the
// common misconfigurations.
func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path is a directory, not a file: %s", path)
	}

	// Path is validated above via os.Stat and comes from trusted configuration.
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return data, nil
}
