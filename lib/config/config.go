// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for flatbox.
//
// Configuration is loaded from a single file specified by the
// FLATBOX_CONFIG environment variable or the --config flag. There is no
// search-path discovery: with neither set, the compiled-in defaults
// apply. This keeps configuration deterministic and auditable, with no
// hidden overrides. The only expansion performed is ${VAR} and
// ${VAR:-default} in path values, for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config is the flatbox configuration.
type Config struct {
	// Install configures image install root discovery.
	Install InstallConfig `yaml:"install"`

	// Sandbox configures composition and launch defaults.
	Sandbox SandboxConfig `yaml:"sandbox"`
}

// InstallConfig configures the install root search list.
type InstallConfig struct {
	// SystemPath overrides the compiled-in system install root.
	// Default: /var/lib/flatpak
	SystemPath string `yaml:"system_path"`

	// ExtraPaths are additional install roots searched after the system
	// and per-user roots, in order.
	ExtraPaths []string `yaml:"extra_paths"`
}

// SandboxConfig configures composition and launch defaults.
type SandboxConfig struct {
	// Shell is the in-sandbox shell used to chain ldconfig before the
	// user command. Default: sh
	Shell string `yaml:"shell"`

	// AppArmorUnconfined requests the aa-exec unconfined re-wrap by
	// default; the --apparmor-unconfined flag overrides per run.
	AppArmorUnconfined bool `yaml:"apparmor_unconfined"`
}

// Default returns the default configuration, used as the base before a
// config file (if any) is merged over it.
func Default() *Config {
	return &Config{
		Install: InstallConfig{
			SystemPath: "/var/lib/flatpak",
		},
		Sandbox: SandboxConfig{
			Shell: "sh",
		},
	}
}

// Load loads configuration from FLATBOX_CONFIG, or returns the defaults
// when the variable is not set.
func Load() (*Config, error) {
	path := os.Getenv("FLATBOX_CONFIG")
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. Environment
// variables never override file values; only ${VAR} expansion inside
// path values consults the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Install.SystemPath = expandVars(c.Install.SystemPath, vars)
	for i, path := range c.Install.ExtraPaths {
		c.Install.ExtraPaths[i] = expandVars(path, vars)
	}
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Install.SystemPath == "" {
		errs = append(errs, fmt.Errorf("install.system_path is required"))
	}
	for _, path := range c.Install.ExtraPaths {
		if path == "" {
			errs = append(errs, fmt.Errorf("install.extra_paths entries must not be empty"))
		}
	}
	if c.Sandbox.Shell == "" {
		errs = append(errs, fmt.Errorf("sandbox.shell is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
