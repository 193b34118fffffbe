// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("FLATBOX_CONFIG", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Install.SystemPath != "/var/lib/flatpak" {
		t.Errorf("SystemPath = %q", cfg.Install.SystemPath)
	}
	if cfg.Sandbox.Shell != "sh" {
		t.Errorf("Shell = %q", cfg.Sandbox.Shell)
	}
	if cfg.Sandbox.AppArmorUnconfined {
		t.Error("AppArmorUnconfined defaults to true")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := writeConfig(t, "sandbox:\n  shell: bash\n")
	t.Setenv("FLATBOX_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Sandbox.Shell != "bash" {
		t.Errorf("Shell = %q, want bash", cfg.Sandbox.Shell)
	}
	// Unset fields keep their defaults.
	if cfg.Install.SystemPath != "/var/lib/flatpak" {
		t.Errorf("SystemPath = %q", cfg.Install.SystemPath)
	}
}

func TestLoadFileExpandsVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	path := writeConfig(t, `
install:
  system_path: ${HOME}/flatpak
  extra_paths:
    - ${FLATBOX_UNSET_VAR:-/srv/flatpak}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Install.SystemPath != "/home/tester/flatpak" {
		t.Errorf("SystemPath = %q", cfg.Install.SystemPath)
	}
	if diff := cmp.Diff([]string{"/srv/flatpak"}, cfg.Install.ExtraPaths); diff != "" {
		t.Errorf("ExtraPaths mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileValidation(t *testing.T) {
	tests := []struct {
		name     string
		contents string
	}{
		{"empty system path", "install:\n  system_path: \"\"\n"},
		{"empty shell", "sandbox:\n  shell: \"\"\n"},
		{"empty extra path", "install:\n  extra_paths:\n    - \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(writeConfig(t, tt.contents)); err == nil {
				t.Error("LoadFile succeeded, want validation error")
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadFile succeeded on a missing file")
	}
}

func TestLoadFileMalformedYAML(t *testing.T) {
	if _, err := LoadFile(writeConfig(t, "install: [not a mapping\n")); err == nil {
		t.Error("LoadFile succeeded on malformed yaml")
	}
}
