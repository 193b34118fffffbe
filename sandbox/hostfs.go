// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// Host exposure scan locations. Overridden in tests; production always
// scans the real root and /run.
var (
	hostRootDir = "/"
	hostRunDir  = "/run"
)

// mergedUsrDirs are the top-level directories a merged-usr runtime
// provides via /usr symlinks. They are both created by setupRuntimeTree
// and hidden from host root pass-through.
var mergedUsrDirs = []string{"bin", "lib", "lib32", "lib64", "sbin"}

// hiddenRootEntries are the host root entries the runtime image itself
// supplies; exposing the host's would shadow the sandbox filesystem.
var hiddenRootEntries = []string{"app", "usr", "run", "etc", "var"}

// hiddenRunEntries are the /run subdirectories owned by the sandbox
// machinery itself.
var hiddenRunEntries = []string{"flatpak", "host"}

// exposedEtcFiles are the host identity databases passed through
// read-only when present.
var exposedEtcFiles = []string{"passwd", "group", "shadow"}

// hostBinding is one fixed (source, destination, writable) pass-through
// rule, applied only when the source exists.
type hostBinding struct {
	source   string
	dest     string
	writable bool
}

// hostBindings re-exposes the host root under a runtime-namespaced path
// for introspection tools, plus read-only font, font-cache, icon-theme,
// and machine-identity paths.
var hostBindings = []hostBinding{
	{"/", "/run/host/root", true},
	{"/usr/share/fonts", "/run/host/fonts", false},
	{"/usr/lib/fontconfig/cache", "/run/host/fonts-cache", false},
	{"/usr/share/icons", "/run/host/share/icons", false},
	{"/etc/machine-id", "/etc/machine-id", false},
	{"/var/lib/dbus/machine-id", "/var/lib/dbus/machine-id", false},
}

// setupHostExposure appends the host pass-through operations. It runs
// after runtime and extension setup so its bindings cannot be shadowed
// by them, while deliberately shadowing the runtime tree where the
// fixed table says so (/run/host/root).
func (s *Sandbox) setupHostExposure(b *Builder) error {
	rootEntries, err := os.ReadDir(hostRootDir)
	if err != nil {
		return fmt.Errorf("reading host root: %w", err)
	}
	for _, entry := range rootEntries {
		name := entry.Name()
		if contains(hiddenRootEntries, name) || contains(mergedUsrDirs, name) {
			continue
		}
		path := filepath.Join(hostRootDir, name)
		b.Bind(path, path)
	}

	runEntries, err := os.ReadDir(hostRunDir)
	if err != nil {
		return fmt.Errorf("reading host /run: %w", err)
	}
	for _, entry := range runEntries {
		if contains(hiddenRunEntries, entry.Name()) {
			continue
		}
		path := filepath.Join(hostRunDir, entry.Name())
		// Entries can vanish between the directory listing and the
		// bind; re-check and accept the remaining race window.
		if _, err := os.Stat(path); err != nil {
			continue
		}
		b.Bind(path, path)
	}

	for _, name := range exposedEtcFiles {
		path := filepath.Join("/etc", name)
		if _, err := os.Stat(path); err == nil {
			b.RoBind(path, path)
		}
	}

	for _, binding := range hostBindings {
		if _, err := os.Stat(binding.source); err != nil {
			continue
		}
		if binding.writable {
			b.Bind(binding.source, binding.dest)
		} else {
			b.RoBind(binding.source, binding.dest)
		}
	}

	b.DevBind("/dev", "/dev")
	b.Symlink("/run", "/var/run")

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
