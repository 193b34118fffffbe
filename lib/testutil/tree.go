// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test fixtures: helpers that lay out
// fake flatpak install trees (apps, runtimes, extension
// implementations) under temporary directories.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes contents to path, creating parent directories.
func WriteFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// Symlink creates a symlink at link pointing to target, creating parent
// directories.
func Symlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(link), err)
	}
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlinking %s -> %s: %v", link, target, err)
	}
}

// writeTree writes the given relative-path-to-contents map under dir.
func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("creating %s: %v", dir, err)
	}
	for path, contents := range files {
		WriteFile(t, filepath.Join(dir, path), contents)
	}
}

// WriteRuntime lays out an installed runtime at
// <root>/runtime/<ref>/active with the given metadata and payload
// files, and returns the active directory.
func WriteRuntime(t *testing.T, root, ref, metadata string, files map[string]string) string {
	t.Helper()
	active := filepath.Join(root, "runtime", ref, "active")
	WriteFile(t, filepath.Join(active, "metadata"), metadata)
	writeTree(t, filepath.Join(active, "files"), files)
	return active
}

// WriteApp lays out an installed app at
// <root>/app/<id>/current/active with the given metadata and payload
// files, and returns the active directory.
func WriteApp(t *testing.T, root, id, metadata string, files map[string]string) string {
	t.Helper()
	active := filepath.Join(root, "app", id, "current", "active")
	WriteFile(t, filepath.Join(active, "metadata"), metadata)
	writeTree(t, filepath.Join(active, "files"), files)
	return active
}

// WriteExtension lays out an installed extension implementation at
// <root>/runtime/<id>/<arch>/<version>/active/files and returns the
// files directory.
func WriteExtension(t *testing.T, root, id, arch, version string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, "runtime", id, arch, version, "active", "files")
	writeTree(t, dir, files)
	return dir
}
