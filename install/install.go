// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package install resolves logical flatpak references (app ids, runtime
// triples) against an ordered list of install roots. Resolution is pure
// directory existence checking: the first root containing the reference
// wins, later roots are never consulted for that reference.
package install

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// SystemPath is the compiled-in system-wide install root, always
// searched first.
const SystemPath = "/var/lib/flatpak"

// ErrNotFound is returned when a reference exists in none of the
// configured install roots. It is fatal for the top-level app/runtime
// lookup and recoverable inside extension candidate search.
var ErrNotFound = errors.New("not found in any install root")

// Roots is a priority-ordered list of install roots. It is never
// mutated after construction and is safe to read from many call sites.
type Roots struct {
	dirs []string
}

// NewRoots builds the standard root list: the system path, then the
// per-user install directory when it exists, then any caller-supplied
// extra paths. Duplicates are preserved, not collapsed.
func NewRoots(extra ...string) *Roots {
	return NewRootsAt(SystemPath, extra...)
}

// NewRootsAt is NewRoots with the system root replaced, for
// configurations that relocate the system-wide installation.
func NewRootsAt(systemPath string, extra ...string) *Roots {
	dirs := []string{systemPath}
	if home := os.Getenv("HOME"); home != "" {
		userDir := filepath.Join(home, ".local", "share", "flatpak")
		if _, err := os.Stat(userDir); err == nil {
			dirs = append(dirs, userDir)
		}
	}
	dirs = append(dirs, extra...)
	return &Roots{dirs: dirs}
}

// RootsFrom builds a root list from an exact, caller-controlled sequence
// of directories. Used by tests and by configurations that replace the
// compiled-in search order entirely.
func RootsFrom(dirs []string) *Roots {
	return &Roots{dirs: append([]string(nil), dirs...)}
}

// Dirs returns the search order. The returned slice must not be modified.
func (r *Roots) Dirs() []string {
	return r.dirs
}

// Ref is the resolved absolute path of an installed image's "active"
// directory. Created once per run, read-only thereafter.
type Ref struct {
	// Path is the absolute path to the image's active deployment.
	Path string
}

// Files returns the path of the image's payload tree.
func (r Ref) Files() string {
	return filepath.Join(r.Path, "files")
}

// MetadataPath returns the path of the image's metadata key-file.
func (r Ref) MetadataPath() string {
	return filepath.Join(r.Path, "metadata")
}

// App resolves an application id to its active deployment. The id
// directory itself is what is probed; the current/active suffix is
// derived from the winning root.
func (r *Roots) App(id string) (Ref, error) {
	path, err := r.locate("app", id)
	if err != nil {
		return Ref{}, fmt.Errorf("app %s: %w", id, err)
	}
	return Ref{Path: filepath.Join(path, "current", "active")}, nil
}

// Runtime resolves a full runtime triple (id/arch/branch) to its active
// deployment.
func (r *Roots) Runtime(ref string) (Ref, error) {
	path, err := r.locate("runtime", ref)
	if err != nil {
		return Ref{}, fmt.Errorf("runtime %s: %w", ref, err)
	}
	return Ref{Path: filepath.Join(path, "active")}, nil
}

// ExtensionFiles resolves one extension implementation candidate to its
// payload tree. Absence of a candidate is an expected outcome during
// extension resolution, so this reports ok=false instead of an error.
func (r *Roots) ExtensionFiles(id, arch, version string) (string, bool) {
	candidate := filepath.Join(id, arch, version, "active", "files")
	path, err := r.locate("runtime", candidate)
	if err != nil {
		return "", false
	}
	return path, true
}

// InstalledRuntimes lists every runtime-shaped identifier across all
// roots, in root order then directory listing order. Duplicate
// identifiers across roots are preserved: lookup always resolves the
// first matching root anyway.
func (r *Roots) InstalledRuntimes() ([]string, error) {
	var names []string
	for _, dir := range r.dirs {
		entries, err := os.ReadDir(filepath.Join(dir, "runtime"))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("listing runtimes in %s: %w", dir, err)
		}
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// locate returns the first <root>/<kind>/<ref> that exists.
func (r *Roots) locate(kind, ref string) (string, error) {
	for _, dir := range r.dirs {
		path := filepath.Join(dir, kind, ref)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNotFound
}
