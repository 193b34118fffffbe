// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package install

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flatbox-project/flatbox/lib/testutil"
)

func TestAppFirstRootWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	testutil.WriteApp(t, first, "com.example.App", "[Application]\n", nil)
	testutil.WriteApp(t, second, "com.example.App", "[Application]\n", nil)

	roots := RootsFrom([]string{first, second})
	ref, err := roots.App("com.example.App")
	if err != nil {
		t.Fatalf("App: %v", err)
	}

	want := filepath.Join(first, "app", "com.example.App", "current", "active")
	if ref.Path != want {
		t.Errorf("Path = %q, want %q", ref.Path, want)
	}
}

func TestAppFallsThroughToLaterRoot(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	testutil.WriteApp(t, second, "com.example.App", "[Application]\n", nil)

	roots := RootsFrom([]string{first, second})
	ref, err := roots.App("com.example.App")
	if err != nil {
		t.Fatalf("App: %v", err)
	}
	if got := filepath.Join(second, "app", "com.example.App", "current", "active"); ref.Path != got {
		t.Errorf("Path = %q, want %q", ref.Path, got)
	}
}

func TestRuntimeNotFound(t *testing.T) {
	roots := RootsFrom([]string{t.TempDir()})
	_, err := roots.Runtime("org.example.Platform/x86_64/1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Runtime error = %v, want ErrNotFound", err)
	}
}

func TestRefPaths(t *testing.T) {
	ref := Ref{Path: "/var/lib/flatpak/runtime/x/active"}
	if got := ref.Files(); got != "/var/lib/flatpak/runtime/x/active/files" {
		t.Errorf("Files = %q", got)
	}
	if got := ref.MetadataPath(); got != "/var/lib/flatpak/runtime/x/active/metadata" {
		t.Errorf("MetadataPath = %q", got)
	}
}

func TestExtensionFilesBestEffort(t *testing.T) {
	root := t.TempDir()
	files := testutil.WriteExtension(t, root, "org.example.Platform.GL.default", "x86_64", "1", map[string]string{
		"lib/libGL.so": "",
	})

	roots := RootsFrom([]string{root})

	got, ok := roots.ExtensionFiles("org.example.Platform.GL.default", "x86_64", "1")
	if !ok {
		t.Fatal("ExtensionFiles: not found")
	}
	if got != files {
		t.Errorf("files = %q, want %q", got, files)
	}

	if _, ok := roots.ExtensionFiles("org.example.Platform.GL.default", "x86_64", "2"); ok {
		t.Error("ExtensionFiles found a version that is not installed")
	}
}

func TestInstalledRuntimesPreservesDuplicates(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	testutil.WriteRuntime(t, first, "org.example.Platform/x86_64/1", "[Runtime]\n", nil)
	testutil.WriteExtension(t, first, "org.example.Platform.GL", "x86_64", "1", nil)
	testutil.WriteRuntime(t, second, "org.example.Platform/x86_64/1", "[Runtime]\n", nil)

	roots := RootsFrom([]string{first, missing, second})
	names, err := roots.InstalledRuntimes()
	if err != nil {
		t.Fatalf("InstalledRuntimes: %v", err)
	}

	want := []string{"org.example.Platform", "org.example.Platform.GL", "org.example.Platform"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("runtime list mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRootsAtOrder(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	system := t.TempDir()
	extra := t.TempDir()

	// No per-user install directory: it must be skipped entirely.
	roots := NewRootsAt(system, extra)
	if diff := cmp.Diff([]string{system, extra}, roots.Dirs()); diff != "" {
		t.Errorf("dirs mismatch without user install (-want +got):\n%s", diff)
	}

	userDir := filepath.Join(home, ".local", "share", "flatpak")
	testutil.WriteFile(t, filepath.Join(userDir, ".keep"), "")

	roots = NewRootsAt(system, extra)
	if diff := cmp.Diff([]string{system, userDir, extra}, roots.Dirs()); diff != "" {
		t.Errorf("dirs mismatch with user install (-want +got):\n%s", diff)
	}
}
