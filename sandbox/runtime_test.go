// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flatbox-project/flatbox/lib/testutil"
)

// writeRuntimeFiles lays out a minimal runtime payload tree: an etc
// directory with one plain file and one symlink, plus merged-usr bin
// and lib64 directories.
func writeRuntimeFiles(t *testing.T) string {
	t.Helper()
	files := t.TempDir()
	testutil.WriteFile(t, filepath.Join(files, "etc", "os-release"), "NAME=Example\n")
	testutil.Symlink(t, "/usr/share/zoneinfo/UTC", filepath.Join(files, "etc", "localtime"))
	for _, dir := range []string{"bin", "lib64"} {
		if err := os.MkdirAll(filepath.Join(files, dir), 0o755); err != nil {
			t.Fatalf("creating %s: %v", dir, err)
		}
	}
	return files
}

func TestRuntimeTreeLayout(t *testing.T) {
	files := writeRuntimeFiles(t)

	s := newTestSandbox(nil, nil)
	b := NewBuilder()
	if err := s.setupRuntimeTree(b, files, "/srv/app/files", "com.example.App", "org.example.Platform/x86_64/1"); err != nil {
		t.Fatalf("setupRuntimeTree: %v", err)
	}
	inv := b.Finalize(false)
	defer inv.Close()

	ops := b.Ops()
	if ops[0].Kind != OpRoBind || ops[0].Source != files || ops[0].Dest != "/usr" {
		t.Fatalf("first op = %+v, want runtime payload at /usr", ops[0])
	}
	if ops[1].Kind != OpRoBind || ops[1].Source != "/srv/app/files" || ops[1].Dest != "/app" {
		t.Fatalf("second op = %+v, want app payload at /app", ops[1])
	}

	var sawOSRelease, sawLocaltime bool
	links := make(map[string]string)
	for _, op := range ops {
		switch {
		case op.Kind == OpRoBind && op.Dest == "/etc/os-release":
			sawOSRelease = op.Source == filepath.Join(files, "etc", "os-release")
		case op.Kind == OpSymlink && op.Dest == "/etc/localtime":
			sawLocaltime = op.Source == "/usr/share/zoneinfo/UTC"
		case op.Kind == OpSymlink:
			links[op.Dest] = op.Source
		}
	}
	if !sawOSRelease {
		t.Error("etc/os-release not bound into /etc")
	}
	if !sawLocaltime {
		t.Error("etc/localtime symlink not recreated with its original target")
	}

	// Only the merged-usr directories the runtime actually ships get
	// root-level symlinks.
	if links["/bin"] != "/usr/bin" || links["/lib64"] != "/usr/lib64" {
		t.Errorf("merged-usr links = %v", links)
	}
	for _, absent := range []string{"/lib", "/lib32", "/sbin"} {
		if _, ok := links[absent]; ok {
			t.Errorf("%s linked but the runtime does not ship it", absent)
		}
	}
}

func TestRuntimeTreeBareRuntime(t *testing.T) {
	files := writeRuntimeFiles(t)

	s := newTestSandbox(nil, nil)
	b := NewBuilder()
	if err := s.setupRuntimeTree(b, files, "", "", "org.example.Platform/x86_64/1"); err != nil {
		t.Fatalf("setupRuntimeTree: %v", err)
	}
	inv := b.Finalize(false)
	defer inv.Close()

	for _, op := range b.Ops() {
		if op.Dest == "/app" {
			t.Fatalf("app mount present without an app: %+v", op)
		}
	}
}

func TestRuntimeTreeMissingEtcFatal(t *testing.T) {
	files := t.TempDir()

	s := newTestSandbox(nil, nil)
	b := NewBuilder()
	if err := s.setupRuntimeTree(b, files, "", "", "org.example.Platform/x86_64/1"); err == nil {
		t.Fatal("setupRuntimeTree succeeded without a runtime etc directory")
	}
}

func TestFlatpakInfoContents(t *testing.T) {
	got := string(flatpakInfo("com.example.App", "org.example.Platform/x86_64/1"))
	want := "[Application]\nname=com.example.App\nruntime=org.example.Platform/x86_64/1\n"
	if got != want {
		t.Errorf("flatpakInfo = %q, want %q", got, want)
	}

	bare := string(flatpakInfo("", "org.example.Platform/x86_64/1"))
	wantBare := "[Application]\nname=org.example.Platform/x86_64/1\nruntime=org.example.Platform/x86_64/1\n"
	if bare != wantBare {
		t.Errorf("bare flatpakInfo = %q, want %q", bare, wantBare)
	}
}

func TestRuntimeTreeInjectsFlatpakInfo(t *testing.T) {
	files := writeRuntimeFiles(t)

	s := newTestSandbox(nil, nil)
	b := NewBuilder()
	if err := s.setupRuntimeTree(b, files, "", "", "org.example.Platform/x86_64/1"); err != nil {
		t.Fatalf("setupRuntimeTree: %v", err)
	}

	var info Op
	for _, op := range b.Ops() {
		if op.Kind == OpRoBind && op.Dest == "/.flatpak-info" {
			info = op
		}
	}
	if info.Dest == "" {
		t.Fatal("/.flatpak-info not injected")
	}

	data, err := os.ReadFile(info.Source)
	if err != nil {
		t.Fatalf("reading backing file: %v", err)
	}
	if string(data) != string(flatpakInfo("", "org.example.Platform/x86_64/1")) {
		t.Errorf("marker contents = %q", data)
	}

	inv := b.Finalize(false)
	inv.Close()
}
