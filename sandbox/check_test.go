// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/flatbox-project/flatbox/install"
	"github.com/flatbox-project/flatbox/lib/testutil"
)

func TestCheckRoots(t *testing.T) {
	existing := t.TempDir()
	missing := filepath.Join(t.TempDir(), "absent")

	c := NewChecker()
	c.CheckRoots(install.RootsFrom([]string{existing, missing}))
	if c.HasErrors() {
		t.Fatalf("HasErrors with one existing root: %+v", c.Results())
	}

	var warned bool
	for _, r := range c.Results() {
		if r.Warning && strings.Contains(r.Message, missing) {
			warned = true
		}
	}
	if !warned {
		t.Error("missing root did not produce a warning")
	}

	c = NewChecker()
	c.CheckRoots(install.RootsFrom([]string{missing}))
	if !c.HasErrors() {
		t.Error("no error with zero existing roots")
	}
}

func TestCheckRuntime(t *testing.T) {
	root := t.TempDir()
	testutil.WriteRuntime(t, root, "org.example.Platform/x86_64/1", "[Runtime]\n", nil)
	roots := install.RootsFrom([]string{root})

	c := NewChecker()
	c.CheckRuntime(roots, "org.example.Platform/x86_64/1")
	if c.HasErrors() {
		t.Fatalf("HasErrors for an installed runtime: %+v", c.Results())
	}

	c = NewChecker()
	c.CheckRuntime(roots, "org.example.Sdk/x86_64/1")
	if !c.HasErrors() {
		t.Error("no error for a runtime that is not installed")
	}
}

func TestPrintResults(t *testing.T) {
	c := NewChecker()
	c.pass("bwrap", "available")
	c.warn("apparmor", "aa-exec not found")

	var out strings.Builder
	c.PrintResults(&out)
	got := out.String()
	if !strings.Contains(got, "✓ bwrap: available") {
		t.Errorf("pass line missing from:\n%s", got)
	}
	if !strings.Contains(got, "⚠ apparmor") {
		t.Errorf("warn line missing from:\n%s", got)
	}
	if !strings.Contains(got, "Ready to run sandbox") {
		t.Errorf("ready line missing from:\n%s", got)
	}

	c.fail("userns", "disabled")
	out.Reset()
	c.PrintResults(&out)
	got = out.String()
	if !strings.Contains(got, "✗ userns: disabled") {
		t.Errorf("fail line missing from:\n%s", got)
	}
	if !strings.Contains(got, "Preflight failed with 1 error(s)") {
		t.Errorf("summary line missing from:\n%s", got)
	}
}
