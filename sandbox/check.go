// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/flatbox-project/flatbox/install"
)

// CheckResult holds the result of one preflight check.
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool // True if this is a warning, not an error.
}

// Checker performs preflight validation: whether this host can compose
// and launch a sandbox at all, before any composition work is done.
type Checker struct {
	results []CheckResult
	errors  int
}

// NewChecker creates a new checker.
func NewChecker() *Checker {
	return &Checker{results: make([]CheckResult, 0)}
}

// Results returns all check results.
func (c *Checker) Results() []CheckResult {
	return c.results
}

// HasErrors returns true if any check failed.
func (c *Checker) HasErrors() bool {
	return c.errors > 0
}

func (c *Checker) pass(name, message string) {
	c.results = append(c.results, CheckResult{Name: name, Passed: true, Message: message})
}

func (c *Checker) warn(name, message string) {
	c.results = append(c.results, CheckResult{Name: name, Passed: true, Message: message, Warning: true})
}

func (c *Checker) fail(name, message string) {
	c.results = append(c.results, CheckResult{Name: name, Passed: false, Message: message})
	c.errors++
}

// CheckAll runs every preflight check. runtimeRef may be empty when no
// specific runtime is being validated.
func (c *Checker) CheckAll(roots *install.Roots, runtimeRef string) {
	c.CheckBwrap()
	c.CheckUserNamespaces()
	c.CheckAppArmor()
	c.CheckRoots(roots)
	if runtimeRef != "" {
		c.CheckRuntime(roots, runtimeRef)
	}
}

// CheckBwrap checks that bubblewrap is available and executable.
func (c *Checker) CheckBwrap() {
	path, err := BwrapPath()
	if err != nil {
		c.fail("bwrap", "bubblewrap not found in standard locations")
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		c.fail("bwrap", fmt.Sprintf("cannot stat %s: %v", path, err))
		return
	}
	if info.Mode()&0111 == 0 {
		c.fail("bwrap", fmt.Sprintf("%s is not executable", path))
		return
	}

	output, err := exec.Command(path, "--version").Output()
	if err != nil {
		c.warn("bwrap", fmt.Sprintf("found at %s but --version failed", path))
		return
	}
	c.pass("bwrap", fmt.Sprintf("available: %s (%s)", path, strings.TrimSpace(string(output))))
}

// CheckUserNamespaces checks that unprivileged user namespaces are
// enabled; bwrap needs them when not installed setuid.
func (c *Checker) CheckUserNamespaces() {
	data, err := os.ReadFile("/proc/sys/kernel/unprivileged_userns_clone")
	if err != nil {
		// File missing on most kernels means no restriction.
		if os.IsNotExist(err) {
			c.pass("userns", "user namespaces supported (no clone restriction)")
			return
		}
		c.warn("userns", fmt.Sprintf("cannot check user namespace support: %v", err))
		return
	}
	if strings.TrimSpace(string(data)) == "0" {
		c.fail("userns", "unprivileged user namespaces are disabled (set kernel.unprivileged_userns_clone=1)")
		return
	}
	c.pass("userns", "user namespaces enabled")
}

// CheckAppArmor checks whether aa-exec is available for the unconfined
// re-wrap. Its absence only matters when --apparmor-unconfined is used.
func (c *Checker) CheckAppArmor() {
	if _, err := os.Stat(apparmorProfilesFile); err != nil {
		c.pass("apparmor", "AppArmor not active")
		return
	}
	path, err := exec.LookPath("aa-exec")
	if err != nil {
		c.warn("apparmor", "AppArmor active but aa-exec not found (--apparmor-unconfined will not work)")
		return
	}
	c.pass("apparmor", fmt.Sprintf("active, aa-exec available: %s", path))
}

// CheckRoots checks that at least one install root exists.
func (c *Checker) CheckRoots(roots *install.Roots) {
	var found int
	for _, dir := range roots.Dirs() {
		if _, err := os.Stat(dir); err == nil {
			found++
		} else {
			c.warn("install-root", fmt.Sprintf("%s does not exist", dir))
		}
	}
	if found == 0 {
		c.fail("install-root", "no install root exists")
		return
	}
	c.pass("install-root", fmt.Sprintf("%d of %d roots present", found, len(roots.Dirs())))
}

// CheckRuntime checks that a runtime triple resolves in the configured
// roots.
func (c *Checker) CheckRuntime(roots *install.Roots, ref string) {
	resolved, err := roots.Runtime(ref)
	if err != nil {
		if errors.Is(err, install.ErrNotFound) {
			c.fail("runtime", fmt.Sprintf("%s not installed in any root", ref))
			return
		}
		c.fail("runtime", err.Error())
		return
	}
	c.pass("runtime", fmt.Sprintf("%s at %s", ref, resolved.Path))
}

// PrintResults writes check results to a writer.
func (c *Checker) PrintResults(w io.Writer) {
	for _, r := range c.results {
		var prefix string
		if r.Passed {
			if r.Warning {
				prefix = "⚠"
			} else {
				prefix = "✓"
			}
		} else {
			prefix = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", prefix, r.Name, r.Message)
	}

	fmt.Fprintln(w)
	if c.HasErrors() {
		fmt.Fprintf(w, "Preflight failed with %d error(s)\n", c.errors)
	} else {
		fmt.Fprintln(w, "Ready to run sandbox")
	}
}
