// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/flatbox-project/flatbox/install"
	"github.com/flatbox-project/flatbox/keyfile"
)

// Config holds configuration for creating a new Sandbox.
type Config struct {
	// Roots is the ordered install root search list.
	Roots *install.Roots

	// App is the application id to run. Mutually exclusive with Runtime;
	// exactly one of the two is required.
	App string

	// Runtime is a full runtime triple (id/arch/branch) to run directly,
	// without an application.
	Runtime string

	// Home is the user's home directory, used for the per-application
	// XDG subtree. Defaults to $HOME; empty disables the XDG overrides.
	Home string

	// Shell is the in-sandbox shell used to chain ldconfig before the
	// user command. Defaults to "sh".
	Shell string

	// AppArmorUnconfined requests re-wrapping the invocation through
	// aa-exec when the host has an unconfined AppArmor profile active.
	AppArmorUnconfined bool

	// Verbose logs the finalized invocation before spawning it.
	Verbose bool

	// Logger for composition diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Sandbox composes and runs an isolated execution environment for an
// installed application or runtime image. Composition is single
// threaded and side-effect free on the real system: the host
// filesystem is only read, and all writes go to the private virtual
// file backing store.
type Sandbox struct {
	roots              *install.Roots
	app                string
	runtimeRef         string
	home               string
	shell              string
	apparmorUnconfined bool
	verbose            bool
	logger             *slog.Logger

	// universe is the installed-runtime enumeration used as the
	// extension implementation candidate set, loaded once per Compose.
	universe []string
}

// New creates a Sandbox from config. Exactly one of App or Runtime must
// be set.
func New(config Config) (*Sandbox, error) {
	if config.Roots == nil {
		return nil, fmt.Errorf("install roots are required")
	}
	if config.App != "" && config.Runtime != "" {
		return nil, fmt.Errorf("app and runtime are mutually exclusive")
	}
	if config.App == "" && config.Runtime == "" {
		return nil, fmt.Errorf("either an app or a runtime is required")
	}

	home := config.Home
	if home == "" {
		home = os.Getenv("HOME")
	}
	shell := config.Shell
	if shell == "" {
		shell = "sh"
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Sandbox{
		roots:              config.Roots,
		app:                config.App,
		runtimeRef:         config.Runtime,
		home:               home,
		shell:              shell,
		apparmorUnconfined: config.AppArmorUnconfined,
		verbose:            config.Verbose,
		logger:             logger,
	}, nil
}

// Compose resolves the app and runtime, processes their extension
// declarations, applies the host exposure policy, and composes the
// environment. The returned builder holds the complete ordered
// specification and the virtual-file backing store; callers finalize it
// into an invocation. Composition never hands back a partial
// specification: any fatal error aborts the whole run.
func (s *Sandbox) Compose() (*Builder, error) {
	var appFiles string
	var appMD *keyfile.Metadata
	runtimeRef := s.runtimeRef

	if s.app != "" {
		ref, err := s.roots.App(s.app)
		if err != nil {
			return nil, fmt.Errorf("locating app: %w", err)
		}
		appMD, err = readMetadata(ref.MetadataPath())
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", s.app, err)
		}
		runtimeRef, err = declaredRuntime(appMD, "Application")
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", s.app, err)
		}
		appFiles = ref.Files()
		s.logger.Debug("resolved app", "id", s.app, "files", appFiles, "runtime", runtimeRef)
	}

	runtimeImage, err := s.roots.Runtime(runtimeRef)
	if err != nil {
		return nil, fmt.Errorf("locating runtime: %w", err)
	}
	runtimeMD, err := readMetadata(runtimeImage.MetadataPath())
	if err != nil {
		return nil, fmt.Errorf("runtime %s: %w", runtimeRef, err)
	}
	s.logger.Debug("resolved runtime", "ref", runtimeRef, "files", runtimeImage.Files())

	s.universe, err = s.roots.InstalledRuntimes()
	if err != nil {
		return nil, fmt.Errorf("listing installed runtimes: %w", err)
	}

	b := NewBuilder()

	if err := s.setupRuntimeTree(b, runtimeImage.Files(), appFiles, s.app, runtimeRef); err != nil {
		return nil, fmt.Errorf("setting up runtime tree: %w", err)
	}

	// The runtime's own identifier carries the architecture and version
	// that extension candidates default to.
	runtimeID, err := declaredRuntime(runtimeMD, "Runtime")
	if err != nil {
		return nil, fmt.Errorf("runtime %s: %w", runtimeRef, err)
	}
	_, arch, version, err := splitRuntimeRef(runtimeID)
	if err != nil {
		return nil, fmt.Errorf("runtime %s: %w", runtimeRef, err)
	}
	if err := s.setupExtensions(b, runtimeMD, arch, version, "/usr", "runtime"); err != nil {
		return nil, err
	}

	if appMD != nil {
		_, appArch, appVersion, err := splitRuntimeRef(runtimeRef)
		if err != nil {
			return nil, fmt.Errorf("app %s: %w", s.app, err)
		}
		if err := s.setupExtensions(b, appMD, appArch, appVersion, "/app", "app"); err != nil {
			return nil, err
		}
	}

	if err := s.setupHostExposure(b); err != nil {
		return nil, err
	}

	if err := b.WriteFile("/etc/ld.so.conf", []byte(ldSoConf)); err != nil {
		return nil, err
	}

	s.setupEnvironment(b, runtimeMD.Group("Environment"), s.app)

	return b, nil
}

// DryRun returns the full argument vector that Run would execute,
// without spawning anything. The backing store is released before
// returning, so the temporary paths in the output are already gone.
func (s *Sandbox) DryRun(command []string) ([]string, error) {
	b, err := s.Compose()
	if err != nil {
		return nil, err
	}
	inv := b.Finalize(s.apparmorUnconfined)
	defer inv.Close()

	full := append([]string{inv.Program}, inv.Args...)
	return append(full, "--", s.shell, "-c", s.shellScript(command)), nil
}

// Run composes the sandbox and executes command inside it, blocking
// until the child exits. The backing store stays alive until the wait
// returns. A non-zero child exit surfaces as *ExitError; termination by
// signal degrades to the success-coded contract (documented
// limitation, not a crash).
func (s *Sandbox) Run(ctx context.Context, command []string) error {
	if len(command) == 0 {
		return fmt.Errorf("command is required")
	}

	b, err := s.Compose()
	if err != nil {
		return err
	}
	inv := b.Finalize(s.apparmorUnconfined)
	defer inv.Close()

	args := append(inv.Args, "--", s.shell, "-c", s.shellScript(command))
	cmd := exec.CommandContext(ctx, inv.Program, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	s.logger.Info("running sandboxed command",
		"app", s.app,
		"runtime", s.runtimeRef,
		"command", command,
	)
	if s.verbose {
		s.logger.Info("composed invocation",
			"program", inv.Program,
			"args", strings.Join(args, " "),
		)
	}

	return exitStatus(cmd.Run())
}

// exitStatus maps a child wait result to the relay contract: a non-zero
// exit becomes *ExitError, termination by signal degrades to the
// success-coded 0 (no exit code exists to relay), anything else is a
// launch failure.
func exitStatus(err error) error {
	if err == nil {
		return nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if code := exitErr.ExitCode(); code >= 0 {
			return &ExitError{Code: code}
		}
		return nil
	}
	return fmt.Errorf("launching sandbox: %w", err)
}

// shellScript chains the dynamic linker cache rebuild (needed after the
// injected ld.so.conf fragments) in front of the user command.
func (s *Sandbox) shellScript(command []string) string {
	return "ldconfig && " + strings.Join(command, " ")
}

// readMetadata reads and parses an image's metadata key-file.
func readMetadata(path string) (*keyfile.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	md, err := keyfile.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing metadata %s: %w", path, err)
	}
	return md, nil
}

// declaredRuntime extracts the runtime triple an image declares in its
// identifying group ([Application] for apps, [Runtime] for runtimes).
func declaredRuntime(md *keyfile.Metadata, group string) (string, error) {
	g := md.Group(group)
	if g == nil {
		return "", fmt.Errorf("metadata missing [%s] group", group)
	}
	runtime, ok := g.Get("runtime")
	if !ok || runtime == "" {
		return "", fmt.Errorf("metadata missing %s runtime id", group)
	}
	return runtime, nil
}

// splitRuntimeRef splits a full runtime triple (id/arch/branch) into
// its components.
func splitRuntimeRef(ref string) (id, arch, version string, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("malformed runtime id %q: want id/arch/branch", ref)
	}
	return parts[0], parts[1], parts[2], nil
}

// ExitError represents a non-zero exit from the sandboxed command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError checks if an error is an ExitError and returns the code.
func IsExitError(err error) (int, bool) {
	if exitErr, ok := err.(*ExitError); ok {
		return exitErr.Code, true
	}
	return 0, false
}
