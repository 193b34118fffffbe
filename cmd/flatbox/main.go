// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/flatbox-project/flatbox/install"
	"github.com/flatbox-project/flatbox/keyfile"
	"github.com/flatbox-project/flatbox/lib/config"
	"github.com/flatbox-project/flatbox/lib/process"
	"github.com/flatbox-project/flatbox/lib/version"
	"github.com/flatbox-project/flatbox/sandbox"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if os.Getenv("FLATBOX_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = runCmd(args, logger)
	case "list-runtimes":
		err = listRuntimesCmd(args)
	case "info":
		err = infoCmd(args)
	case "check":
		err = checkCmd(args)
	case "version", "--version", "-v":
		fmt.Printf("flatbox %s\n", version.Info())
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if code, ok := sandbox.IsExitError(err); ok {
			os.Exit(code)
		}
		process.Fatal(err)
	}
}

func printUsage() {
	fmt.Print(`flatbox - Run flatpak apps and runtimes in a bubblewrap sandbox

USAGE
    flatbox <command> [flags] [-- <args>...]

COMMANDS
    run           Run a command inside an app or runtime sandbox
    list-runtimes List installed runtime-shaped identifiers
    info          Show an installed image's metadata
    check         Run preflight validation
    version       Show version

EXAMPLES
    # Run an app's shell
    flatbox run --app com.example.App -- sh

    # Run a bare runtime environment
    flatbox run --runtime org.example.Platform/x86_64/1 -- sh

    # Inspect the composed bwrap invocation
    flatbox run --app com.example.App --dry-run -- sh

ENVIRONMENT
    FLATBOX_CONFIG  Path to the configuration file (optional)
    FLATBOX_DEBUG   Enable debug logging
`)
}

// loadConfig loads the config file named by --config, falling back to
// FLATBOX_CONFIG, falling back to defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// buildRoots composes the install root search list from config and
// repeated --install-path flags.
func buildRoots(cfg *config.Config, extra []string) *install.Roots {
	return install.NewRootsAt(cfg.Install.SystemPath, append(append([]string(nil), cfg.Install.ExtraPaths...), extra...)...)
}

// runCmd implements the "run" command.
func runCmd(args []string, logger *slog.Logger) error {
	fs := pflag.NewFlagSet("run", pflag.ExitOnError)
	fs.SetInterspersed(false)

	configPath := fs.String("config", "", "Path to config file (default: $FLATBOX_CONFIG)")
	app := fs.String("app", "", "Application id (com.example.App) to run")
	runtimeRef := fs.String("runtime", "", "Runtime triple (org.example.Platform/x86_64/1) to run; mutually exclusive with --app")
	installPaths := fs.StringArray("install-path", nil, "Additional install root, repeatable")
	apparmorUnconfined := fs.Bool("apparmor-unconfined", false, "Re-wrap through aa-exec requesting the unconfined AppArmor profile")
	dryRun := fs.Bool("dry-run", false, "Print the composed invocation without executing")
	verbose := fs.Bool("verbose", false, "Log the composed invocation before executing")

	fs.Usage = func() {
		fmt.Print(`flatbox run - Run a command inside an app or runtime sandbox

USAGE
    flatbox run [flags] -- <command> [args...]

FLAGS
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	command := fs.Args()
	if len(command) == 0 {
		return fmt.Errorf("command is required after --")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	unconfined := cfg.Sandbox.AppArmorUnconfined
	if fs.Changed("apparmor-unconfined") {
		unconfined = *apparmorUnconfined
	}

	sb, err := sandbox.New(sandbox.Config{
		Roots:              buildRoots(cfg, *installPaths),
		App:                *app,
		Runtime:            *runtimeRef,
		Shell:              cfg.Sandbox.Shell,
		AppArmorUnconfined: unconfined,
		Verbose:            *verbose,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	if *dryRun {
		full, err := sb.DryRun(command)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(full, " \\\n  "))
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return sb.Run(ctx, command)
}

// listRuntimesCmd implements the "list-runtimes" command.
func listRuntimesCmd(args []string) error {
	fs := pflag.NewFlagSet("list-runtimes", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $FLATBOX_CONFIG)")
	installPaths := fs.StringArray("install-path", nil, "Additional install root, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	names, err := buildRoots(cfg, *installPaths).InstalledRuntimes()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// infoCmd implements the "info" command.
func infoCmd(args []string) error {
	fs := pflag.NewFlagSet("info", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $FLATBOX_CONFIG)")
	app := fs.String("app", "", "Application id to inspect")
	runtimeRef := fs.String("runtime", "", "Runtime triple to inspect")
	installPaths := fs.StringArray("install-path", nil, "Additional install root, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	roots := buildRoots(cfg, *installPaths)

	var ref install.Ref
	switch {
	case *app != "" && *runtimeRef != "":
		return fmt.Errorf("--app and --runtime are mutually exclusive")
	case *app != "":
		ref, err = roots.App(*app)
	case *runtimeRef != "":
		ref, err = roots.Runtime(*runtimeRef)
	default:
		return fmt.Errorf("either --app or --runtime is required")
	}
	if err != nil {
		return err
	}

	data, err := os.ReadFile(ref.MetadataPath())
	if err != nil {
		return fmt.Errorf("reading metadata: %w", err)
	}
	md, err := keyfile.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing metadata: %w", err)
	}

	fmt.Printf("Path: %s\n\n", ref.Path)
	for _, group := range md.Groups() {
		fmt.Printf("[%s]\n", group.Name())
		for _, key := range group.Keys() {
			value, _ := group.Get(key)
			fmt.Printf("%s=%s\n", key, value)
		}
		fmt.Println()
	}
	return nil
}

// checkCmd implements the "check" command.
func checkCmd(args []string) error {
	fs := pflag.NewFlagSet("check", pflag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (default: $FLATBOX_CONFIG)")
	runtimeRef := fs.String("runtime", "", "Runtime triple whose installation to verify")
	installPaths := fs.StringArray("install-path", nil, "Additional install root, repeatable")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	checker := sandbox.NewChecker()
	checker.CheckAll(buildRoots(cfg, *installPaths), *runtimeRef)
	checker.PrintResults(os.Stdout)

	if checker.HasErrors() {
		return fmt.Errorf("preflight failed")
	}
	return nil
}
