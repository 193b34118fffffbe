// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flatbox-project/flatbox/keyfile"
)

// extensionGroupPrefix marks metadata groups that declare an extension
// mount point.
const extensionGroupPrefix = "Extension "

// ldConfDir is where per-extension dynamic-linker configuration
// fragments are injected; /etc/ld.so.conf includes them by glob.
const ldConfDir = "/run/flatpak/ld.so.conf.d"

// glDriverVersionFile reports the loaded graphics driver version,
// consulted by the active-gl-driver enablement predicate. Overridden in
// tests.
var glDriverVersionFile = "/sys/module/nvidia/version"

// extensionDecl is a parsed "Extension <name>" metadata group.
type extensionDecl struct {
	// name is the extension point name; installed implementations are
	// runtimes whose identifier starts with name + ".".
	name string

	// directory is the mount point relative to the owning image's base.
	directory string

	// versions holds candidate version strings in declared order. Empty
	// means "inherit the owning runtime's version".
	versions []string

	// enableIf is the optional enablement predicate name.
	enableIf string

	// mergeDirs lists subdirectories to union across implementations
	// via per-file symlinks.
	mergeDirs []string

	// addLdPath is the optional subdirectory injected into the dynamic
	// linker search path.
	addLdPath string
}

// parseExtensionDecl validates and extracts an extension declaration
// from its metadata group. All path-valued fields must be relative;
// absolute values are configuration errors.
func parseExtensionDecl(name string, group *keyfile.Group) (extensionDecl, error) {
	decl := extensionDecl{name: name}

	directory, ok := group.Get("directory")
	if !ok || directory == "" {
		return decl, errors.New("missing required directory field")
	}
	if filepath.IsAbs(directory) {
		return decl, fmt.Errorf("directory %q must be relative", directory)
	}
	decl.directory = directory

	if versions, ok := group.Get("versions"); ok {
		decl.versions = strings.Split(versions, ";")
	} else if version, ok := group.Get("version"); ok {
		decl.versions = strings.Split(version, ";")
	}

	decl.enableIf, _ = group.Get("enable-if")

	if mergeDirs, ok := group.Get("merge-dirs"); ok {
		decl.mergeDirs = strings.Split(mergeDirs, ";")
		for _, dir := range decl.mergeDirs {
			if filepath.IsAbs(dir) {
				return decl, fmt.Errorf("merge-dirs entry %q must be relative", dir)
			}
		}
	}

	if ldPath, ok := group.Get("add-ld-path"); ok {
		if filepath.IsAbs(ldPath) {
			return decl, fmt.Errorf("add-ld-path %q must be relative", ldPath)
		}
		decl.addLdPath = ldPath
	}

	return decl, nil
}

// setupExtensions processes every extension declaration in the given
// metadata in insertion order. basePath is /usr for runtime-owned
// declarations and /app for app-owned ones; originPrefix names the
// owner ("runtime" or "app") in injected ld.so.conf fragments.
func (s *Sandbox) setupExtensions(b *Builder, md *keyfile.Metadata, arch, runtimeVersion, basePath, originPrefix string) error {
	for _, group := range md.Groups() {
		name, ok := strings.CutPrefix(group.Name(), extensionGroupPrefix)
		if !ok {
			continue
		}
		decl, err := parseExtensionDecl(name, group)
		if err != nil {
			return fmt.Errorf("extension %s: %w", name, err)
		}
		if err := s.setupExtension(b, decl, arch, runtimeVersion, basePath, originPrefix); err != nil {
			return fmt.Errorf("setting up extension %s: %w", name, err)
		}
	}
	return nil
}

// extensionMount records one resolved implementation for the merge-dirs
// and dynamic-linker post-processing passes.
type extensionMount struct {
	// files is the implementation's on-disk payload tree.
	files string
	// mount is where the payload is bound inside the sandbox.
	mount string
}

// setupExtension emits the operations for a single declaration: a tmpfs
// at the extension base, one read-only bind per enabled and resolved
// implementation, merge-dirs union symlinks, and ld.so.conf fragments.
// Implementation absence is never an error; an extension with no match
// simply leaves the tmpfs empty.
func (s *Sandbox) setupExtension(b *Builder, decl extensionDecl, arch, runtimeVersion, basePath, originPrefix string) error {
	base := filepath.Join(basePath, decl.directory)
	b.Tmpfs(base)

	versions := decl.versions
	if len(versions) == 0 {
		versions = []string{runtimeVersion}
	}

	prefix := decl.name + "."
	var mounts []extensionMount
	for _, installed := range s.universe {
		implName, ok := strings.CutPrefix(installed, prefix)
		if !ok {
			continue
		}
		if !s.extensionEnabled(decl, implName) {
			continue
		}

		// First candidate version present on disk wins; later versions
		// are never consulted once one matches.
		for _, version := range versions {
			files, ok := s.roots.ExtensionFiles(installed, arch, version)
			if !ok {
				continue
			}
			mount := filepath.Join(base, implName)
			b.RoBind(files, mount)
			mounts = append(mounts, extensionMount{files: files, mount: mount})
			break
		}
	}

	if err := s.mergeDirs(b, decl, base, mounts); err != nil {
		return err
	}

	if decl.addLdPath != "" {
		for _, mount := range mounts {
			implName := filepath.Base(mount.mount)
			conf := filepath.Join(ldConfDir, fmt.Sprintf("%s-%s.%s.conf", originPrefix, decl.name, implName))
			contents := filepath.Join(mount.mount, decl.addLdPath) + "\n"
			if err := b.WriteFile(conf, []byte(contents)); err != nil {
				return err
			}
		}
	}

	return nil
}

// mergeDirs reconstructs a union view of the declared subdirectories
// across all resolved implementations: every regular file directly
// under an implementation's merge directory gets a symlink in the
// extension base, first-registered implementation winning on name
// collisions. The launcher primitive has no overlay support, so this
// per-file symlink emulation is the only merge mechanism.
func (s *Sandbox) mergeDirs(b *Builder, decl extensionDecl, base string, mounts []extensionMount) error {
	if len(decl.mergeDirs) == 0 {
		return nil
	}

	for _, mount := range mounts {
		processed := make(map[string]bool)
		for _, dir := range decl.mergeDirs {
			entries, err := os.ReadDir(filepath.Join(mount.files, dir))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				// A partially built specification must never reach the
				// launcher, so unreadable merge directories are fatal.
				return fmt.Errorf("listing merge dir %s of %s: %w", dir, mount.files, err)
			}
			for _, entry := range entries {
				if !entry.Type().IsRegular() {
					continue
				}
				source := filepath.Join(mount.files, dir, entry.Name())
				if processed[source] {
					continue
				}
				processed[source] = true
				b.Symlink(
					filepath.Join(mount.mount, dir, entry.Name()),
					filepath.Join(base, dir, entry.Name()),
				)
			}
		}
	}
	return nil
}

// extensionEnabled decides whether an implementation participates,
// based on the declaration's enable-if predicate. Unknown predicates
// degrade to "disabled" with a diagnostic rather than aborting the run.
func (s *Sandbox) extensionEnabled(decl extensionDecl, implName string) bool {
	switch decl.enableIf {
	case "":
		return true
	case "active-gl-driver":
		if implName == "default" || implName == "host" {
			return true
		}
		version, ok := strings.CutPrefix(implName, "nvidia-")
		if !ok {
			return false
		}
		return activeGLDriverVersion() == version
	default:
		s.logger.Warn("unsupported enable-if predicate, extension implementation disabled",
			"predicate", decl.enableIf,
			"extension", decl.name,
			"implementation", implName,
		)
		return false
	}
}

// activeGLDriverVersion returns the host's loaded driver version in
// implementation-name form (dots replaced with dashes), or "" when no
// driver is loaded.
func activeGLDriverVersion() string {
	data, err := os.ReadFile(glDriverVersionFile)
	if err != nil {
		return ""
	}
	return strings.ReplaceAll(strings.TrimSpace(string(data)), ".", "-")
}
