// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// setupRuntimeTree establishes the base image mounts: runtime payload
// at /usr, app payload at /app, the runtime's /etc entries, the
// merged-usr root symlinks, and the /.flatpak-info marker file.
func (s *Sandbox) setupRuntimeTree(b *Builder, runtimeFiles, appFiles, appID, runtimeRef string) error {
	b.RoBind(runtimeFiles, "/usr")

	if appFiles != "" {
		b.RoBind(appFiles, "/app")
	}

	// The runtime ships /etc as part of its payload; it cannot simply
	// be bound whole because individual entries may be symlinks into
	// the payload, which must be recreated as symlinks to survive the
	// bind topology.
	etcDir := filepath.Join(runtimeFiles, "etc")
	entries, err := os.ReadDir(etcDir)
	if err != nil {
		return fmt.Errorf("reading runtime etc: %w", err)
	}
	for _, entry := range entries {
		source := filepath.Join(etcDir, entry.Name())
		dest := filepath.Join("/etc", entry.Name())
		if target, err := os.Readlink(source); err == nil {
			b.Symlink(target, dest)
		} else {
			b.RoBind(source, dest)
		}
	}

	for _, dir := range mergedUsrDirs {
		if _, err := os.Stat(filepath.Join(runtimeFiles, dir)); err == nil {
			b.Symlink("/usr/"+dir, "/"+dir)
		}
	}

	return b.WriteFile("/.flatpak-info", flatpakInfo(appID, runtimeRef))
}

// flatpakInfo renders the /.flatpak-info marker that flatpak-aware
// tools read to detect and introspect the sandbox.
func flatpakInfo(appID, runtimeRef string) []byte {
	name := appID
	if name == "" {
		name = runtimeRef
	}
	return []byte(fmt.Sprintf("[Application]\nname=%s\nruntime=%s\n", name, runtimeRef))
}

// ldSoConf is the fixed dynamic-linker configuration injected at
// /etc/ld.so.conf: app-origin fragments first, then the app's own
// configuration and libraries, then runtime-origin fragments. The
// fragment globs match what setupExtension writes under ldConfDir.
const ldSoConf = `include /run/flatpak/ld.so.conf.d/app-*.conf
include /app/etc/ld.so.conf
/app/lib
include /run/flatpak/ld.so.conf.d/runtime-*.conf
`
