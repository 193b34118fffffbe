// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"path/filepath"

	"github.com/flatbox-project/flatbox/keyfile"
)

// envDefault is one entry of the fixed default environment table. Unset
// entries strip host library search paths and toolkit backend switches
// that would otherwise leak host behavior into the sandbox.
type envDefault struct {
	key   string
	value string
	set   bool
}

// defaultEnv is applied first, before runtime-declared overrides. Names
// and values are part of the sandbox contract; keep them stable.
var defaultEnv = []envDefault{
	{key: "FLATBOX_ENV", value: "1", set: true},
	{key: "PATH", value: "/app/bin:/usr/bin", set: true},
	{key: "LD_LIBRARY_PATH"},
	{key: "LD_PRELOAD"},
	{key: "LD_AUDIT"},
	{key: "XDG_CONFIG_DIRS", value: "/app/etc/xdg:/etc/xdg", set: true},
	{key: "XDG_DATA_DIRS", value: "/app/share:/usr/share", set: true},
	{key: "SHELL", value: "/bin/sh", set: true},
	{key: "TEMP"},
	{key: "TEMPDIR"},
	{key: "TMP"},
	{key: "TMPDIR"},
	{key: "container"},
	{key: "TZDIR"},
	{key: "PYTHONPATH"},
	{key: "PYTHONPYCACHEPREFIX"},
	{key: "PERLLIB"},
	{key: "PERL5LIB"},
	{key: "XCURSOR_PATH"},
	{key: "GST_PLUGIN_PATH_1_0"},
	{key: "GST_REGISTRY"},
	{key: "GST_REGISTRY_1_0"},
	{key: "GST_PLUGIN_PATH"},
	{key: "GST_PLUGIN_SYSTEM_PATH"},
	{key: "GST_PLUGIN_SCANNER"},
	{key: "GST_PLUGIN_SCANNER_1_0"},
	{key: "GST_PLUGIN_SYSTEM_PATH_1_0"},
	{key: "GST_PRESET_PATH"},
	{key: "GST_PTP_HELPER"},
	{key: "GST_PTP_HELPER_1_0"},
	{key: "GST_INSTALL_PLUGINS_HELPER"},
	{key: "KRB5CCNAME"},
	{key: "XKB_CONFIG_ROOT"},
	{key: "GIO_EXTRA_MODULES"},
	{key: "GDK_BACKEND"},
	{key: "VK_ADD_DRIVER_FILES"},
	{key: "VK_ADD_LAYER_PATH"},
	{key: "VK_DRIVER_FILES"},
	{key: "VK_ICD_FILENAMES"},
	{key: "VK_LAYER_PATH"},
	{key: "__EGL_EXTERNAL_PLATFORM_CONFIG_DIRS"},
	{key: "__EGL_EXTERNAL_PLATFORM_CONFIG_FILENAMES"},
	{key: "__EGL_VENDOR_LIBRARY_DIRS"},
	{key: "__EGL_VENDOR_LIBRARY_FILENAMES"},
}

// setupEnvironment appends environment operations in override order:
// the fixed default table, then the runtime's declared [Environment]
// group, then — when an application id and home directory are known —
// the four XDG directories pointed at the application-namespaced
// subtree of the user's home. That subtree is the per-application data
// isolation contract.
func (s *Sandbox) setupEnvironment(b *Builder, runtimeEnv *keyfile.Group, appID string) {
	for _, entry := range defaultEnv {
		if entry.set {
			b.SetEnv(entry.key, entry.value)
		} else {
			b.UnsetEnv(entry.key)
		}
	}

	if runtimeEnv != nil {
		for _, key := range runtimeEnv.Keys() {
			value, _ := runtimeEnv.Get(key)
			b.SetEnv(key, value)
		}
	}

	if appID != "" && s.home != "" {
		appDir := filepath.Join(s.home, ".var", "app", appID)
		b.SetEnv("XDG_DATA_HOME", filepath.Join(appDir, "data"))
		b.SetEnv("XDG_CONFIG_HOME", filepath.Join(appDir, "config"))
		b.SetEnv("XDG_CACHE_HOME", filepath.Join(appDir, "cache"))
		b.SetEnv("XDG_STATE_HOME", filepath.Join(appDir, ".local", "state"))
	}
}
