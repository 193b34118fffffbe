// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the flatbox build version.
package version

import "runtime/debug"

// Info returns a human-readable version string derived from the build
// info embedded by the Go toolchain.
func Info() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(unknown)"
	}
	return info.Main.Version
}
