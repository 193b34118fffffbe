// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// flatbox runs applications and runtimes from an existing flatpak
// installation inside a bubblewrap sandbox, without the flatpak
// client itself.
//
// Usage:
//
//	flatbox run [flags] -- <command> [args...]
//	flatbox list-runtimes [flags]
//	flatbox info <--app id | --runtime triple>
//	flatbox check [flags]
package main
