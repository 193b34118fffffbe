// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox compiles an installed flatpak application or runtime
// image into a sandbox specification: the ordered list of mount,
// symlink, tmpfs, environment, and virtual-file operations that
// bubblewrap (bwrap) executes to produce the confined child process.
//
// The central type is [Sandbox]. Given install roots and an app id or
// runtime triple, [Sandbox.Compose] resolves the image's on-disk files,
// processes its declared extensions, applies the host exposure policy,
// and composes the environment, accumulating everything in a [Builder].
// Operation order is last-applied-wins: bwrap applies its instructions
// sequentially, so each composition pass appends strictly after the
// previous one.
//
// Extension resolution is the interesting part: each "Extension"
// metadata group declares a mount point that gets a tmpfs, every
// installed runtime whose identifier extends the extension name is an
// implementation candidate, candidates pass an enablement predicate
// and a declared-order version match, and resolved implementations are
// bound read-only under the mount point. Declared merge-dirs are
// unioned across implementations with per-file symlinks (bwrap has no
// overlay support), and add-ld-path entries become injected ld.so.conf
// fragments.
//
// Virtual files (.flatpak-info, ld.so.conf and its fragments) are
// backed by a [FileStore] of real temporary files whose handles stay
// open until the child process has exited; [Builder.Finalize] hands the
// store to the [Invocation] together with the rendered argument vector.
//
// The sandbox confinement itself (namespaces, seccomp, capability
// dropping) is bwrap's job; this package only describes it. Package
// install resolves image references, package keyfile parses their
// metadata.
package sandbox
