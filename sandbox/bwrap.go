// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OpKind identifies one namespace-construction operation. The set is
// closed; every kind maps to exactly one bubblewrap flag.
type OpKind string

const (
	OpTmpfs    OpKind = "tmpfs"
	OpBind     OpKind = "bind"
	OpRoBind   OpKind = "ro-bind"
	OpDevBind  OpKind = "dev-bind"
	OpSymlink  OpKind = "symlink"
	OpSetEnv   OpKind = "setenv"
	OpUnsetEnv OpKind = "unsetenv"
)

// Op is a single ordered instruction of the sandbox specification.
// Operation order is semantically significant: bubblewrap applies
// instructions sequentially, so a later operation shadows paths
// established by an earlier one.
//
// Field use by kind: bind kinds use Source/Dest as mount source and
// destination; OpSymlink uses Source as the link target and Dest as the
// link location; OpSetEnv uses Dest as the variable name and Source as
// its value; OpTmpfs and OpUnsetEnv use only Dest.
type Op struct {
	Kind   OpKind
	Source string
	Dest   string
}

// Builder accumulates the ordered sandbox specification and owns the
// backing store for injected virtual files. One builder describes one
// sandbox; it is not safe for concurrent use and does not need to be.
type Builder struct {
	ops     []Op
	store   *FileStore
	claimed map[string]bool
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{claimed: make(map[string]bool)}
}

// Tmpfs mounts an empty writable tmpfs at path.
func (b *Builder) Tmpfs(path string) {
	b.ops = append(b.ops, Op{Kind: OpTmpfs, Dest: path})
}

// Bind bind-mounts source at dest read-write.
func (b *Builder) Bind(source, dest string) {
	b.ops = append(b.ops, Op{Kind: OpBind, Source: source, Dest: dest})
}

// RoBind bind-mounts source at dest read-only.
func (b *Builder) RoBind(source, dest string) {
	b.ops = append(b.ops, Op{Kind: OpRoBind, Source: source, Dest: dest})
}

// DevBind bind-mounts source at dest with device access.
func (b *Builder) DevBind(source, dest string) {
	b.ops = append(b.ops, Op{Kind: OpDevBind, Source: source, Dest: dest})
}

// Symlink creates a symlink at link pointing to target. The first write
// to a given link location wins; later writes to the same location are
// silently skipped, which is how merge-dirs collisions resolve.
func (b *Builder) Symlink(target, link string) {
	if b.claimed[link] {
		return
	}
	b.claimed[link] = true
	b.ops = append(b.ops, Op{Kind: OpSymlink, Source: target, Dest: link})
}

// SetEnv sets an environment variable inside the sandbox.
func (b *Builder) SetEnv(key, value string) {
	b.ops = append(b.ops, Op{Kind: OpSetEnv, Source: value, Dest: key})
}

// UnsetEnv removes an environment variable inside the sandbox.
func (b *Builder) UnsetEnv(key string) {
	b.ops = append(b.ops, Op{Kind: OpUnsetEnv, Dest: key})
}

// WriteFile injects a virtual file: contents are written to the backing
// store and the backing file is read-only bound at dest. The backing
// store is created lazily on the first injected file.
func (b *Builder) WriteFile(dest string, contents []byte) error {
	if b.store == nil {
		store, err := newFileStore()
		if err != nil {
			return err
		}
		b.store = store
	}
	path, err := b.store.add(contents)
	if err != nil {
		return fmt.Errorf("writing virtual file for %s: %w", dest, err)
	}
	b.RoBind(path, dest)
	return nil
}

// Ops returns the accumulated operations in application order. The
// returned slice must not be modified.
func (b *Builder) Ops() []Op {
	return b.ops
}

// Args renders the operation list to bubblewrap's argument grammar, one
// flag-then-operands group per operation. This rendering is the wire
// contract with bwrap and must stay byte-for-byte stable.
func (b *Builder) Args() []string {
	args := make([]string, 0, len(b.ops)*3)
	for _, op := range b.ops {
		switch op.Kind {
		case OpTmpfs:
			args = append(args, "--tmpfs", op.Dest)
		case OpBind:
			args = append(args, "--bind", op.Source, op.Dest)
		case OpRoBind:
			args = append(args, "--ro-bind", op.Source, op.Dest)
		case OpDevBind:
			args = append(args, "--dev-bind", op.Source, op.Dest)
		case OpSymlink:
			args = append(args, "--symlink", op.Source, op.Dest)
		case OpSetEnv:
			args = append(args, "--setenv", op.Dest, op.Source)
		case OpUnsetEnv:
			args = append(args, "--unsetenv", op.Dest)
		}
	}
	return args
}

// apparmorProfilesFile is the kernel's listing of loaded AppArmor
// profiles. Overridden in tests.
var apparmorProfilesFile = "/sys/kernel/security/apparmor/profiles"

// Invocation is a finalized sandbox specification: the program and
// argument vector to hand to the launching primitive, plus ownership of
// the virtual-file backing store. Store is nil when no virtual files
// were injected. The caller must keep the store alive until the child
// process has exited, then release it with Close.
type Invocation struct {
	Program string
	Args    []string
	Store   *FileStore
}

// Close releases the backing store, if any.
func (inv *Invocation) Close() error {
	if inv.Store == nil {
		return nil
	}
	return inv.Store.Close()
}

// Finalize converts the builder into an invocation and transfers
// backing-store ownership to it. When apparmorUnconfined is set and the
// host reports an unconfined profile active, the invocation is
// re-wrapped through aa-exec requesting the unconfined profile
// explicitly, so that an ambient default profile narrower than intended
// does not silently apply.
func (b *Builder) Finalize(apparmorUnconfined bool) *Invocation {
	inv := &Invocation{
		Program: "bwrap",
		Args:    b.Args(),
		Store:   b.store,
	}
	b.store = nil

	if apparmorUnconfined && apparmorUnconfinedActive() {
		inv.Args = append([]string{"-p", "unconfined", inv.Program}, inv.Args...)
		inv.Program = "aa-exec"
	}
	return inv
}

// apparmorUnconfinedActive reports whether the host's loaded AppArmor
// profile set contains an unconfined profile. Unreadable profile
// listings (AppArmor absent) simply mean no wrapping.
func apparmorUnconfinedActive() bool {
	data, err := os.ReadFile(apparmorProfilesFile)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "(unconfined)")
}

// BwrapPath returns the path to the bwrap executable, probing the
// standard locations.
func BwrapPath() (string, error) {
	paths := []string{
		"/usr/bin/bwrap",
		"/usr/local/bin/bwrap",
		"/bin/bwrap",
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("bwrap not found in standard locations")
}

// FileStore is the process-scoped backing store for injected virtual
// files. Each file is created under a private temporary directory and
// its handle is held open for the store's lifetime, so the launching
// primitive can read it for as long as the child process runs.
type FileStore struct {
	dir   string
	files []*os.File
}

func newFileStore() (*FileStore, error) {
	dir, err := os.MkdirTemp("", "flatbox-setup-")
	if err != nil {
		return nil, fmt.Errorf("creating backing store: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// add writes contents to a freshly created, uniquely named file and
// returns its path.
func (s *FileStore) add(contents []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("data-%d", len(s.files)))
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := file.Write(contents); err != nil {
		file.Close()
		return "", err
	}
	s.files = append(s.files, file)
	return path, nil
}

// Dir returns the store's temporary directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close closes all held file handles and removes the temporary
// directory. Must only be called after the child process has exited.
func (s *FileStore) Close() error {
	for _, file := range s.files {
		file.Close()
	}
	s.files = nil
	return os.RemoveAll(s.dir)
}
