// Copyright 2026 The Flatbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyfile parses the flat grouped key-value metadata format used
// by flatpak images: bracketed [Group] headers followed by key=value
// lines, UTF-8, no nesting, no escaping. Both group order and key order
// are preserved, because extension declarations are processed in file
// order and environment overrides apply in file order.
//
// The parsed [Metadata] owns copies of all its strings; callers may
// discard the raw text after Parse returns.
package keyfile

import (
	"fmt"
	"strings"
)

// Metadata is a read-only view of a parsed metadata file.
type Metadata struct {
	groups []*Group
	byName map[string]*Group
}

// Group is one [Name] section. Keys preserve file order; a repeated key
// keeps its first position but takes the last value.
type Group struct {
	name   string
	order  []string
	values map[string]string
}

// Parse parses raw metadata text. Lines are either blank, comments
// (starting with '#' or ';'), group headers, or key=value pairs;
// anything else is a configuration error.
func Parse(data []byte) (*Metadata, error) {
	metadata := &Metadata{byName: make(map[string]*Group)}

	var current *Group
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: unterminated group header %q", i+1, line)
			}
			name := line[1 : len(line)-1]
			if name == "" {
				return nil, fmt.Errorf("line %d: empty group name", i+1)
			}
			current = metadata.addGroup(name)
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, fmt.Errorf("line %d: expected key=value, got %q", i+1, line)
		}
		if current == nil {
			return nil, fmt.Errorf("line %d: key %q outside of any group", i+1, key)
		}
		current.set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	return metadata, nil
}

// addGroup returns the group with the given name, creating it at the end
// of the group list if it does not exist yet.
func (m *Metadata) addGroup(name string) *Group {
	if group, ok := m.byName[name]; ok {
		return group
	}
	group := &Group{name: name, values: make(map[string]string)}
	m.groups = append(m.groups, group)
	m.byName[name] = group
	return group
}

// Group returns the named group, or nil if absent.
func (m *Metadata) Group(name string) *Group {
	return m.byName[name]
}

// Groups returns all groups in file order. The returned slice must not
// be modified.
func (m *Metadata) Groups() []*Group {
	return m.groups
}

// Name returns the group's name without the surrounding brackets.
func (g *Group) Name() string {
	return g.name
}

// Get returns the value for key and whether it was present.
func (g *Group) Get(key string) (string, bool) {
	value, ok := g.values[key]
	return value, ok
}

// Keys returns the group's keys in file order. The returned slice must
// not be modified.
func (g *Group) Keys() []string {
	return g.order
}

func (g *Group) set(key, value string) {
	if _, ok := g.values[key]; !ok {
		g.order = append(g.order, key)
	}
	g.values[key] = value
}
