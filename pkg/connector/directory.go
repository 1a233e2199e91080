// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"maps"
	"sync"

	"github.com/aiku/supersonic/pkg/mention"
	"github.com/aiku/supersonic/pkg/roster"
)

// DirectorySnapshot is the guild directory pushed by the Discord adapter.
// Each map goes from a snowflake id to a display name.
type DirectorySnapshot struct {
	Roles    map[string]string `json:"roles"`
	Channels map[string]string `json:"channels"`
	Users    map[string]string `json:"users"`
}

// Directory resolves Discord ids to names for outbound rewriting. Users are
// looked up in the roster first, so role holders render with their current
// effective name.
type Directory struct {
	roster *roster.Index

	mu       sync.RWMutex
	roles    map[string]string
	channels map[string]string
	users    map[string]string
}

var _ mention.Resolver = (*Directory)(nil)

// NewDirectory returns an empty directory backed by the member roster ix.
func NewDirectory(ix *roster.Index) *Directory {
	return &Directory{
		roster:   ix,
		roles:    map[string]string{},
		channels: map[string]string{},
		users:    map[string]string{},
	}
}

// Update replaces every non-nil map of the snapshot. Thread-safe.
func (d *Directory) Update(s DirectorySnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.Roles != nil {
		d.roles = maps.Clone(s.Roles)
	}
	if s.Channels != nil {
		d.channels = maps.Clone(s.Channels)
	}
	if s.Users != nil {
		d.users = maps.Clone(s.Users)
	}
}

// ResolveRole implements mention.Resolver. Thread-safe.
func (d *Directory) ResolveRole(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lookup(d.roles, id)
}

// ResolveChannel implements mention.Resolver. Thread-safe.
func (d *Directory) ResolveChannel(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lookup(d.channels, id)
}

// ResolveUser implements mention.Resolver. Thread-safe.
func (d *Directory) ResolveUser(id string) (string, bool) {
	if m, ok := d.roster.Get(id); ok {
		return m.EffectiveName(), true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return lookup(d.users, id)
}

func lookup(m map[string]string, id string) (string, bool) {
	name, ok := m[id]
	return name, ok && name != ""
}
