// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package allowlist persists the players allowed through the login gate.
package allowlist

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Entry is an allowed player. Username is a display label; ID is the key.
type Entry struct {
	ID       uuid.UUID
	Username string
}

// List is a persisted allow-list.
type List interface {
	Contains(ctx context.Context, id uuid.UUID) (bool, error)
	// Add reports whether id was newly added. Adding a known id is a no-op.
	Add(ctx context.Context, id uuid.UUID, username string) (bool, error)
	// Remove reports whether id was present.
	Remove(ctx context.Context, id uuid.UUID) (bool, error)
	// Entries returns all entries ordered by username, then id.
	Entries(ctx context.Context) ([]Entry, error)
}

// Reloader is implemented by lists whose storage can change outside the
// process, such as a file edited by hand or by the CLI.
type Reloader interface {
	Reload() error
}

var _ Reloader = (*FileList)(nil)

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Username != entries[j].Username {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}
