// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package roster keeps the live set of Discord members eligible for
// mentions from the game side and indexes their names for prefix lookup.
package roster

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/trie"
)

// Member is a Discord guild member holding the bridged role.
type Member struct {
	ID string `json:"id"`
	// Nickname is the guild-local override. Empty when unset.
	Nickname string `json:"nickname,omitempty"`
	// Name is the global display name or username, always present.
	Name string `json:"name"`
}

// EffectiveName returns the nickname when set, otherwise Name.
func (m Member) EffectiveName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Name
}

// Mention is the result of a name lookup. IsNickname records which of the
// member's names was matched, which decides how much source text it consumes.
type Mention struct {
	Member     Member
	IsNickname bool
}

// MatchedName returns the name that produced this mention.
func (m Mention) MatchedName() string {
	if m.IsNickname {
		return m.Member.Nickname
	}
	return m.Member.Name
}

// Index is the owned, lock-protected roster shared by the event ingestion
// path and the rewrite path.
//
// Lookups are last-write-wins when two members register the same name.
// Removal only clears names still owned by the removed member.
type Index struct {
	mu      sync.RWMutex
	names   *trie.Trie[Mention]
	members map[string]Member
	log     zerolog.Logger
}

// NewIndex creates an empty roster index.
func NewIndex(log zerolog.Logger) *Index {
	return &Index{
		names:   trie.New[Mention](),
		members: make(map[string]Member),
		log:     log.With().Str("component", "roster").Logger(),
	}
}

// Add registers a member's nickname (if any) and fallback name. Adding a
// known ID first drops that member's previous registrations. Thread-safe.
func (ix *Index) Add(m Member) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.addLocked(m)
}

// AddAll registers every member in one critical section. Thread-safe.
func (ix *Index) AddAll(members []Member) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, m := range members {
		ix.addLocked(m)
	}
	ix.log.Debug().Int("count", len(members)).Int("total", len(ix.members)).Msg("Added roster members")
}

// Replace drops the whole roster and loads members instead. Thread-safe.
func (ix *Index) Replace(members []Member) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.names = trie.New[Mention]()
	ix.members = make(map[string]Member, len(members))
	for _, m := range members {
		ix.addLocked(m)
	}
	ix.log.Info().Int("total", len(ix.members)).Msg("Roster resynced")
}

// Remove drops a member's registrations. Unknown members are ignored; if
// only m.ID is known the stored names are used. Thread-safe.
func (ix *Index) Remove(m Member) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if stored, ok := ix.members[m.ID]; ok {
		m = stored
	}
	ix.removeLocked(m)
}

// Find resolves the text following an '@' sigil. An exact name match wins;
// otherwise the shortest registered name that prefixes candidate is used.
// Thread-safe.
func (ix *Index) Find(candidate string) (Mention, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if mention, ok := ix.names.Search(candidate, false); ok {
		return mention, true
	}
	return ix.names.Search(candidate, true)
}

// Get returns the member registered under id. Thread-safe.
func (ix *Index) Get(id string) (Member, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	m, ok := ix.members[id]
	return m, ok
}

// Len returns the number of members in the roster. Thread-safe.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.members)
}

func (ix *Index) addLocked(m Member) {
	if m.ID == "" || m.Name == "" {
		ix.log.Warn().Str("member_id", m.ID).Msg("Ignoring roster member without id or name")
		return
	}
	if prev, ok := ix.members[m.ID]; ok {
		ix.removeLocked(prev)
	}
	if m.Nickname != "" {
		ix.names.Insert(m.Nickname, Mention{Member: m, IsNickname: true})
	}
	ix.names.Insert(m.Name, Mention{Member: m, IsNickname: false})
	ix.members[m.ID] = m
}

func (ix *Index) removeLocked(m Member) {
	owned := func(v Mention) bool { return v.Member.ID == m.ID }
	if m.Nickname != "" {
		ix.names.RemoveFunc(m.Nickname, owned)
	}
	if m.Name != "" {
		ix.names.RemoveFunc(m.Name, owned)
	}
	delete(ix.members, m.ID)
}
