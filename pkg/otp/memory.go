// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package otp

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type entry struct {
	Requester Requester
	ExpiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// MemoryStore keeps codes in process memory.
//
// Each code is a go-cache item with the code's TTL, and an eviction hook
// keeps the requester index in step with the cache. The cache janitor is
// not started: SweepExpired runs DeleteExpired, and the Sweeper calls it on
// its interval. Every eviction therefore happens under mu. The store clock
// is still checked on Consume so a code is never accepted at or after its
// expiry, whatever the cache has not yet noticed.
type MemoryStore struct {
	mu          sync.Mutex
	codes       *cache.Cache
	byRequester map[uuid.UUID]string
	now         func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		codes:       cache.New(cache.NoExpiration, 0),
		byRequester: make(map[uuid.UUID]string),
		now:         time.Now,
	}
	s.codes.OnEvicted(s.evicted)
	return s
}

// Save implements Store. Thread-safe.
func (s *MemoryStore) Save(_ context.Context, code string, req Requester, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.getLocked(code); ok {
		if !e.expired(now) {
			return ErrCodeCollision
		}
		s.codes.Delete(code)
	}
	if prev, ok := s.byRequester[req.ID]; ok {
		// The code may have been reissued to someone else since.
		if e, ok := s.getLocked(prev); ok && e.Requester.ID == req.ID {
			s.codes.Delete(prev)
		}
		delete(s.byRequester, req.ID)
	}

	d := ttl
	if d <= 0 {
		d = cache.NoExpiration
	}
	s.codes.Set(code, entry{Requester: req, ExpiresAt: now.Add(ttl)}, d)
	s.byRequester[req.ID] = code
	return nil
}

// Consume implements Store. Thread-safe.
func (s *MemoryStore) Consume(_ context.Context, code string) (Requester, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.getLocked(code)
	if !ok {
		return Requester{}, ErrUnknownCode
	}
	s.codes.Delete(code)
	if e.expired(s.now()) {
		return Requester{}, ErrExpiredCode
	}
	return e.Requester, nil
}

// SweepExpired implements Store. Items past their cache TTL go first, then
// anything the store clock considers expired. Thread-safe.
func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.codes.ItemCount()
	s.codes.DeleteExpired()

	now := s.now()
	for code, item := range s.codes.Items() {
		if e, ok := item.Object.(entry); !ok || e.expired(now) {
			s.codes.Delete(code)
		}
	}
	return before - s.codes.ItemCount(), nil
}

// Len implements Store. Items past their TTL count until swept.
// Thread-safe.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	return s.codes.ItemCount(), nil
}

func (s *MemoryStore) getLocked(code string) (entry, bool) {
	v, ok := s.codes.Get(code)
	if !ok {
		return entry{}, false
	}
	e, ok := v.(entry)
	return e, ok
}

// evicted runs after the cache drops code. The caller holds mu.
func (s *MemoryStore) evicted(code string, v interface{}) {
	e, ok := v.(entry)
	if !ok {
		return
	}
	if s.byRequester[e.Requester.ID] == code {
		delete(s.byRequester, e.Requester.ID)
	}
}
