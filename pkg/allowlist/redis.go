// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package allowlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisList is an allow-list stored as a Redis hash of uuid -> username,
// for deployments running several proxies.
type RedisList struct {
	rdb *redis.Client
	key string
	log zerolog.Logger
}

var _ List = (*RedisList)(nil)

// NewRedisList creates a list stored under <prefix>allowlist.
func NewRedisList(rdb *redis.Client, prefix string, log zerolog.Logger) *RedisList {
	return &RedisList{
		rdb: rdb,
		key: prefix + "allowlist",
		log: log.With().Str("component", "allowlist").Str("backend", "redis").Logger(),
	}
}

// Contains implements List.
func (l *RedisList) Contains(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := l.rdb.HExists(ctx, l.key, id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("check allow-list: %w", err)
	}
	return ok, nil
}

// Add implements List.
func (l *RedisList) Add(ctx context.Context, id uuid.UUID, username string) (bool, error) {
	added, err := l.rdb.HSetNX(ctx, l.key, id.String(), username).Result()
	if err != nil {
		return false, fmt.Errorf("add to allow-list: %w", err)
	}
	if added {
		l.log.Info().Str("player", username).Str("player_id", id.String()).Msg("Added player to allow-list")
	}
	return added, nil
}

// Remove implements List.
func (l *RedisList) Remove(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := l.rdb.HDel(ctx, l.key, id.String()).Result()
	if err != nil {
		return false, fmt.Errorf("remove from allow-list: %w", err)
	}
	return n > 0, nil
}

// Entries implements List. Fields that are not valid UUIDs are skipped.
func (l *RedisList) Entries(ctx context.Context) ([]Entry, error) {
	all, err := l.rdb.HGetAll(ctx, l.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list allow-list: %w", err)
	}
	out := make([]Entry, 0, len(all))
	for field, username := range all {
		id, err := uuid.Parse(field)
		if err != nil {
			l.log.Warn().Str("field", field).Msg("Skipping invalid allow-list entry")
			continue
		}
		out = append(out, Entry{ID: id, Username: username})
	}
	sortEntries(out)
	return out, nil
}
