// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps codes in Redis so several proxy instances can share them.
//
// Keys:
//
//	<prefix>otp:code:<code>       JSON record, expires with the code
//	<prefix>otp:requester:<uuid>  the requester's latest code
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

type record struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisStore creates a store on rdb. prefix namespaces every key.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) codeKey(code string) string      { return s.prefix + "otp:code:" + code }
func (s *RedisStore) requesterKey(id uuid.UUID) string { return s.prefix + "otp:requester:" + id.String() }

// Save implements Store. A ttl under a millisecond cannot be expressed in
// Redis; the previous code is still invalidated but nothing is written, so
// the new code never redeems.
func (s *RedisStore) Save(ctx context.Context, code string, req Requester, ttl time.Duration) error {
	if ttl < time.Millisecond {
		return s.invalidate(ctx, req.ID)
	}

	raw, err := json.Marshal(record{ID: req.ID, Name: req.Name, ExpiresAt: s.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("encode code record: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, s.codeKey(code), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store code: %w", err)
	}
	if !ok {
		return ErrCodeCollision
	}

	var prev *redis.StringCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		prev = pipe.GetSet(ctx, s.requesterKey(req.ID), code)
		pipe.PExpire(ctx, s.requesterKey(req.ID), ttl)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("index code by requester: %w", err)
	}
	prevCode, err := prev.Result()
	if errors.Is(err, redis.Nil) || prevCode == code {
		return nil
	}
	if err != nil {
		return fmt.Errorf("index code by requester: %w", err)
	}
	return s.deleteIfOwned(ctx, prevCode, req.ID)
}

// invalidate drops the requester's current code.
func (s *RedisStore) invalidate(ctx context.Context, id uuid.UUID) error {
	prevCode, err := s.rdb.GetDel(ctx, s.requesterKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalidate previous code: %w", err)
	}
	return s.deleteIfOwned(ctx, prevCode, id)
}

// deleteIfOwned removes code only while it still belongs to id. The code may
// have expired and been issued to someone else since it was indexed.
func (s *RedisStore) deleteIfOwned(ctx context.Context, code string, id uuid.UUID) error {
	key := s.codeKey(code)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if rec.ID != id {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// The key changed under us, so it was consumed or replaced.
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete previous code: %w", err)
	}
	return nil
}

// Consume implements Store. GETDEL makes redemption exactly-once across
// instances.
func (s *RedisStore) Consume(ctx context.Context, code string) (Requester, error) {
	raw, err := s.rdb.GetDel(ctx, s.codeKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Requester{}, ErrUnknownCode
	}
	if err != nil {
		return Requester{}, fmt.Errorf("consume code: %w", err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Requester{}, fmt.Errorf("decode code record: %w", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		return Requester{}, ErrExpiredCode
	}
	return Requester{ID: rec.ID, Name: rec.Name}, nil
}

// SweepExpired implements Store. Redis expires keys itself, so there is
// nothing to remove.
func (s *RedisStore) SweepExpired(context.Context) (int, error) {
	return 0, nil
}

// Len implements Store by scanning the code keyspace.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.rdb.Scan(ctx, 0, s.codeKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan codes: %w", err)
	}
	return n, nil
}
