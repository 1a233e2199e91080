// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package otp issues and redeems the one-time codes that link a Minecraft
// player to a Discord account.
//
// A requester holds at most one valid code: saving a new code for the same
// requester invalidates the previous one. Expiry is checked on every
// Consume, so the background sweep only bounds memory.
package otp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCodeCollision      = errors.New("code already issued")
	ErrUnknownCode        = errors.New("unknown code")
	ErrExpiredCode        = errors.New("code expired")
	ErrCodeSpaceExhausted = errors.New("no free code after max attempts")
)

// Requester is the player a code was issued to.
type Requester struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// Store holds issued codes.
type Store interface {
	// Save binds code to req until ttl elapses, invalidating any code req
	// held before. It returns ErrCodeCollision if code is live for anyone.
	Save(ctx context.Context, code string, req Requester, ttl time.Duration) error
	// Consume removes code and returns its requester. An expired entry is
	// removed too and reported as ErrExpiredCode.
	Consume(ctx context.Context, code string) (Requester, error)
	// SweepExpired removes expired entries and returns how many it removed.
	SweepExpired(ctx context.Context) (int, error)
	// Len returns the number of stored entries, expired or not.
	Len(ctx context.Context) (int, error)
}
