// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxAttempts bounds code generation retries on collision.
const DefaultMaxAttempts = 32

// Issuer generates codes and saves them, retrying on collision.
type Issuer struct {
	store       Store
	gen         Generator
	maxAttempts int
	log         zerolog.Logger
}

// NewIssuer creates an Issuer. maxAttempts <= 0 uses DefaultMaxAttempts.
func NewIssuer(store Store, gen Generator, maxAttempts int, log zerolog.Logger) *Issuer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Issuer{
		store:       store,
		gen:         gen,
		maxAttempts: maxAttempts,
		log:         log.With().Str("component", "otp_issuer").Logger(),
	}
}

// Issue returns a fresh code bound to req for ttl. Any code req held before
// stops being valid. It returns ErrCodeSpaceExhausted when every attempt
// collided with a live code.
func (i *Issuer) Issue(ctx context.Context, req Requester, ttl time.Duration) (string, error) {
	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		code, err := i.gen.Generate()
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		err = i.store.Save(ctx, code, req, ttl)
		if err == nil {
			i.log.Debug().
				Str("player", req.Name).
				Int("attempt", attempt).
				Dur("ttl", ttl).
				Msg("Issued code")
			return code, nil
		}
		if !errors.Is(err, ErrCodeCollision) {
			return "", fmt.Errorf("save code: %w", err)
		}
		i.log.Debug().Int("attempt", attempt).Msg("Code collision, retrying")
	}
	i.log.Error().
		Str("player", req.Name).
		Int("max_attempts", i.maxAttempts).
		Msg("Code space exhausted")
	return "", ErrCodeSpaceExhausted
}
