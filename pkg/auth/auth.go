// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package auth gates proxy logins behind a one-time code redeemed on Discord.
//
// A player moves from unauthenticated to code-issued on a denied login, and
// to authenticated when the code is redeemed. Authentication is persisted in
// the allow-list, so later logins pass without a code. Every denied login
// issues a fresh code and invalidates the previous one.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/otp"
)

// ErrInvalidCode is returned for any code that cannot be redeemed. It does
// not say whether the code expired or never existed.
var ErrInvalidCode = errors.New("invalid code")

// AllowList is the persisted set of authenticated players.
type AllowList interface {
	Contains(ctx context.Context, id uuid.UUID) (bool, error)
	Add(ctx context.Context, id uuid.UUID, username string) (bool, error)
}

// CodeIssuer issues a code bound to a requester. *otp.Issuer satisfies it.
type CodeIssuer interface {
	Issue(ctx context.Context, req otp.Requester, ttl time.Duration) (string, error)
}

// CodeConsumer redeems a code. otp.Store satisfies it.
type CodeConsumer interface {
	Consume(ctx context.Context, code string) (otp.Requester, error)
}

// Decision is the outcome of a login attempt. Code and ExpiresIn are set
// only when the login is denied.
type Decision struct {
	Allowed   bool
	Code      string
	ExpiresIn time.Duration
}

// Coordinator decides logins and redeems codes.
type Coordinator struct {
	allow  AllowList
	issuer CodeIssuer
	codes  CodeConsumer
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCoordinator creates a Coordinator issuing codes valid for ttl.
func NewCoordinator(allow AllowList, issuer CodeIssuer, codes CodeConsumer, ttl time.Duration, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		allow:  allow,
		issuer: issuer,
		codes:  codes,
		ttl:    ttl,
		log:    log.With().Str("component", "auth").Logger(),
	}
}

// CodeTTL returns how long issued codes stay valid.
func (c *Coordinator) CodeTTL() time.Duration {
	return c.ttl
}

// IsAllowed reports whether the player is on the allow-list.
func (c *Coordinator) IsAllowed(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := c.allow.Contains(ctx, id)
	if err != nil {
		return false, fmt.Errorf("check allow-list: %w", err)
	}
	return ok, nil
}

// OnConnectAttempt allows allow-listed players and issues a code to the rest.
func (c *Coordinator) OnConnectAttempt(ctx context.Context, req otp.Requester) (Decision, error) {
	allowed, err := c.IsAllowed(ctx, req.ID)
	if err != nil {
		return Decision{}, err
	}
	if allowed {
		return Decision{Allowed: true}, nil
	}

	code, err := c.issuer.Issue(ctx, req, c.ttl)
	if err != nil {
		return Decision{}, fmt.Errorf("issue code: %w", err)
	}
	c.log.Info().
		Str("player", req.Name).
		Str("player_id", req.ID.String()).
		Msg("Authentication request")
	return Decision{Code: code, ExpiresIn: c.ttl}, nil
}

// Redeem consumes code and allow-lists its requester. Unknown and expired
// codes both return ErrInvalidCode; other errors come from the backends.
//
// The code is spent before the allow-list write, so if that write fails
// the player has to reconnect for a new code. The failure is logged with
// the code's owner so they can be added by hand.
func (c *Coordinator) Redeem(ctx context.Context, code string) (otp.Requester, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return otp.Requester{}, ErrInvalidCode
	}

	req, err := c.codes.Consume(ctx, code)
	switch {
	case errors.Is(err, otp.ErrUnknownCode), errors.Is(err, otp.ErrExpiredCode):
		c.log.Debug().Err(err).Msg("Rejected code")
		return otp.Requester{}, ErrInvalidCode
	case err != nil:
		return otp.Requester{}, fmt.Errorf("consume code: %w", err)
	}

	if _, err := c.allow.Add(ctx, req.ID, req.Name); err != nil {
		c.log.Warn().Err(err).
			Str("player", req.Name).
			Str("player_id", req.ID.String()).
			Msg("Code spent but allow-list write failed, player must reconnect for a new code")
		return otp.Requester{}, fmt.Errorf("add to allow-list: %w", err)
	}
	c.log.Info().
		Str("player", req.Name).
		Str("player_id", req.ID.String()).
		Msg("Authentication successful")
	return req, nil
}
