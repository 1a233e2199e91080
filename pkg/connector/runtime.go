// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/allowlist"
	"github.com/aiku/supersonic/pkg/auth"
	"github.com/aiku/supersonic/pkg/otp"
)

// Runtime is a fully wired bridge: storage backends, login gate, expired
// code sweeper, Discord sender and API.
type Runtime struct {
	Connector *Connector
	AllowList allowlist.List
	Codes     otp.Store

	sweeper *otp.Sweeper
	watcher *allowlist.Watcher
	redis   *redis.Client
	log     zerolog.Logger
}

// OpenRedis connects to url and checks the connection.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

// OpenAllowList opens the allow-list of the configured backend. rdb is
// only used by the redis backend.
func OpenAllowList(cfg *Config, rdb *redis.Client, log zerolog.Logger) (allowlist.List, error) {
	switch cfg.Storage.Backend {
	case BackendRedis:
		if rdb == nil {
			return nil, errors.New("redis backend without a client")
		}
		return allowlist.NewRedisList(rdb, cfg.Storage.KeyPrefix, log), nil
	default:
		return allowlist.LoadFile(cfg.Whitelist.File, log)
	}
}

// NewRuntime builds the bridge described by cfg. Nothing runs until Start.
func NewRuntime(ctx context.Context, cfg *Config, log zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{log: log.With().Str("component", "runtime").Logger()}

	if cfg.Storage.Backend == BackendRedis {
		rdb, err := OpenRedis(ctx, cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		rt.redis = rdb
		rt.Codes = otp.NewRedisStore(rdb, cfg.Storage.KeyPrefix)
	} else {
		rt.Codes = otp.NewMemoryStore()
	}

	list, err := OpenAllowList(cfg, rt.redis, log)
	if err != nil {
		rt.closeRedis()
		return nil, fmt.Errorf("open allow-list: %w", err)
	}
	rt.AllowList = list

	issuer := otp.NewIssuer(rt.Codes, otp.DigitGenerator{Length: cfg.Auth.CodeLength}, cfg.Auth.MaxAttempts, log)
	coordinator := auth.NewCoordinator(rt.AllowList, issuer, rt.Codes, cfg.CodeTTL(), log)

	var sender MessageSender = NewLogSender(log)
	if cfg.Discord.WebhookURL != "" {
		ws, err := NewWebhookSender(cfg.Discord.WebhookURL, nil, log)
		if err != nil {
			rt.closeRedis()
			return nil, fmt.Errorf("discord webhook: %w", err)
		}
		sender = ws
	}
	rt.Connector = New(cfg, coordinator, NewProxyClient(cfg.Proxy.URL, nil, log), sender, log)
	if r, ok := list.(allowlist.Reloader); ok {
		rt.Connector.Reloader = r
	}
	if fl, ok := list.(*allowlist.FileList); ok {
		if rt.watcher, err = allowlist.NewWatcher(fl, 0, log); err != nil {
			rt.closeRedis()
			return nil, err
		}
	}
	rt.sweeper = otp.NewSweeper(rt.Codes, cfg.SweepInterval(), log)

	rt.log.Info().
		Str("backend", cfg.Storage.Backend).
		Bool("webhook", cfg.Discord.WebhookURL != "").
		Msg("Bridge assembled")
	return rt, nil
}

// Start launches the sweeper, the allow-list watcher and the API.
func (rt *Runtime) Start(ctx context.Context) error {
	if rt.watcher != nil {
		if err := rt.watcher.Start(ctx); err != nil {
			rt.log.Warn().Err(err).Msg("Allow-list changes need SIGHUP or the reload endpoint")
			rt.watcher = nil
		}
	}
	rt.sweeper.Start(ctx)
	if err := rt.Connector.Start(ctx); err != nil {
		rt.stopBackground()
		return err
	}
	return nil
}

// Stop shuts the API down, waits for the background loops and closes the
// redis client.
func (rt *Runtime) Stop(ctx context.Context) error {
	err := rt.Connector.Stop(ctx)
	rt.stopBackground()
	rt.closeRedis()
	return err
}

func (rt *Runtime) stopBackground() {
	rt.sweeper.Stop()
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
}

func (rt *Runtime) closeRedis() {
	if rt.redis == nil {
		return
	}
	if err := rt.redis.Close(); err != nil {
		rt.log.Warn().Err(err).Msg("Failed to close redis client")
	}
	rt.redis = nil
}
