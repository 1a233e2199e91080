// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"net"
	"net/http"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aiku/supersonic/pkg/allowlist"
	"github.com/aiku/supersonic/pkg/otp"
)

func memoryRuntimeConfig(t *testing.T) *Config {
	t.Helper()
	cfg := testConfig()
	cfg.Whitelist.File = filepath.Join(t.TempDir(), "whitelist.yaml")
	cfg.API.Addr = "127.0.0.1:0"
	return cfg
}

func redisRuntimeConfig(t *testing.T) (*Config, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cfg := testConfig()
	cfg.Storage.Backend = BackendRedis
	cfg.Storage.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.API.Addr = "127.0.0.1:0"
	return cfg, mr
}

func TestNewRuntimeMemoryBackend(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	rt, err := NewRuntime(ctx, memoryRuntimeConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if _, ok := rt.Codes.(*otp.MemoryStore); !ok {
		t.Errorf("codes: got %T, want *otp.MemoryStore", rt.Codes)
	}
	if _, ok := rt.AllowList.(*allowlist.FileList); !ok {
		t.Errorf("allow-list: got %T, want *allowlist.FileList", rt.AllowList)
	}
	if rt.Connector.Reloader == nil {
		t.Error("file allow-list should be reloadable")
	}
	if _, ok := rt.Connector.Discord.(LogSender); !ok {
		t.Errorf("sender without webhook: got %T, want LogSender", rt.Connector.Discord)
	}

	if err := rt.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + rt.Connector.Addr().String() + "/api/health")
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: got %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if err := rt.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestNewRuntimeRedisBackend(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	cfg, mr := redisRuntimeConfig(t)
	cfg.Discord.WebhookURL = "https://discord.invalid/api/webhooks/1/x"

	rt, err := NewRuntime(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	defer func() { _ = rt.Stop(ctx) }()

	if _, ok := rt.Codes.(*otp.RedisStore); !ok {
		t.Errorf("codes: got %T, want *otp.RedisStore", rt.Codes)
	}
	if rt.Connector.Reloader != nil {
		t.Errorf("redis allow-list should not be reloadable, got %T", rt.Connector.Reloader)
	}
	if _, ok := rt.Connector.Discord.(*WebhookSender); !ok {
		t.Errorf("sender with webhook: got %T, want *WebhookSender", rt.Connector.Discord)
	}

	steve := Player{ID: uuid.New(), Name: "Steve"}
	res, err := rt.Connector.HandleLogin(ctx, steve)
	if err != nil {
		t.Fatalf("HandleLogin: %v", err)
	}
	if res.Allowed {
		t.Fatal("unknown player should be gated")
	}
	if n, _ := rt.Codes.Len(ctx); n != 1 {
		t.Errorf("stored codes: got %d, want 1", n)
	}

	if _, err := rt.AllowList.Add(ctx, steve.ID, steve.Name); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !mr.Exists(cfg.Storage.KeyPrefix + "allowlist") {
		t.Errorf("allow-list key %q missing, keys: %v", cfg.Storage.KeyPrefix+"allowlist", mr.Keys())
	}
	res, err = rt.Connector.HandleLogin(ctx, steve)
	if err != nil || !res.Allowed {
		t.Errorf("allowed player: got %+v, %v", res, err)
	}
}

func TestNewRuntimeRedisErrors(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)

	cfg := testConfig()
	cfg.Storage.Backend = BackendRedis
	cfg.Storage.RedisURL = "mysql://nope"
	if _, err := NewRuntime(ctx, cfg, zerolog.Nop()); err == nil {
		t.Error("NewRuntime should reject a non-redis url")
	}

	down, _ := redisRuntimeConfig(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	down.Storage.RedisURL = "redis://" + mr.Addr()
	mr.Close()
	if _, err := NewRuntime(ctx, down, zerolog.Nop()); err == nil {
		t.Error("NewRuntime should fail when redis is unreachable")
	}
}

func TestRuntimeStartFailsOnBoundAddress(t *testing.T) {
	t.Parallel()
	ctx := testContext(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	cfg := memoryRuntimeConfig(t)
	cfg.API.Addr = ln.Addr().String()
	rt, err := NewRuntime(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	if err := rt.Start(ctx); err == nil {
		t.Error("Start should fail on an address already in use")
	}
	if err := rt.Stop(ctx); err != nil {
		t.Errorf("Stop after failed Start: %v", err)
	}
}

func TestOpenAllowListRequiresClient(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Storage.Backend = BackendRedis
	if _, err := OpenAllowList(cfg, nil, zerolog.Nop()); err == nil {
		t.Error("OpenAllowList should fail for redis without a client")
	}
}
