// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aiku/supersonic/pkg/allowlist"
	"github.com/aiku/supersonic/pkg/connector"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Inspect and edit the player allow-list",
	Long: `Inspect and edit the player allow-list of the configured backend.

A running bridge with a file allow-list picks up changes on SIGHUP or
POST /api/whitelist/reload. Redis allow-lists are shared immediately.`,
}

var whitelistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allowed players",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAllowList(cmd.Context(), func(list allowlist.List) error {
			return printEntries(cmd.Context(), cmd.OutOrStdout(), list)
		})
	},
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <uuid> <name>",
	Short: "Allow a player",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid player uuid %q: %w", args[0], err)
		}
		return withAllowList(cmd.Context(), func(list allowlist.List) error {
			added, err := list.Add(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", args[1], id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is already allowed\n", id)
			}
			return nil
		})
	},
}

var whitelistRemoveCmd = &cobra.Command{
	Use:   "remove <uuid>",
	Short: "Remove a player",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid player uuid %q: %w", args[0], err)
		}
		return withAllowList(cmd.Context(), func(list allowlist.List) error {
			removed, err := list.Remove(cmd.Context(), id)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not allowed\n", id)
			}
			return nil
		})
	},
}

func init() {
	whitelistCmd.AddCommand(whitelistListCmd, whitelistAddCmd, whitelistRemoveCmd)
}

// withAllowList opens the configured allow-list for the duration of fn.
func withAllowList(ctx context.Context, fn func(allowlist.List) error) error {
	cfg, err := connector.LoadConfig(configPath)
	if err != nil {
		return err
	}
	var rdb *redis.Client
	if cfg.Storage.Backend == connector.BackendRedis {
		if rdb, err = connector.OpenRedis(ctx, cfg.Storage.RedisURL); err != nil {
			return err
		}
		defer rdb.Close()
	}
	list, err := connector.OpenAllowList(cfg, rdb, zerolog.Nop())
	if err != nil {
		return err
	}
	return fn(list)
}

func printEntries(ctx context.Context, w io.Writer, list allowlist.List) error {
	entries, err := list.Entries(ctx)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		_, err = fmt.Fprintln(w, "No players are allowed.")
		return err
	}
	for _, e := range entries {
		if _, err := fmt.Fprintf(w, "%s  %s\n", e.ID, e.Username); err != nil {
			return err
		}
	}
	return nil
}
