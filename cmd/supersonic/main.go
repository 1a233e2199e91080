// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command supersonic bridges a Minecraft proxy network with a Discord guild.
// It relays chat between the two sides, rewrites mentions and gates logins
// behind one-time codes redeemed from Discord.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/aiku/supersonic/pkg/connector"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const shutdownTimeout = 10 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:           "supersonic",
	Short:         "A Minecraft-Discord bridge with login codes",
	Version:       fmt.Sprintf("%s (commit %s, built %s)", Tag, Commit, BuildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bridge until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runBridge,
}

var exampleConfigCmd = &cobra.Command{
	Use:   "example-config",
	Short: "Print the example configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), connector.ExampleConfig)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the config file")
	rootCmd.AddCommand(runCmd, exampleConfigCmd, whitelistCmd)
}

func runBridge(cmd *cobra.Command, _ []string) error {
	cfg, err := connector.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	log.Info().Str("version", Tag).Str("commit", Commit).Msg("Starting supersonic")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := connector.NewRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		_ = rt.Stop(context.Background())
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for waiting := true; waiting; {
		select {
		case <-hup:
			if _, err := rt.Connector.ReloadAllowList(); err != nil {
				log.Error().Err(err).Msg("Keeping the previous allow-list")
			}
		case <-ctx.Done():
			waiting = false
		}
	}
	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return rt.Stop(shutdownCtx)
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
