// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package otp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultSweepInterval is used when a Sweeper is created with interval <= 0.
const DefaultSweepInterval = time.Minute

// Sweeper periodically removes expired codes from a Store.
type Sweeper struct {
	store    Store
	interval time.Duration
	log      zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopChan  chan struct{}
	done      chan struct{}
}

// NewSweeper creates a stopped Sweeper.
func NewSweeper(store Store, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log.With().Str("component", "otp_sweeper").Logger(),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. It runs until Stop is called or ctx is
// cancelled. Calling Start more than once has no effect.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.run(ctx)
	})
}

// Stop ends the sweep loop and waits for it to exit. Safe to call more than
// once, and before Start.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	started := true
	s.startOnce.Do(func() {
		started = false
		close(s.done)
	})
	if started {
		<-s.done
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	s.log.Info().Dur("interval", s.interval).Msg("Starting code sweeper")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Code sweeper stopped")
			return
		case <-s.stopChan:
			s.log.Info().Msg("Code sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one reclamation pass. Failures are logged and retried on the
// next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	removed, err := s.store.SweepExpired(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to sweep expired codes")
		return
	}
	if removed > 0 {
		s.log.Debug().Int("removed", removed).Msg("Swept expired codes")
	}
}
