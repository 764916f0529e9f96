/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/friendsincode/grimnir-playback/internal/config"
	"github.com/friendsincode/grimnir-playback/internal/logging"
	"github.com/friendsincode/grimnir-playback/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playback engine and its HTTP/SSE API",
	Long: `Opens the audio device, restores the queue from the database, and serves
the HTTP/SSE API until interrupted.

Configuration is read entirely from the environment (PLAYBACKCORE_*); see
internal/config for the full list.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.Environment)
	logger.Info().Msg("playback core starting")

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}

	logger.Info().Msg("playback core stopped")
	return nil
}
