// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grimoire-dev/grimoire/internal/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over HTTP",
		Long:  "Load the persisted index and expose query, ingest, and status endpoints until interrupted.",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")
	_ = viper.BindPFlag("server.listen", cmd.Flags().Lookup("listen"))

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = app.Assistant.Close() }()

	// An absent snapshot is fine: the server starts unready and the
	// ingest endpoint can populate it.
	if err := app.Assistant.Load(cmd.Context()); err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		ListenAddr:  app.Config.Server.Listen,
		CORSOrigins: app.Config.Server.CORSOrigins,
		DataDir:     app.Config.DataDir,
	}, app.Assistant, app.Log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}
