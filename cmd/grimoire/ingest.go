// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

const timePrecision = time.Millisecond

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Build the index from the knowledge-base directory",
		Long:  "Load every supported document under the data directory, split it into chunks, embed them, and replace the index.",
		RunE:  runIngest,
	}
}

func runIngest(cmd *cobra.Command, _ []string) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = app.Assistant.Close() }()

	stats, err := app.Assistant.Rebuild(cmd.Context(), app.Config.DataDir)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(),
		"Ingested %d documents into %d chunks in %s\n",
		stats.Documents, stats.Chunks, stats.Duration.Round(timePrecision))
	return err
}
