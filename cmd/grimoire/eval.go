// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/grimoire-dev/grimoire/internal/eval"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Run the evaluation question set against the assistant",
		Long:  "Query every case in the evaluation file and write a results file with grounding, sources, and timing for review.",
		RunE:  runEval,
	}

	cmd.Flags().Bool("init", false, "write a starter evaluation file instead of running")

	return cmd
}

func runEval(cmd *cobra.Command, _ []string) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = app.Assistant.Close() }()

	if initOnly, _ := cmd.Flags().GetBool("init"); initOnly {
		path := app.Config.Eval.DataPath
		if err := eval.WriteSampleCases(path); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote starter evaluation cases to %s\n", path)
		return err
	}

	if err := app.Assistant.Load(cmd.Context()); err != nil {
		return err
	}
	if !app.Assistant.Status().Ready {
		return grimerr.New(grimerr.CodeIndexUnavailable,
			"no index available; run 'grimoire ingest' before evaluating")
	}

	harness := eval.New(app.Assistant, app.Log)
	sum, err := harness.Run(cmd.Context(), app.Config.Eval.DataPath, app.Config.Eval.ResultsPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Evaluated %d cases in %s\n", sum.Total, sum.TotalElapsed.Round(timePrecision))
	fmt.Fprintf(out, "  grounded: %d  refused: %d  errors: %d\n", sum.Grounded, sum.Refused, sum.Errors)
	fmt.Fprintf(out, "  gate correct: %d/%d  snippet hits: %d\n", sum.GateCorrect, sum.Total, sum.SnippetHits)
	fmt.Fprintf(out, "Results written to %s\n", app.Config.Eval.ResultsPath)
	return nil
}
