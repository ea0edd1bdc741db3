// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/grimoire-dev/grimoire/internal/assistant"
	"github.com/grimoire-dev/grimoire/internal/composer"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

func newQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask the knowledge base a question",
		Long:  "Answer a single question, or start an interactive loop when no question is given. Type 'exit' to leave the loop.",
		Args:  cobra.ArbitraryArgs,
		RunE:  runQuery,
	}

	cmd.Flags().Bool("sources", false, "show the supporting passages under each answer")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	app, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = app.Assistant.Close() }()

	if err := app.Assistant.Load(cmd.Context()); err != nil {
		return err
	}

	showSources, _ := cmd.Flags().GetBool("sources")

	if len(args) > 0 {
		question := strings.TrimSpace(strings.Join(args, " "))
		ans, err := app.Assistant.Query(cmd.Context(), question)
		if err != nil {
			return err
		}
		printAnswer(cmd.OutOrStdout(), ans, showSources)
		return nil
	}

	return interactiveLoop(cmd, app.Assistant, showSources)
}

// interactiveLoop reads questions from stdin until EOF or an exit word.
// Per-question failures are printed and the loop continues.
func interactiveLoop(cmd *cobra.Command, a *assistant.Assistant, showSources bool) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Ask a question, or type 'exit' to quit.")

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}

		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		ans, err := a.Query(cmd.Context(), question)
		if err != nil {
			if grimerr.IsUnavailable(err) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printAnswer(out, ans, showSources)
	}

	if err := scanner.Err(); err != nil {
		return grimerr.Errorf(grimerr.CodeCLIInputInvalid, "reading input: %w", err)
	}
	return nil
}

func printAnswer(w io.Writer, ans composer.Answer, showSources bool) {
	fmt.Fprintln(w, ans.Text)
	if !showSources || len(ans.Sources) == 0 {
		return
	}

	fmt.Fprintln(w, "\nSources:")
	for _, src := range ans.Sources {
		fmt.Fprintf(w, "  %s (distance %.3f)\n    %s\n", src.SourcePath, src.Distance, src.ChunkPreview)
	}
}
