// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

package eval

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// sampleCases seeds a new evaluation file. The out-of-KB rows exercise
// the refusal path.
var sampleCases = []Case{
	{Question: "What is the capital of France?", ExpectedSnippet: "Paris", InKB: true},
	{Question: "When was the Go programming language released?", ExpectedSnippet: "2009", InKB: true},
	{Question: "What is the boiling point of water at sea level?", ExpectedSnippet: "100", InKB: true},
	{Question: "Who won the 1962 World Cup?", ExpectedSnippet: "", InKB: false},
	{Question: "What is the airspeed velocity of an unladen swallow?", ExpectedSnippet: "", InKB: false},
}

// WriteSampleCases creates an evaluation input file with starter rows.
// Refuses to overwrite an existing file.
func WriteSampleCases(path string) error {
	if _, err := os.Stat(path); err == nil {
		return grimerr.New(grimerr.CodeEvalInputInvalid, "eval: cases file already exists",
			grimerr.Field("path", path))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: creating dataset directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: creating cases file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(caseHeader); err != nil {
		return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: writing cases header: %w", err)
	}
	for _, c := range sampleCases {
		row := []string{c.Question, c.ExpectedSnippet, strconv.FormatBool(c.InKB)}
		if err := w.Write(row); err != nil {
			return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: writing case row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: flushing cases file: %w", err)
	}
	return nil
}
