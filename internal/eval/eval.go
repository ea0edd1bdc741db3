// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package eval runs a question set through the assistant and writes a
// results file for review. Automatic checks cover grounding and snippet
// presence; the answer-quality columns stay empty for a human pass.
package eval

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/grimoire-dev/grimoire/internal/composer"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// caseHeader is the required input schema.
var caseHeader = []string{"question", "expected_answer_snippet", "is_in_kb"}

// resultHeader extends the input columns with outcomes. The manual
// columns are written empty.
var resultHeader = []string{
	"question", "expected_answer_snippet", "is_in_kb",
	"answer", "grounded", "sources", "response_time_ms",
	"snippet_found", "error", "manual_correct", "notes",
}

// Case is one evaluation question.
type Case struct {
	Question        string
	ExpectedSnippet string
	// InKB records whether the knowledge base should be able to answer.
	// In-KB questions should ground; out-of-KB questions should refuse.
	InKB bool
}

// Result is the outcome for one case.
type Result struct {
	Case         Case
	Answer       composer.Answer
	ResponseTime time.Duration
	Err          error
}

// Summary aggregates a full run.
type Summary struct {
	Total        int
	Grounded     int
	Refused      int
	Errors       int
	SnippetHits  int
	GateCorrect  int // grounded matches is_in_kb
	TotalElapsed time.Duration
}

// Querier is the slice of the assistant the harness needs.
type Querier interface {
	Query(ctx context.Context, question string) (composer.Answer, error)
}

// Harness drives an evaluation run.
type Harness struct {
	querier Querier
	log     *slog.Logger
}

func New(querier Querier, log *slog.Logger) *Harness {
	if log == nil {
		log = slog.Default()
	}
	return &Harness{querier: querier, log: log}
}

// Run reads cases from casesPath, queries each one, and writes results
// to resultsPath. Per-case query failures are recorded in the results
// rather than aborting the run.
func (h *Harness) Run(ctx context.Context, casesPath, resultsPath string) (Summary, error) {
	cases, err := ReadCases(casesPath)
	if err != nil {
		return Summary{}, err
	}

	start := time.Now()
	results := make([]Result, 0, len(cases))
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return Summary{}, grimerr.Wrapf(err, grimerr.CodeEvalResultsFailure, "eval: run cancelled")
		}

		qStart := time.Now()
		ans, qErr := h.querier.Query(ctx, c.Question)
		r := Result{
			Case:         c,
			Answer:       ans,
			ResponseTime: time.Since(qStart),
			Err:          qErr,
		}
		results = append(results, r)
		h.log.Info("evaluated case",
			"question", c.Question,
			"grounded", ans.Grounded,
			"duration", r.ResponseTime,
			"error", qErr,
		)
	}

	if err := writeResults(resultsPath, results); err != nil {
		return Summary{}, err
	}

	sum := summarize(results)
	sum.TotalElapsed = time.Since(start)
	return sum, nil
}

// ReadCases parses the evaluation input file.
func ReadCases(path string) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeEvalReadFailure, "eval: opening cases file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, grimerr.Errorf(grimerr.CodeEvalReadFailure, "eval: parsing cases file: %w", err)
	}
	if len(rows) == 0 {
		return nil, grimerr.New(grimerr.CodeEvalInputInvalid, "eval: cases file is empty",
			grimerr.Field("path", path))
	}

	if err := checkHeader(rows[0]); err != nil {
		return nil, err
	}

	cases := make([]Case, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < len(caseHeader) {
			return nil, grimerr.Errorf(grimerr.CodeEvalInputInvalid,
				"eval: row %d has %d columns, want %d", i+2, len(row), len(caseHeader))
		}
		question := strings.TrimSpace(row[0])
		if question == "" {
			return nil, grimerr.Errorf(grimerr.CodeEvalInputInvalid, "eval: row %d has an empty question", i+2)
		}
		inKB, err := parseBool(row[2])
		if err != nil {
			return nil, grimerr.Errorf(grimerr.CodeEvalInputInvalid,
				"eval: row %d has invalid is_in_kb value %q", i+2, row[2])
		}
		cases = append(cases, Case{
			Question:        question,
			ExpectedSnippet: strings.TrimSpace(row[1]),
			InKB:            inKB,
		})
	}
	if len(cases) == 0 {
		return nil, grimerr.New(grimerr.CodeEvalInputInvalid, "eval: cases file has no rows",
			grimerr.Field("path", path))
	}
	return cases, nil
}

func checkHeader(header []string) error {
	if len(header) < len(caseHeader) {
		return grimerr.Errorf(grimerr.CodeEvalInputInvalid,
			"eval: header has %d columns, want %d", len(header), len(caseHeader))
	}
	for i, want := range caseHeader {
		if strings.TrimSpace(strings.ToLower(header[i])) != want {
			return grimerr.Errorf(grimerr.CodeEvalInputInvalid,
				"eval: header column %d is %q, want %q", i+1, header[i], want)
		}
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

func writeResults(path string, results []Result) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: creating results directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: creating results file: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(resultHeader); err != nil {
		return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: writing results header: %w", err)
	}

	for _, r := range results {
		row := []string{
			r.Case.Question,
			r.Case.ExpectedSnippet,
			strconv.FormatBool(r.Case.InKB),
			r.Answer.Text,
			strconv.FormatBool(r.Answer.Grounded),
			formatSources(r.Answer),
			strconv.FormatInt(r.ResponseTime.Milliseconds(), 10),
			strconv.FormatBool(snippetFound(r)),
			formatErr(r.Err),
			"", // manual_correct
			"", // notes
		}
		if err := w.Write(row); err != nil {
			return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: writing result row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return grimerr.Errorf(grimerr.CodeEvalResultsFailure, "eval: flushing results: %w", err)
	}
	return nil
}

func formatSources(ans composer.Answer) string {
	if len(ans.Sources) == 0 {
		return ""
	}
	paths := make([]string, 0, len(ans.Sources))
	seen := map[string]bool{}
	for _, s := range ans.Sources {
		if !seen[s.SourcePath] {
			seen[s.SourcePath] = true
			paths = append(paths, s.SourcePath)
		}
	}
	return strings.Join(paths, "; ")
}

func snippetFound(r Result) bool {
	if r.Err != nil || r.Case.ExpectedSnippet == "" {
		return false
	}
	return strings.Contains(strings.ToLower(r.Answer.Text), strings.ToLower(r.Case.ExpectedSnippet))
}

func formatErr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func summarize(results []Result) Summary {
	sum := Summary{Total: len(results)}
	for _, r := range results {
		if r.Err != nil {
			sum.Errors++
			continue
		}
		if r.Answer.Grounded {
			sum.Grounded++
		} else {
			sum.Refused++
		}
		if r.Answer.Grounded == r.Case.InKB {
			sum.GateCorrect++
		}
		if snippetFound(r) {
			sum.SnippetHits++
		}
	}
	return sum
}
