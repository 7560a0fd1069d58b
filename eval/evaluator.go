package eval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/brunobiangulo/nelgraph"
	"github.com/brunobiangulo/nelgraph/linker"
)

// Processor is the part of nelgraph.Engine the evaluator needs.
type Processor interface {
	Process(ctx context.Context, text string, opts ...nelgraph.ProcessOption) (*nelgraph.Result, error)
}

// Evaluator runs annotated datasets through a pipeline and scores the
// tagging and linking stages.
type Evaluator struct {
	engine Processor
	runID  string
	// kbOnly drops links to ids outside the local KB before scoring.
	kbOnly bool
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(engine Processor) *Evaluator {
	return &Evaluator{engine: engine}
}

// SetRunID tags every processed document with the given run id.
func (e *Evaluator) SetRunID(id string) { e.runID = id }

// SetKBOnly makes scoring ignore remote (Wikidata) links.
func (e *Evaluator) SetKBOnly(v bool) { e.kbOnly = v }

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string                      `json:"dataset"`
	Difficulty      string                      `json:"difficulty,omitempty"`
	TotalTests      int                         `json:"total_tests"`
	Passed          int                         `json:"passed"`
	Failed          int                         `json:"failed"`
	Counts          Counts                      `json:"counts"`
	Metrics         AggregateMetrics            `json:"metrics"`
	CategoryMetrics map[string]AggregateMetrics `json:"category_metrics,omitempty"`
	Results         []TestResult                `json:"results"`
	RunTime         time.Duration               `json:"run_time"`
}

// AggregateMetrics holds micro-averaged scores.
type AggregateMetrics struct {
	MentionPrecision float64 `json:"mention_precision"`
	MentionRecall    float64 `json:"mention_recall"`
	MentionF1        float64 `json:"mention_f1"`
	LinkPrecision    float64 `json:"link_precision"`
	LinkRecall       float64 `json:"link_recall"`
	LinkF1           float64 `json:"link_f1"`
}

// TestResult holds the result of a single test case with diagnostics.
type TestResult struct {
	Text        string           `json:"text"`
	Expected    []ExpectedLink   `json:"expected"`
	Category    string           `json:"category,omitempty"`
	Explanation string           `json:"explanation,omitempty"`
	Tagger      string           `json:"tagger,omitempty"`
	DocumentID  int64            `json:"document_id,omitempty"`
	Counts      Counts           `json:"counts"`
	Metrics     AggregateMetrics `json:"metrics"`
	// Missed are gold links the pipeline did not produce.
	Missed []string `json:"missed,omitempty"`
	// Spurious are produced links with no gold counterpart.
	Spurious  []string `json:"spurious,omitempty"`
	Passed    bool     `json:"passed"`
	Error     string   `json:"error,omitempty"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// Run evaluates every test in the dataset. Per-test failures are recorded
// in the report; Run only returns an error when ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context, dataset Dataset) (*Report, error) {
	start := time.Now()
	report := &Report{
		Dataset:         dataset.Name,
		Difficulty:      dataset.Difficulty,
		TotalTests:      len(dataset.Tests),
		CategoryMetrics: make(map[string]AggregateMetrics),
	}
	catCounts := make(map[string]Counts)

	for i, test := range dataset.Tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result := e.runTest(ctx, test)
		report.Results = append(report.Results, result)

		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		if result.Error != "" {
			status = "ERROR"
		}
		slog.Info("eval: test complete",
			"progress", fmt.Sprintf("%d/%d", i+1, len(dataset.Tests)),
			"status", status,
			"link_f1", fmt.Sprintf("%.2f", result.Metrics.LinkF1),
			"elapsed_ms", result.ElapsedMs,
			"text", truncate(test.Text, 80))

		if result.Passed {
			report.Passed++
		} else {
			report.Failed++
		}

		// Errored tests would only add gold counts with nothing predicted.
		if result.Error != "" {
			continue
		}
		report.Counts.add(result.Counts)
		if test.Category != "" {
			c := catCounts[test.Category]
			c.add(result.Counts)
			catCounts[test.Category] = c
		}
	}

	report.Metrics = report.Counts.Metrics()
	for cat, c := range catCounts {
		report.CategoryMetrics[cat] = c.Metrics()
	}
	report.RunTime = time.Since(start)
	return report, nil
}

func (e *Evaluator) runTest(ctx context.Context, test TestCase) TestResult {
	testStart := time.Now()
	result := TestResult{
		Text:        test.Text,
		Expected:    test.Expected,
		Category:    test.Category,
		Explanation: test.Explanation,
	}

	var opts []nelgraph.ProcessOption
	if e.runID != "" {
		opts = append(opts, nelgraph.WithRunID(e.runID))
	}
	res, err := e.engine.Process(ctx, test.Text, append(opts, nelgraph.WithSource("eval"))...)
	if err != nil {
		result.Error = err.Error()
		result.ElapsedMs = time.Since(testStart).Milliseconds()
		return result
	}
	result.Tagger = res.Tagger
	result.DocumentID = res.DocumentID

	links := res.Links
	if e.kbOnly {
		links = linker.Local(links)
	}
	result.Counts, result.Missed = score(test.Expected, res.Mentions, links)
	result.Spurious = spurious(test.Expected, links)
	result.Metrics = result.Counts.Metrics()

	// A test passes when every gold link is produced and nothing else is.
	result.Passed = len(result.Missed) == 0 && len(result.Spurious) == 0
	result.ElapsedMs = time.Since(testStart).Milliseconds()
	return result
}

// FormatReport renders a report as plain text.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	if r.Difficulty != "" {
		fmt.Fprintf(&b, "Difficulty: %s\n", r.Difficulty)
	}
	fmt.Fprintf(&b, "Total: %d | Passed: %d (%.1f%%) | Failed: %d\n",
		r.TotalTests, r.Passed, passRate(r.Passed, r.TotalTests), r.Failed)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Aggregate Metrics:\n")
	fmt.Fprintf(&b, "  Mention P/R/F1:  %.2f / %.2f / %.2f  (%d/%d predicted, %d gold)\n",
		r.Metrics.MentionPrecision, r.Metrics.MentionRecall, r.Metrics.MentionF1,
		r.Counts.MentionTP, r.Counts.MentionPred, r.Counts.MentionGold)
	fmt.Fprintf(&b, "  Link P/R/F1:     %.2f / %.2f / %.2f  (%d/%d predicted, %d gold)\n\n",
		r.Metrics.LinkPrecision, r.Metrics.LinkRecall, r.Metrics.LinkF1,
		r.Counts.LinkTP, r.Counts.LinkPred, r.Counts.LinkGold)

	if len(r.CategoryMetrics) > 0 {
		cats := make([]string, 0, len(r.CategoryMetrics))
		for cat := range r.CategoryMetrics {
			cats = append(cats, cat)
		}
		sort.Strings(cats)

		fmt.Fprintf(&b, "Per-Category Metrics:\n")
		for _, cat := range cats {
			m := r.CategoryMetrics[cat]
			fmt.Fprintf(&b, "  [%s] MentionF1=%.2f LinkP=%.2f LinkR=%.2f LinkF1=%.2f\n",
				cat, m.MentionF1, m.LinkPrecision, m.LinkRecall, m.LinkF1)
		}
		fmt.Fprintln(&b)
	}

	for i, res := range r.Results {
		status := "PASS"
		if !res.Passed {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %d. %s\n", status, i+1, truncate(res.Text, 72))
		if res.Error != "" {
			fmt.Fprintf(&b, "  Error: %s\n", res.Error)
			continue
		}
		fmt.Fprintf(&b, "  MentionF1=%.2f LinkF1=%.2f  (%dms)\n",
			res.Metrics.MentionF1, res.Metrics.LinkF1, res.ElapsedMs)
		if len(res.Missed) > 0 {
			fmt.Fprintf(&b, "  Missed: %s\n", strings.Join(res.Missed, ", "))
		}
		if len(res.Spurious) > 0 {
			fmt.Fprintf(&b, "  Spurious: %s\n", strings.Join(res.Spurious, ", "))
		}
	}

	return b.String()
}

func passRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total) * 100
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
