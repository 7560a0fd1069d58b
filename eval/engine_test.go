//go:build cgo

package eval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/nelgraph"
)

func TestEvaluatorAgainstEngine(t *testing.T) {
	cfg := nelgraph.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "eval.db")
	e, err := nelgraph.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Close()

	ds := Dataset{
		Name: "smoke",
		Tests: []TestCase{
			{
				Text:     nelgraph.DemoTexts()[0],
				Expected: []ExpectedLink{{"Elonn Mask", "Q1"}, {"Vlademir Poutin", "Q5"}, {"US", "Q4"}},
				Category: "misspelled",
			},
			{
				Text:     "Obama met Trump.",
				Expected: []ExpectedLink{{"Obama", "Q7"}, {"Trump", "Q8"}},
				Category: "alias",
			},
		},
	}

	rep, err := NewEvaluator(e).Run(context.Background(), ds)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Passed != 2 {
		t.Fatalf("passed = %d, want 2\n%s", rep.Passed, FormatReport(rep))
	}
	if rep.Metrics.LinkF1 != 1 {
		t.Errorf("LinkF1 = %v, want 1", rep.Metrics.LinkF1)
	}

	docs, err := e.Documents(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Errorf("documents = %d, want 2", len(docs))
	}
}
