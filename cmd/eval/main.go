// Command eval scores the tagging and linking stages against annotated
// datasets.
//
// Builtin datasets:
//
//	go run ./cmd/eval --difficulty all
//
// A custom dataset with the LLM tagger:
//
//	go run ./cmd/eval \
//	  --dataset ./testdata/people.yaml \
//	  --tagger llm \
//	  --chat-provider groq --chat-model openai/gpt-oss-120b
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/nelgraph"
	"github.com/brunobiangulo/nelgraph/eval"
)

func main() {
	var (
		configPath   = flag.String("config", "", "Path to a JSON or YAML config file")
		datasetPath  = flag.String("dataset", "", "Path to a JSON or YAML dataset (default: builtin datasets)")
		difficulty   = flag.String("difficulty", "all", "Builtin difficulty to run: easy, medium, hard, all")
		dbPath       = flag.String("db", "", "Path to SQLite database (default: inside run directory)")
		tagger       = flag.String("tagger", "", "Tagger: gazetteer, prose, llm (default: from config)")
		wikidata     = flag.Bool("wikidata", false, "Fall back to Wikidata for unresolved mentions")
		kbOnly       = flag.Bool("kb-only", false, "Ignore Wikidata links when scoring")
		chatProvider = flag.String("chat-provider", "", "Chat LLM provider for the llm tagger")
		chatModel    = flag.String("chat-model", "", "Chat model name")
		chatBaseURL  = flag.String("chat-base-url", "", "Chat provider base URL override")
		outputFile   = flag.String("output", "", "Path to write JSON report (default: inside run directory)")
		runsDir      = flag.String("runs-dir", "eval-runs", "Directory for per-run output")
		verbose      = flag.Bool("v", false, "Log each test")
	)
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	var datasets []eval.Dataset
	if *datasetPath != "" {
		ds, err := eval.LoadDataset(*datasetPath)
		if err != nil {
			log.Fatalf("loading dataset: %v", err)
		}
		datasets = []eval.Dataset{ds}
	} else {
		var err error
		datasets, err = eval.Datasets(strings.ToLower(*difficulty))
		if err != nil {
			log.Fatal(err)
		}
	}

	cfg := nelgraph.DefaultConfig()
	if *configPath != "" {
		loaded, err := nelgraph.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if *tagger != "" {
		cfg.Tagger = *tagger
	}
	if *wikidata {
		cfg.Wikidata.Enabled = true
	}
	if *chatProvider != "" {
		cfg.Chat.Provider = *chatProvider
	}
	if *chatModel != "" {
		cfg.Chat.Model = *chatModel
	}
	if *chatBaseURL != "" {
		cfg.Chat.BaseURL = *chatBaseURL
	}
	if cfg.Chat.APIKey == "" {
		switch cfg.Chat.Provider {
		case "openai":
			cfg.Chat.APIKey = os.Getenv("OPENAI_API_KEY")
		case "openrouter":
			cfg.Chat.APIKey = os.Getenv("OPENROUTER_API_KEY")
		case "groq":
			cfg.Chat.APIKey = os.Getenv("GROQ_API_KEY")
		case "gemini":
			cfg.Chat.APIKey = os.Getenv("GEMINI_API_KEY")
		}
	}

	// Each run gets its own directory so databases and reports never mix.
	runID := time.Now().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	runDir := filepath.Join(*runsDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		log.Fatalf("creating run directory: %v", err)
	}
	cfg.DBPath = *dbPath
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(runDir, "eval.db")
	}
	if *outputFile == "" {
		*outputFile = filepath.Join(runDir, "report.json")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	engine, err := nelgraph.NewWithContext(ctx, cfg)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}
	defer engine.Close()

	evaluator := eval.NewEvaluator(engine)
	evaluator.SetRunID(runID)
	evaluator.SetKBOnly(*kbOnly)

	var reports []*eval.Report
	failed := 0
	for _, ds := range datasets {
		rep, err := evaluator.Run(ctx, ds)
		if err != nil {
			log.Fatalf("running %s: %v", ds.Name, err)
		}
		reports = append(reports, rep)
		failed += rep.Failed
		fmt.Println(eval.FormatReport(rep))
	}

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		log.Fatalf("encoding report: %v", err)
	}
	if err := os.WriteFile(*outputFile, data, 0o644); err != nil {
		log.Fatalf("writing report: %v", err)
	}
	fmt.Printf("Report written to %s\n", *outputFile)

	if failed > 0 {
		engine.Close()
		os.Exit(1)
	}
}
