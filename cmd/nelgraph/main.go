// Command nelgraph tags and links entities in text and analyses the entity
// graph from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/brunobiangulo/nelgraph"
)

// options holds the global flags and the state derived from them.
type options struct {
	configPath string
	dbPath     string
	tagger     string
	wikidata   bool
	logLevel   string
	logFile    string
	jsonOut    bool
	timeout    time.Duration

	cfg     nelgraph.Config
	logSink io.Closer
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&options{})
}

func buildRootCmd(opts *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "nelgraph",
		Short: "Named-entity recognition, linking and entity-graph analytics",
		Long: `nelgraph finds people, companies and countries in text, links them to a
knowledge base (and optionally Wikidata) and analyses the resulting graph.

Run "nelgraph demo" to process the two sample texts.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logSink != nil {
				return opts.logSink.Close()
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.configPath, "config", "", "Path to config file (JSON or YAML)")
	f.StringVar(&opts.dbPath, "db", "", "Database file (default ~/.nelgraph/nelgraph.db)")
	f.StringVar(&opts.tagger, "tagger", "", "Tagger: gazetteer, prose or llm")
	f.BoolVar(&opts.wikidata, "wikidata", false, "Fall back to Wikidata for names missing from the knowledge base")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&opts.logFile, "log-file", "", "Write logs to a rotated file instead of stderr")
	f.BoolVar(&opts.jsonOut, "json", false, "Print JSON instead of text")
	f.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "Operation timeout")

	root.AddCommand(
		newDemoCmd(opts),
		newProcessCmd(opts),
		newLinkCmd(opts),
		newDocsCmd(opts),
		newKBCmd(opts),
		newGraphCmd(opts),
	)
	return root
}

// setup loads the configuration, applies environment and flag overrides and
// installs the logger.
func (o *options) setup(cmd *cobra.Command) error {
	cfg := nelgraph.DefaultConfig()
	if o.configPath != "" {
		loaded, err := nelgraph.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath = o.dbPath
	}
	if flags.Changed("tagger") {
		cfg.Tagger = o.tagger
	}
	if flags.Changed("wikidata") {
		cfg.Wikidata.Enabled = o.wikidata
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if flags.Changed("log-file") {
		cfg.Log.File = o.logFile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg

	var w io.Writer = cmd.ErrOrStderr()
	if cfg.Log.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		o.logSink = lj
		w = lj
	}
	slog.SetDefault(slog.New(newLogHandler(w, cfg.Log)))
	return nil
}

func newLogHandler(w io.Writer, cfg nelgraph.LogConfig) slog.Handler {
	ho := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, ho)
	}
	return slog.NewTextHandler(w, ho)
}

// parseLevel maps a level name to slog. The CLI defaults to warn so logs do
// not interleave with command output.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// open creates the engine and a context bounded by --timeout.
func (o *options) open(cmd *cobra.Command) (nelgraph.Engine, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
	e, err := nelgraph.NewWithContext(ctx, o.cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return e, ctx, cancel, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
