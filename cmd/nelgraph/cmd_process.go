package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nelgraph"
	"github.com/brunobiangulo/nelgraph/graph"
)

func newDemoCmd(opts *options) *cobra.Command {
	var (
		dotPath    string
		undirected bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Process the sample texts and print the graph report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			out := cmd.OutOrStdout()
			var results []*nelgraph.Result
			for i, text := range nelgraph.DemoTexts() {
				res, err := e.Process(ctx, text, nelgraph.WithSource(fmt.Sprintf("demo-%d", i+1)))
				if err != nil {
					return err
				}
				results = append(results, res)
				if !opts.jsonOut {
					if err := nelgraph.RenderResult(out, e.KB(), res); err != nil {
						return err
					}
				}
			}

			rep, err := e.Analyze(ctx, graph.Options{Undirected: undirected})
			if err != nil {
				return err
			}

			if dotPath != "" {
				if err := writeDOTFile(ctx, e, dotPath); err != nil {
					return err
				}
			}

			if opts.jsonOut {
				return printJSON(out, map[string]interface{}{
					"results": results,
					"report":  rep,
				})
			}
			return nelgraph.RenderReport(out, rep)
		},
	}
	cmd.Flags().StringVar(&dotPath, "dot", "", "Also write the graph in Graphviz DOT to this file")
	cmd.Flags().BoolVar(&undirected, "undirected", false, "Measure shortest paths ignoring edge direction")
	return cmd
}

func newProcessCmd(opts *options) *cobra.Command {
	var (
		file  string
		runID string
	)
	cmd := &cobra.Command{
		Use:   "process [text...]",
		Short: "Tag, link and store a text",
		Long: `Tag, link and store a text given as arguments, with --file, or on stdin.

Files may be .txt, .md, .pdf or .xlsx.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" && len(args) > 0 {
				return errors.New("give either text arguments or --file, not both")
			}

			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			var popts []nelgraph.ProcessOption
			if runID != "" {
				popts = append(popts, nelgraph.WithRunID(runID))
			}

			var res *nelgraph.Result
			switch {
			case file != "":
				res, err = e.ProcessFile(ctx, file, popts...)
			case len(args) > 0:
				res, err = e.Process(ctx, strings.Join(args, " "), append(popts, nelgraph.WithSource("args"))...)
			default:
				b, rerr := io.ReadAll(cmd.InOrStdin())
				if rerr != nil {
					return fmt.Errorf("reading stdin: %w", rerr)
				}
				res, err = e.Process(ctx, string(b), append(popts, nelgraph.WithSource("stdin"))...)
			}
			if err != nil {
				return err
			}

			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return nelgraph.RenderResult(cmd.OutOrStdout(), e.KB(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the text from a file")
	cmd.Flags().StringVar(&runID, "run-id", "", "Group this text with others under a run id")
	return cmd
}

func newLinkCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "link <name...>",
		Short: "Resolve names to entities",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			out := cmd.OutOrStdout()
			missing := 0
			for _, name := range args {
				l, err := e.Resolve(ctx, name)
				if errors.Is(err, nelgraph.ErrEntityNotFound) {
					missing++
					if opts.jsonOut {
						if err := printJSON(out, map[string]interface{}{"name": name, "suggestions": e.Suggest(name, 5)}); err != nil {
							return err
						}
						continue
					}
					fmt.Fprintf(out, "Entity: %s - no link found\n", name)
					if s := e.Suggest(name, 5); len(s) > 0 {
						fmt.Fprintf(out, "  Did you mean: %s\n", strings.Join(s, ", "))
					}
					continue
				}
				if err != nil {
					return err
				}
				if opts.jsonOut {
					if err := printJSON(out, l); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintf(out, "%s -> %s %s (%s, %.0f)\n", name, l.EntityID, l.Name, l.Method, l.Score)
				fmt.Fprintf(out, "  Description: %s\n", l.Description)
				fmt.Fprintf(out, "  Wikipedia: %s\n", l.URL)
			}
			if missing == len(args) {
				return nelgraph.ErrEntityNotFound
			}
			return nil
		},
	}
}

func newDocsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "docs",
		Short: "List processed texts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			docs, err := e.Documents(ctx)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), docs)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "SOURCE", "TAGGER", "RUN", "CREATED")
			for _, d := range docs {
				tw.row(d.ID, d.Source, d.Tagger, d.RunID, d.CreatedAt)
			}
			return tw.flush()
		},
	}
}

// writeDOTFile writes the graph to path.
func writeDOTFile(ctx context.Context, e nelgraph.Engine, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.WriteDOT(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
