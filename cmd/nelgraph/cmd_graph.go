package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nelgraph"
	"github.com/brunobiangulo/nelgraph/graph"
)

func newGraphCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Analyse and export the entity graph",
	}

	var outPath string
	dot := &cobra.Command{
		Use:   "dot",
		Short: "Print the graph in Graphviz DOT",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			if outPath != "" {
				return writeDOTFile(ctx, e, outPath)
			}
			return e.WriteDOT(ctx, cmd.OutOrStdout())
		},
	}
	dot.Flags().StringVarP(&outPath, "out", "o", "", "Write to a file instead of stdout")

	var (
		undirected bool
		topK       int
	)
	metrics := &cobra.Command{
		Use:   "metrics",
		Short: "Print co-occurrence, similarity, shortest-path and PageRank metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			rep, err := e.Analyze(ctx, graph.Options{Undirected: undirected, TopK: topK})
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			return nelgraph.RenderReport(cmd.OutOrStdout(), rep)
		},
	}
	metrics.Flags().BoolVar(&undirected, "undirected", false, "Measure shortest paths ignoring edge direction")
	metrics.Flags().IntVar(&topK, "top-k", graph.DefaultTopK, "Length of the similarity lists (negative for all)")

	communities := &cobra.Command{
		Use:   "communities",
		Short: "Detect and store entity communities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			comms, err := e.Communities(ctx)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), comms)
			}
			for _, c := range comms {
				fmt.Fprintf(cmd.OutOrStdout(), "level %d: %s\n", c.Level, strings.Join(c.EntityIDs, ", "))
			}
			return nil
		},
	}

	push := &cobra.Command{
		Use:   "push",
		Short: "Export the graph to Neo4j",
		Long: `Export the graph to Neo4j. Configure the connection with the neo4j section
of the config file or NELGRAPH_NEO4J_URI, NELGRAPH_NEO4J_USER and
NELGRAPH_NEO4J_PASSWORD.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			stats, err := e.Push(ctx)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pushed %d nodes and %d edges\n", stats.Nodes, stats.Edges)
			return nil
		},
	}

	var n int
	similar := &cobra.Command{
		Use:   "similar <id>",
		Short: "List the entities with the closest vectors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			neighbors, err := e.Similar(ctx, args[0], n)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), neighbors)
			}
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "SCORE")
			for _, nb := range neighbors {
				tw.row(nb.KBID, nb.Name, fmt.Sprintf("%.3f", nb.Score))
			}
			return tw.flush()
		},
	}
	similar.Flags().IntVarP(&n, "limit", "n", 5, "Number of neighbours")

	var depth int
	neighbours := &cobra.Command{
		Use:   "neighbours <id>",
		Short: "List the entities within a number of hops in the graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, ctx, cancel, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			defer e.Close()

			ids, err := e.Neighbours(ctx, args[0], depth)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				return printJSON(cmd.OutOrStdout(), ids)
			}
			k := e.KB()
			tw := newTable(cmd.OutOrStdout(), "ID", "NAME")
			for _, id := range ids {
				name := ""
				if ent, ok := k.Get(id); ok {
					name = ent.Name
				}
				tw.row(id, name)
			}
			return tw.flush()
		},
	}
	neighbours.Flags().IntVarP(&depth, "depth", "d", 1, "Number of hops")

	cmd.AddCommand(dot, metrics, communities, push, similar, neighbours)
	return cmd
}
