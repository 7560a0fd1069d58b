package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/nelgraph"
	"github.com/brunobiangulo/nelgraph/graph"
	"github.com/brunobiangulo/nelgraph/kb"
)

func newKBCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kb",
		Short: "Inspect and manage the knowledge base",
		Long: `Inspect and manage the knowledge base.

Subcommands:
  list    - List entities
  show    - Show one entity
  tree    - Show the linked-entity tree of an entity
  search  - Find index keys matching a term
  import  - Replace the knowledge base from a JSON, YAML or XLSX file
  export  - Write the knowledge base to a JSON, YAML or XLSX file`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List entities",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				e, _, cancel, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer cancel()
				defer e.Close()

				entities := e.KB().Entities()
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), entities)
				}
				tw := newTable(cmd.OutOrStdout(), "ID", "NAME", "TYPE", "ALIASES")
				for _, ent := range entities {
					tw.row(ent.ID, ent.Name, ent.Type, strings.Join(ent.Aliases, ", "))
				}
				return tw.flush()
			},
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Show one entity",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, _, cancel, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer cancel()
				defer e.Close()

				ent, ok := e.KB().Get(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", nelgraph.ErrEntityNotFound, args[0])
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), ent)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID: %s\n", ent.ID)
				fmt.Fprintf(out, "Name: %s\n", ent.Name)
				fmt.Fprintf(out, "Type: %s\n", ent.Type)
				fmt.Fprintf(out, "Aliases: %s\n", strings.Join(ent.Aliases, ", "))
				fmt.Fprintf(out, "Description: %s\n", ent.Description)
				fmt.Fprintf(out, "Wikipedia: %s\n", ent.Wikipedia)
				fmt.Fprintf(out, "Linked: %s\n", strings.Join(ent.Linked, ", "))
				return nil
			},
		},
		&cobra.Command{
			Use:   "tree <id>",
			Short: "Show the linked-entity tree of an entity",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, _, cancel, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer cancel()
				defer e.Close()

				rows := graph.LinkedTree(e.KB(), args[0])
				if len(rows) == 0 {
					return fmt.Errorf("%w: %s", nelgraph.ErrEntityNotFound, args[0])
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), rows)
				}
				for _, r := range rows {
					fmt.Fprintf(cmd.OutOrStdout(), "%s%s (%s)\n", strings.Repeat("  ", r.Level), r.Entity.Name, r.Entity.ID)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "search <term>",
			Short: "Find index keys matching a term",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, ctx, cancel, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer cancel()
				defer e.Close()

				type hit struct {
					Key      string `json:"key"`
					EntityID string `json:"entity_id"`
				}
				var hits []hit
				for _, key := range e.Suggest(strings.Join(args, " "), 10) {
					l, err := e.Resolve(ctx, key)
					if err != nil {
						continue
					}
					hits = append(hits, hit{Key: key, EntityID: l.EntityID})
				}
				if opts.jsonOut {
					return printJSON(cmd.OutOrStdout(), hits)
				}
				for _, h := range hits {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", h.EntityID, h.Key)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Replace the knowledge base from a JSON, YAML or XLSX file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, ctx, cancel, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer cancel()
				defer e.Close()

				n, err := e.ImportKB(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d entities\n", n)
				return nil
			},
		},
		&cobra.Command{
			Use:   "export <file>",
			Short: "Write the knowledge base to a JSON, YAML or XLSX file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				e, _, cancel, err := opts.open(cmd)
				if err != nil {
					return err
				}
				defer cancel()
				defer e.Close()

				k := e.KB()
				if err := kb.SaveFile(args[0], k); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d entities to %s\n", k.Len(), args[0])
				return nil
			},
		},
	)
	return cmd
}
