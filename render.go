package nelgraph

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/brunobiangulo/nelgraph/graph"
	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/linker"
)

const rule = "=================================================="

// RenderResult prints the tagged mentions of res and, for each mention, the
// linked entity with its linked-entity tree. Every mention walks its tree
// with a fresh visited set, so a shared neighbour is printed under each.
func RenderResult(w io.Writer, k *kb.KB, res *Result) error {
	var b bytes.Buffer
	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, res.Text)
	fmt.Fprintln(&b, rule)

	fmt.Fprintln(&b, "=== NER ===")
	for _, m := range res.Mentions {
		fmt.Fprintf(&b, "Entity: %s, Label: %s\n", m.Text, m.Label)
	}

	links := make(map[int]linker.Link, len(res.Links))
	for _, l := range res.Links {
		links[l.Mention.Start] = l
	}

	fmt.Fprintln(&b, "=== NEL (Entity Linking) ===")
	for _, m := range res.Mentions {
		l, ok := links[m.Start]
		switch {
		case !ok:
			fmt.Fprintf(&b, "Entity: %s - no link found\n", m.Text)
		case k != nil && linker.IsLocal(l) && k.Has(l.EntityID):
			for _, row := range graph.LinkedTree(k, l.EntityID) {
				writeEntity(&b, row.Level, row.Entity.Name, row.Entity.Description, row.Entity.Wikipedia)
			}
		default:
			writeEntity(&b, 0, l.Name, l.Description, l.URL)
		}
	}

	_, err := w.Write(b.Bytes())
	return err
}

func writeEntity(b *bytes.Buffer, level int, name, description, url string) {
	indent := strings.Repeat("  ", level)
	fmt.Fprintf(b, "%sEntity: %s\n", indent, name)
	fmt.Fprintf(b, "%s  Description: %s\n", indent, description)
	fmt.Fprintf(b, "%s  Wikipedia: %s\n", indent, url)
}

// RenderReport prints every section of rep.
func RenderReport(w io.Writer, rep *graph.Report) error {
	var b bytes.Buffer

	fmt.Fprintln(&b, "=== Knowledge Graph ===")
	fmt.Fprintf(&b, "Nodes: %d, Edges: %d, Documents: %d\n", rep.Nodes, rep.Edges, rep.Documents)

	fmt.Fprintln(&b, "=== Co-occurrence ===")
	if len(rep.CoOccurrence) == 0 {
		fmt.Fprintln(&b, "(none)")
	}
	for _, p := range rep.CoOccurrence {
		fmt.Fprintf(&b, "%s - %s: %d\n", p.A, p.B, p.Count)
	}

	fmt.Fprintln(&b, "=== Description similarity (TF-IDF cosine) ===")
	writeScores(&b, rep.DescriptionSimilarity)

	direction := "directed"
	if rep.Undirected {
		direction = "undirected"
	}
	fmt.Fprintf(&b, "=== Shortest paths (%s) ===\n", direction)
	if len(rep.ShortestPaths) == 0 {
		fmt.Fprintln(&b, "(none)")
	}
	for _, p := range rep.ShortestPaths {
		fmt.Fprintf(&b, "%s -> %s: %d (%s)\n", p.From, p.To, p.Hops, strings.Join(p.Path, " > "))
	}

	fmt.Fprintln(&b, "=== PageRank ===")
	for _, r := range rep.PageRank {
		fmt.Fprintf(&b, "%s (%s): %.4f\n", r.Name, r.ID, r.Score)
	}

	if rep.EmbeddingSource == graph.EmbeddingProvider {
		fmt.Fprintln(&b, "=== Embedding similarity (model vectors) ===")
	} else {
		fmt.Fprintln(&b, "=== Simulated embedding similarity (random vectors, not a model) ===")
	}
	writeScores(&b, rep.EmbeddingSimilarity)

	_, err := w.Write(b.Bytes())
	return err
}

func writeScores(b *bytes.Buffer, ps []graph.PairScore) {
	if len(ps) == 0 {
		fmt.Fprintln(b, "(none)")
		return
	}
	for _, p := range ps {
		fmt.Fprintf(b, "%s - %s: %.3f\n", p.A, p.B, p.Score)
	}
}
