package export

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobiangulo/nelgraph/graph"
	"github.com/brunobiangulo/nelgraph/kb"
)

func TestNewNeo4jSinkDisabled(t *testing.T) {
	for _, uri := range []string{"", "   "} {
		s, err := NewNeo4jSink(context.Background(), Config{URI: uri})
		if err != nil || s != nil {
			t.Errorf("URI %q: expected nil sink, got %v, %v", uri, s, err)
		}
	}
}

func TestNewNeo4jSinkBadURI(t *testing.T) {
	if _, err := NewNeo4jSink(context.Background(), Config{URI: "ftp://nowhere"}); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestCloseNilSink(t *testing.T) {
	var s *Neo4jSink
	if err := s.Close(context.Background()); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestRows(t *testing.T) {
	k := kb.Builtin()
	kg := graph.FromKB(k)
	kg.AddRelation(graph.Relation{Source: "Q5", Target: "Q99", Type: graph.RelMetWith})

	nodes := nodeRows(k, kg)
	if len(nodes) != 13 {
		t.Fatalf("expected 13 nodes, got %d", len(nodes))
	}
	if nodes[0]["id"] != "Q1" || nodes[0]["color"] != "#ff9999" || nodes[0]["wikipedia"] != "https://en.wikipedia.org/wiki/Elon_Musk" {
		t.Errorf("unexpected first node %v", nodes[0])
	}
	if _, ok := nodes[12]["description"]; ok {
		t.Errorf("bare node should carry no kb properties: %v", nodes[12])
	}

	edges := edgeRows(kg)
	if len(edges) != 19 {
		t.Fatalf("expected 19 edges, got %d", len(edges))
	}
	want := map[string]any{
		"source": "Q1",
		"target": "Q2",
		"type":   graph.RelLinked,
		"types":  []string{graph.RelLinked},
		"weight": 1.0,
	}
	if diff := cmp.Diff(want, edges[0]); diff != "" {
		t.Errorf("first edge (-want +got):\n%s", diff)
	}
}
