package graph

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/linker"
	"github.com/brunobiangulo/nelgraph/llm"
	"github.com/brunobiangulo/nelgraph/ner"
)

func builtinGraph(t *testing.T) (*KnowledgeGraph, *kb.KB) {
	t.Helper()
	k := kb.Builtin()
	return FromKB(k), k
}

// ---------------------------------------------------------------------------
// Assembly
// ---------------------------------------------------------------------------

func TestFromKB(t *testing.T) {
	kg, _ := builtinGraph(t)
	if kg.NodeCount() != 12 {
		t.Errorf("expected 12 nodes, got %d", kg.NodeCount())
	}
	if kg.EdgeCount() != 18 {
		t.Errorf("expected 18 linked edges, got %d", kg.EdgeCount())
	}
	if diff := cmp.Diff([]string{"Q2", "Q3", "Q4", "Q8", "Q10", "Q11", "Q12"}, kg.Successors("Q1")); diff != "" {
		t.Errorf("Q1 successors (-want +got):\n%s", diff)
	}
	if got := kg.Successors("Q4"); len(got) != 0 {
		t.Errorf("Q4 should have no successors, got %v", got)
	}
	n, ok := kg.Node("Q5")
	if !ok || n.Name != "Vladimir Putin" || n.Type != kb.TypePerson {
		t.Errorf("unexpected node %+v", n)
	}
}

func TestFromKBSkipsDanglingLinks(t *testing.T) {
	k, err := kb.New(
		kb.Entity{ID: "A", Name: "Alpha", Linked: []string{"B", "Z", "A"}},
		kb.Entity{ID: "B", Name: "Beta"},
	)
	if err != nil {
		t.Fatal(err)
	}
	kg := FromKB(k)
	if kg.NodeCount() != 2 || kg.EdgeCount() != 1 {
		t.Errorf("got %d nodes, %d edges", kg.NodeCount(), kg.EdgeCount())
	}
}

func TestAddRelationsMergesParallelEdges(t *testing.T) {
	kg, _ := builtinGraph(t)
	n := kg.AddRelations([]Relation{
		{Source: "Q1", Target: "Q12", Type: RelAcquired, Weight: 1},
		{Source: "Q1", Target: "Q12", Type: RelAcquired, Weight: 1},
		{Source: "Q5", Target: "Q5", Type: RelMetWith},
		{Source: "Q1", Target: "Q-new", Type: RelCoOccurs},
	})
	if n != 3 {
		t.Errorf("expected 3 applied relations, got %d", n)
	}

	e, ok := kg.Edge("Q1", "Q12")
	if !ok {
		t.Fatal("missing Q1->Q12")
	}
	if e.W != 3 {
		t.Errorf("expected merged weight 3, got %v", e.W)
	}
	if diff := cmp.Diff([]string{RelLinked, RelAcquired}, e.Types); diff != "" {
		t.Errorf("types (-want +got):\n%s", diff)
	}

	bare, ok := kg.Node("Q-new")
	if !ok || bare.Name != "" {
		t.Errorf("expected bare node for unknown id, got %+v ok=%v", bare, ok)
	}

	// A later AddEntity fills in the bare node.
	kg.AddEntity(kb.Entity{ID: "Q-new", Name: "Newco", Type: kb.TypeCompany})
	e, _ = kg.Edge("Q1", "Q-new")
	if e.T.Name != "Newco" {
		t.Errorf("edge endpoint not refreshed: %+v", e.T)
	}
}

// ---------------------------------------------------------------------------
// Relation rules
// ---------------------------------------------------------------------------

func link(id string, start, end int) linker.Link {
	return linker.Link{EntityID: id, Mention: ner.Mention{Start: start, End: end}}
}

func TestExtract(t *testing.T) {
	text := "Musk acquired Twitter. Musk met Putin and Musk again. Putin spoke. Trump and Obama."
	sentences := []ner.Sentence{
		{Text: "Musk acquired Twitter.", Start: 0, End: 22},
		{Text: "Musk met Putin and Musk again.", Start: 23, End: 53},
		{Text: "Putin spoke.", Start: 54, End: 66},
		{Text: "Trump and Obama.", Start: 67, End: 83},
	}
	if text[67:83] != "Trump and Obama." {
		t.Fatalf("fixture offsets drifted: %q", text[67:83])
	}
	links := []linker.Link{
		link("Q12", 14, 21), // out of order on purpose
		link("Q1", 0, 4),
		link("Q1", 23, 27),
		link("Q5", 32, 37),
		link("Q1", 42, 46),
		link("Q5", 54, 59),
		link("Q8", 67, 72),
		link("Q7", 77, 82),
	}

	got := Extract(sentences, links, nil)
	want := []Relation{
		{Source: "Q1", Target: "Q12", Type: RelAcquired, Weight: 1, Sentence: sentences[0].Text},
		{Source: "Q1", Target: "Q5", Type: RelMetWith, Weight: 1, Sentence: sentences[1].Text},
		{Source: "Q8", Target: "Q7", Type: RelCoOccurs, Weight: 1, Sentence: sentences[3].Text},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("relations (-want +got):\n%s", diff)
	}
}

func TestMatchRule(t *testing.T) {
	tests := []struct {
		sentence string
		want     string
		ok       bool
	}{
		{"Musk ACQUIRED Twitter", RelAcquired, true},
		{"SpaceX was founded by Musk", RelFounded, true},
		{"the billionaire owner of SpaceX", RelOwns, true},
		{"Putin is the leader of Russia", RelLeads, true},
		{"Elonn Mask and Vlademir Poutin met in the US", RelMetWith, true},
		{"The Wall Street Journal reported", RelReportedBy, true},
		{"nothing here", "", false},
	}
	for _, tt := range tests {
		got, ok := MatchRule(DefaultRules, tt.sentence)
		if got != tt.want || ok != tt.ok {
			t.Errorf("MatchRule(%q) = %q, %v; want %q, %v", tt.sentence, got, ok, tt.want, tt.ok)
		}
	}
}

// ---------------------------------------------------------------------------
// Metrics
// ---------------------------------------------------------------------------

func TestCountCoOccurrence(t *testing.T) {
	got := CountCoOccurrence([][]string{
		{"Q1", "Q5", "Q1", "Q4"},
		{"Q5", "Q1"},
		{"Q8"},
		nil,
	})
	want := []PairCount{
		{A: "Q1", B: "Q5", Count: 2},
		{A: "Q1", B: "Q4", Count: 1},
		{A: "Q4", B: "Q5", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("co-occurrence (-want +got):\n%s", diff)
	}
}

func TestDescriptionSimilarity(t *testing.T) {
	got, err := DescriptionSimilarity(kb.Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 {
		t.Fatal("expected similar description pairs")
	}
	for i, p := range got {
		if p.Score <= 0 || p.Score > 1+1e-9 {
			t.Errorf("score out of range: %+v", p)
		}
		if i > 0 && got[i-1].Score < p.Score {
			t.Errorf("not sorted at %d", i)
		}
	}

	var found bool
	for _, p := range got {
		if p.A == "Q2" && p.B == "Q3" {
			found = true
			if p.Score < 0.2 {
				t.Errorf("SpaceX/Tesla descriptions should be similar, got %f", p.Score)
			}
		}
	}
	if !found {
		t.Error("missing SpaceX/Tesla pair")
	}
}

func TestDescriptionSimilarityEmpty(t *testing.T) {
	k, _ := kb.New(kb.Entity{ID: "A", Name: "a"}, kb.Entity{ID: "B", Name: "b"})
	got, err := DescriptionSimilarity(k)
	if err != nil || got != nil {
		t.Errorf("got %v, %v", got, err)
	}
}

func findPath(ps []PathLength, from, to string) (PathLength, bool) {
	for _, p := range ps {
		if p.From == from && p.To == to {
			return p, true
		}
	}
	return PathLength{}, false
}

func TestShortestPathsDirected(t *testing.T) {
	kg, _ := builtinGraph(t)
	paths := ShortestPaths(kg, false)

	p, ok := findPath(paths, "Q12", "Q2")
	if !ok {
		t.Fatal("Q12 -> Q2 should be reachable")
	}
	if p.Hops != 2 {
		t.Errorf("expected 2 hops, got %d", p.Hops)
	}
	if diff := cmp.Diff([]string{"Q12", "Q1", "Q2"}, p.Path); diff != "" {
		t.Errorf("path (-want +got):\n%s", diff)
	}
	if p, ok := findPath(paths, "Q1", "Q4"); !ok || p.Hops != 1 {
		t.Errorf("Q1 -> Q4: %+v ok=%v", p, ok)
	}
	for _, p := range paths {
		if p.From == "Q4" {
			t.Errorf("Q4 has no outgoing edges, got %+v", p)
		}
	}
	if _, ok := findPath(paths, "Q5", "Q1"); ok {
		t.Error("Q5 -> Q1 should be unreachable")
	}
}

func TestShortestPathsUndirected(t *testing.T) {
	kg, _ := builtinGraph(t)
	paths := ShortestPaths(kg, true)

	if p, ok := findPath(paths, "Q7", "Q9"); !ok || p.Hops != 2 {
		t.Errorf("Q7 - Q9: %+v ok=%v", p, ok)
	}
	if p, ok := findPath(paths, "Q4", "Q1"); !ok || p.Hops != 1 {
		t.Errorf("Q4 - Q1: %+v ok=%v", p, ok)
	}
	if _, ok := findPath(paths, "Q6", "Q4"); ok {
		t.Error("Russia is disconnected from the USA component")
	}
}

func TestPageRank(t *testing.T) {
	kg, _ := builtinGraph(t)
	ranks := PageRank(kg)
	if len(ranks) != 12 {
		t.Fatalf("expected 12 ranks, got %d", len(ranks))
	}
	if ranks[0].ID != "Q4" || ranks[0].Name != "USA" {
		t.Errorf("expected USA to rank first, got %+v", ranks[0])
	}
	sum := 0.0
	for _, r := range ranks {
		sum += r.Score
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Errorf("ranks should sum to 1, got %f", sum)
	}
}

func TestSimulatedVector(t *testing.T) {
	a := SimulatedVector("Q1", 0)
	if len(a) != DefaultSimulatedDim {
		t.Fatalf("expected dim %d, got %d", DefaultSimulatedDim, len(a))
	}
	if diff := cmp.Diff(a, SimulatedVector("Q1", 64)); diff != "" {
		t.Error("vectors must be deterministic")
	}
	norm := 0.0
	for _, x := range a {
		norm += x * x
	}
	if math.Abs(norm-1) > 1e-9 {
		t.Errorf("expected unit vector, norm^2=%f", norm)
	}
	if cmp.Equal(a, SimulatedVector("Q2", 64)) {
		t.Error("different ids should give different vectors")
	}
}

func TestSimulatedSimilarity(t *testing.T) {
	ids := kb.Builtin().IDs()
	got := SimulatedSimilarity(ids, 16)
	if len(got) != len(ids)*(len(ids)-1)/2 {
		t.Errorf("expected every pair, got %d", len(got))
	}
	for _, p := range got {
		if p.Score < -1-1e-9 || p.Score > 1+1e-9 {
			t.Errorf("cosine out of range: %+v", p)
		}
	}
}

type fakeEmbedder struct {
	vecs [][]float32
	err  error
}

func (f *fakeEmbedder) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs, nil
}

func TestAnalyze(t *testing.T) {
	kg, k := builtinGraph(t)
	docs := [][]string{{"Q1", "Q5", "Q4"}, {"Q1", "Q5"}}

	rep, err := Analyze(context.Background(), kg, k, docs, Options{TopK: 3})
	if err != nil {
		t.Fatal(err)
	}
	if rep.Nodes != 12 || rep.Edges != 18 || rep.Documents != 2 {
		t.Errorf("unexpected header %+v", rep)
	}
	if rep.CoOccurrence[0] != (PairCount{A: "Q1", B: "Q5", Count: 2}) {
		t.Errorf("unexpected top pair %+v", rep.CoOccurrence[0])
	}
	if len(rep.DescriptionSimilarity) != 3 || len(rep.EmbeddingSimilarity) != 3 {
		t.Errorf("TopK not applied: %d, %d", len(rep.DescriptionSimilarity), len(rep.EmbeddingSimilarity))
	}
	if rep.EmbeddingSource != EmbeddingSimulated {
		t.Errorf("expected simulated embeddings, got %q", rep.EmbeddingSource)
	}
	if len(rep.PageRank) != 12 || len(rep.ShortestPaths) == 0 {
		t.Error("graph metrics missing")
	}
}

func TestAnalyzeWithEmbedder(t *testing.T) {
	k, _ := kb.New(
		kb.Entity{ID: "A", Name: "a", Description: "red apple"},
		kb.Entity{ID: "B", Name: "b", Description: "green apple"},
		kb.Entity{ID: "C", Name: "c", Description: "blue sky"},
	)
	kg := FromKB(k)
	emb := &fakeEmbedder{vecs: [][]float32{{1, 0}, {1, 0}, {0, 1}}}

	rep, err := Analyze(context.Background(), kg, k, nil, Options{Embedder: emb})
	if err != nil {
		t.Fatal(err)
	}
	if rep.EmbeddingSource != EmbeddingProvider {
		t.Errorf("expected provider embeddings, got %q", rep.EmbeddingSource)
	}
	top := rep.EmbeddingSimilarity[0]
	if top.A != "A" || top.B != "B" || math.Abs(top.Score-1) > 1e-9 {
		t.Errorf("unexpected top pair %+v", top)
	}

	emb.vecs = emb.vecs[:1]
	if _, err := Analyze(context.Background(), kg, k, nil, Options{Embedder: emb}); err == nil {
		t.Error("expected error on vector count mismatch")
	}
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

func TestLinkedTree(t *testing.T) {
	rows := LinkedTree(kb.Builtin(), "Q1")
	type row struct {
		ID    string
		Level int
	}
	var got []row
	for _, r := range rows {
		got = append(got, row{r.Entity.ID, r.Level})
	}
	want := []row{
		{"Q1", 0}, {"Q2", 1}, {"Q4", 2}, {"Q3", 1}, {"Q8", 1},
		{"Q9", 2}, {"Q10", 1}, {"Q11", 1}, {"Q12", 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tree (-want +got):\n%s", diff)
	}

	if rows := LinkedTree(kb.Builtin(), "Q404"); rows != nil {
		t.Errorf("unknown id should yield nothing, got %v", rows)
	}
}

func TestLinkedTreeSharedVisited(t *testing.T) {
	k := kb.Builtin()
	visited := make(map[string]bool)
	first := LinkedTreeVisited(k, "Q5", visited)
	second := LinkedTreeVisited(k, "Q6", visited)
	if len(first) != 2 || len(second) != 0 {
		t.Errorf("got %d then %d rows", len(first), len(second))
	}
}

func TestNeighbourhood(t *testing.T) {
	kg, _ := builtinGraph(t)
	tests := []struct {
		seeds []string
		depth int
		want  []string
	}{
		{[]string{"Q5"}, 1, []string{"Q5", "Q6"}},
		{[]string{"Q7"}, 0, []string{"Q7"}},
		{[]string{"Q7"}, 1, []string{"Q7", "Q4"}},
		{[]string{"Q7"}, 2, []string{"Q7", "Q4", "Q1", "Q2", "Q3", "Q8", "Q9", "Q10", "Q11", "Q12"}},
		{[]string{"nope"}, 3, nil},
		{nil, 1, nil},
	}
	for _, tt := range tests {
		got := Neighbourhood(kg, tt.seeds, tt.depth)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Neighbourhood(%v, %d) (-want +got):\n%s", tt.seeds, tt.depth, diff)
		}
	}
}

// ---------------------------------------------------------------------------
// Communities
// ---------------------------------------------------------------------------

func TestDetectCommunities(t *testing.T) {
	kg, _ := builtinGraph(t)
	cs := DetectCommunities(kg)

	var level0 [][]string
	members := make(map[string]int)
	for _, c := range cs {
		switch c.Level {
		case 0:
			level0 = append(level0, c.EntityIDs)
		case 1:
			for _, id := range c.EntityIDs {
				members[id]++
			}
		default:
			t.Errorf("unexpected level %d", c.Level)
		}
	}

	want := [][]string{
		{"Q1", "Q2", "Q3", "Q4", "Q7", "Q8", "Q9", "Q10", "Q11", "Q12"},
		{"Q5", "Q6"},
	}
	if diff := cmp.Diff(want, level0); diff != "" {
		t.Errorf("components (-want +got):\n%s", diff)
	}

	// Any level-1 split must partition the large component.
	if len(members) > 0 {
		for _, id := range want[0] {
			if members[id] != 1 {
				t.Errorf("%s appears %d times in level-1 communities", id, members[id])
			}
		}
		if len(members) != len(want[0]) {
			t.Errorf("level-1 communities cover %d ids, want %d", len(members), len(want[0]))
		}
	}
}

func TestDetectCommunitiesEmpty(t *testing.T) {
	if cs := DetectCommunities(New()); cs != nil {
		t.Errorf("expected nil, got %v", cs)
	}
}

// ---------------------------------------------------------------------------
// DOT
// ---------------------------------------------------------------------------

func TestWriteDOT(t *testing.T) {
	kg, _ := builtinGraph(t)
	var sb strings.Builder
	if err := WriteDOT(&sb, kg); err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	for _, want := range []string{
		"digraph " + DOTName,
		"Elon Musk",
		"#ff9999", // person
		"#99ccff", // company
		"#99ff99", // country
		DefaultColor,
		"filled",
		"Q1 -> Q2",
		"Q12 -> Q1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("DOT output missing %q", want)
		}
	}
}

func TestColorFor(t *testing.T) {
	if ColorFor(kb.TypeOrganization) != DefaultColor {
		t.Error("organizations use the default colour")
	}
	if ColorFor(kb.TypePerson) != "#ff9999" {
		t.Error("person colour")
	}
}
