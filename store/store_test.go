//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/brunobiangulo/nelgraph/kb"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != len(migrations) {
		t.Errorf("schema version = %d, want %d", v, len(migrations))
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsSchemaVersion(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	for i := 0; i < 2; i++ {
		s, err := New(dbPath, 4)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		s.Close()
	}
}

func TestNewRejectsBadDim(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "x.db"), 0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

// ---------------------------------------------------------------------------
// Knowledge base
// ---------------------------------------------------------------------------

func TestSaveAndLoadKB(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LoadKB(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	want := kb.Builtin()
	if err := s.SaveKB(ctx, want); err != nil {
		t.Fatalf("saving kb: %v", err)
	}
	got, err := s.LoadKB(ctx)
	if err != nil {
		t.Fatalf("loading kb: %v", err)
	}
	if diff := cmp.Diff(want.Entities(), got.Entities(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("kb mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveKBReplacesStaleEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveKB(ctx, kb.Builtin()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEmbedding(ctx, "Q7", []float32{1, 0, 0, 0}); err != nil {
		t.Fatal(err)
	}

	small, err := kb.New(
		kb.Entity{ID: "Q1", Name: "Elon Musk", Aliases: []string{"Musk"}, Linked: []string{"Q99"}},
		kb.Entity{ID: "Q5", Name: "Vladimir Putin"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveKB(ctx, small); err != nil {
		t.Fatalf("saving smaller kb: %v", err)
	}
	got, err := s.LoadKB(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Q1", "Q5"}, got.IDs()); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	q1, _ := got.Get("Q1")
	if diff := cmp.Diff([]string{"Musk"}, q1.Aliases); diff != "" {
		t.Errorf("aliases not replaced: %s", diff)
	}
	if diff := cmp.Diff([]string{"Q99"}, q1.Linked); diff != "" {
		t.Errorf("dangling link not preserved: %s", diff)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entities != 2 || stats.Embeddings != 0 {
		t.Errorf("stale rows left behind: %+v", stats)
	}
}

// ---------------------------------------------------------------------------
// Embeddings
// ---------------------------------------------------------------------------

func TestNearestEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveKB(ctx, kb.Builtin()); err != nil {
		t.Fatal(err)
	}

	vecs := map[string][]float32{
		"Q1": {1, 0, 0, 0},
		"Q2": {0.9, 0.1, 0, 0},
		"Q5": {0, 1, 0, 0},
		"Q6": {0, 0, 1, 0},
	}
	for id, v := range vecs {
		if err := s.UpsertEmbedding(ctx, id, v); err != nil {
			t.Fatalf("upserting %s: %v", id, err)
		}
	}
	// Replacing a vector must not duplicate the row.
	if err := s.UpsertEmbedding(ctx, "Q6", []float32{0, 0, 0, 1}); err != nil {
		t.Fatal(err)
	}

	got, err := s.NearestEntities(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("searching: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbours, got %d", len(got))
	}
	if got[0].KBID != "Q1" || got[1].KBID != "Q2" {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[0].Score < 0.99 {
		t.Errorf("identical vector should score ~1, got %f", got[0].Score)
	}
	if got[0].Name != "Elon Musk" {
		t.Errorf("name not joined: %+v", got[0])
	}

	stats, _ := s.Stats(ctx)
	if stats.Embeddings != 4 {
		t.Errorf("expected 4 vectors, got %d", stats.Embeddings)
	}
}

func TestUpsertEmbeddingErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.SaveKB(ctx, kb.Builtin()); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertEmbedding(ctx, "Q1", []float32{1, 2}); err == nil {
		t.Error("expected dimension error")
	}
	if err := s.UpsertEmbedding(ctx, "Q404", []float32{1, 0, 0, 0}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Documents and mentions
// ---------------------------------------------------------------------------

func TestInsertDocumentDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{RunID: "run-1", Source: "demo", Content: "Musk met Putin.", Tagger: "gazetteer"}
	id1, created, err := s.InsertDocument(ctx, doc)
	if err != nil || !created || id1 == 0 {
		t.Fatalf("first insert: id=%d created=%v err=%v", id1, created, err)
	}
	doc.RunID = "run-2"
	id2, created, err := s.InsertDocument(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if created || id2 != id1 {
		t.Errorf("duplicate text created a new row: id=%d created=%v", id2, created)
	}

	got, err := s.GetDocument(ctx, id1)
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != doc.Content || got.RunID != "run-1" || got.ContentHash != ContentHash(doc.Content) {
		t.Errorf("unexpected document %+v", got)
	}

	if _, err := s.GetDocument(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMentionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.InsertDocument(ctx, Document{Content: "Elonn Mask met nobody"})
	if err != nil {
		t.Fatal(err)
	}
	ms := []Mention{
		{Text: "Elonn Mask", Label: "PERSON", Start: 0, End: 10, KBID: "Q1", Score: 84.2, Method: "fuzzy"},
		{Text: "nobody", Label: "PERSON", Start: 15, End: 21},
	}
	if err := s.ReplaceMentions(ctx, id, ms); err != nil {
		t.Fatal(err)
	}
	// Replacing is idempotent.
	if err := s.ReplaceMentions(ctx, id, ms); err != nil {
		t.Fatal(err)
	}

	got, err := s.DocumentMentions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ms, got, cmpopts.IgnoreFields(Mention{}, "ID", "DocumentID")); diff != "" {
		t.Errorf("mentions mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveProcessed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := Document{RunID: "run-1", Content: "Musk met Putin."}
	ms := []Mention{
		{Text: "Musk", Label: "PERSON", Start: 0, End: 4, KBID: "Q1", Score: 100, Method: "exact"},
		{Text: "Putin", Label: "PERSON", Start: 9, End: 14, KBID: "Q5", Score: 100, Method: "exact"},
	}
	rels := []Relationship{{SourceKBID: "Q1", TargetKBID: "Q5", RelationType: "met_with"}}

	id, created, err := s.SaveProcessed(ctx, doc, ms, rels)
	if err != nil || !created {
		t.Fatalf("SaveProcessed: id=%d created=%v err=%v", id, created, err)
	}
	again, created, err := s.SaveProcessed(ctx, doc, ms[:1], nil)
	if err != nil || created || again != id {
		t.Fatalf("SaveProcessed(dup): id=%d created=%v err=%v", again, created, err)
	}
	got, err := s.DocumentMentions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("mentions = %d, want 1 after replace", len(got))
	}
	all, err := s.AllRelationships(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Errorf("relationships = %d, want 0 after replace", len(all))
	}
}

func TestSaveProcessedRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ms := []Mention{{Text: "Musk", Label: "PERSON", Start: 0, End: 4, KBID: "Q1"}}
	bad := []Relationship{{SourceKBID: "Q1", RelationType: "met_with"}}
	if _, _, err := s.SaveProcessed(ctx, Document{Content: "Musk alone."}, ms, bad); err == nil {
		t.Fatal("expected error for relationship without target")
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 0 {
		t.Errorf("documents = %+v, want none after rollback", docs)
	}
	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM mentions").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("mentions = %d, want 0 after rollback", n)
	}

	// A failed reprocess keeps the earlier mentions.
	id, _, err := s.SaveProcessed(ctx, Document{Content: "Musk alone."}, ms, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.SaveProcessed(ctx, Document{Content: "Musk alone."}, nil, bad); err == nil {
		t.Fatal("expected error on reprocess")
	}
	got, err := s.DocumentMentions(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("mentions = %d, want the original 1", len(got))
	}
}

func seedMentions(t *testing.T, s *Store, docs ...[]string) {
	t.Helper()
	ctx := context.Background()
	for i, ids := range docs {
		docID, _, err := s.InsertDocument(ctx, Document{Content: "doc " + string(rune('a'+i))})
		if err != nil {
			t.Fatal(err)
		}
		var ms []Mention
		for j, id := range ids {
			ms = append(ms, Mention{Text: id, Label: "X", Start: j, End: j + 1, KBID: id})
		}
		if err := s.ReplaceMentions(ctx, docID, ms); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCoOccurrence(t *testing.T) {
	s := newTestStore(t)
	seedMentions(t, s,
		[]string{"Q1", "Q5", "Q1", "Q4"},
		[]string{"Q5", "Q1"},
		[]string{"Q8"},
	)

	got, err := s.CoOccurrence(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []PairCount{
		{A: "Q1", B: "Q5", Count: 2},
		{A: "Q1", B: "Q4", Count: 1},
		{A: "Q4", B: "Q5", Count: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("co-occurrence mismatch (-want +got):\n%s", diff)
	}
}

func TestDocumentEntities(t *testing.T) {
	s := newTestStore(t)
	seedMentions(t, s,
		[]string{"Q5", "Q1", "Q5"},
		[]string{"Q8"},
	)
	got, err := s.DocumentEntities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"Q5", "Q1"}, {"Q8"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedMentions(t, s, []string{"Q1", "Q5"})
	if err := s.ReplaceRelationships(ctx, 1, []Relationship{{SourceKBID: "Q1", TargetKBID: "Q5", RelationType: "met_with"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteDocument(ctx, 1); err != nil {
		t.Fatal(err)
	}
	stats, _ := s.Stats(ctx)
	if stats.Documents != 0 || stats.Mentions != 0 || stats.Relationships != 0 {
		t.Errorf("cascade incomplete: %+v", stats)
	}
	if err := s.DeleteDocument(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Relationships and communities
// ---------------------------------------------------------------------------

func TestRelationships(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	docID, _, _ := s.InsertDocument(ctx, Document{Content: "Musk acquired Twitter."})

	rels := []Relationship{
		{SourceKBID: "Q1", TargetKBID: "Q12", RelationType: "acquired", Sentence: "Musk acquired Twitter."},
		{SourceKBID: "Q1", TargetKBID: "Q4", RelationType: "co_occurs", Weight: 2},
	}
	if err := s.ReplaceRelationships(ctx, docID, rels); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceRelationships(ctx, docID, rels[:1]); err != nil {
		t.Fatal(err)
	}
	got, err := s.AllRelationships(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 relationship after replace, got %d", len(got))
	}
	if got[0].Weight != 1 || got[0].RelationType != "acquired" || got[0].DocumentID != docID {
		t.Errorf("unexpected relationship %+v", got[0])
	}
}

func TestCommunities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cs := []Community{
		{Level: 1, EntityIDs: []string{"Q5", "Q6"}},
		{Level: 0, EntityIDs: []string{"Q1", "Q2", "Q4"}},
	}
	if err := s.ReplaceCommunities(ctx, cs); err != nil {
		t.Fatal(err)
	}
	if err := s.ReplaceCommunities(ctx, cs); err != nil {
		t.Fatal(err)
	}
	got, err := s.Communities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []Community{cs[1], cs[0]}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Community{}, "ID")); diff != "" {
		t.Errorf("communities mismatch (-want +got):\n%s", diff)
	}
}

// ---------------------------------------------------------------------------
// SPARQL cache
// ---------------------------------------------------------------------------

func TestSPARQLCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := s.SPARQLCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := c.Set(ctx, "k", []byte(`{"x":1}`), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "k", []byte(`{"x":2}`), time.Hour); err != nil {
		t.Fatal(err)
	}
	body, ok := c.Get(ctx, "k")
	if !ok || string(body) != `{"x":2}` {
		t.Fatalf("got %q ok=%v", body, ok)
	}

	now = now.Add(2 * time.Hour)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("expected expired entry to miss")
	}
	n, err := c.Purge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("purge removed %d (err %v)", n, err)
	}
}
