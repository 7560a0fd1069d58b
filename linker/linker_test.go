package linker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/ner"
	"github.com/brunobiangulo/nelgraph/sparql"
)

func TestIndexResolver(t *testing.T) {
	r := NewIndexResolver(kb.Builtin(), 0)
	tests := []struct {
		name       string
		wantID     string
		wantMethod string
	}{
		{"Elon Musk", "Q1", MethodExact},
		{"Musk", "Q1", MethodExact},
		{"US", "Q4", MethodExact},
		{"Elonn Mask", "Q1", MethodFuzzy},
		{"Vlademir Poutin", "Q5", MethodFuzzy},
		{"Russian", "Q6", MethodFuzzy},
		{"twitter", "Q12", MethodFuzzy},
		{"Angela Merkel", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := r.Resolve(context.Background(), tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if tt.wantID == "" {
				if l != nil {
					t.Fatalf("expected no link, got %+v", l)
				}
				return
			}
			if l == nil {
				t.Fatal("expected a link")
			}
			if l.EntityID != tt.wantID || l.Method != tt.wantMethod {
				t.Errorf("got %s via %s, want %s via %s", l.EntityID, l.Method, tt.wantID, tt.wantMethod)
			}
			if l.Method == MethodExact && l.Score != 100 {
				t.Errorf("exact score = %v", l.Score)
			}
			if l.Method == MethodFuzzy && l.Score < DefaultCutoff {
				t.Errorf("fuzzy score %v below cutoff", l.Score)
			}
		})
	}
}

func TestIndexResolverCarriesEntityFields(t *testing.T) {
	r := NewIndexResolver(kb.Builtin(), 80)
	l, err := r.Resolve(context.Background(), "Putin")
	if err != nil || l == nil {
		t.Fatalf("resolve: %v %v", l, err)
	}
	want := Link{
		EntityID:    "Q5",
		Name:        "Vladimir Putin",
		Description: "President of Russia.",
		URL:         "https://en.wikipedia.org/wiki/Vladimir_Putin",
		Score:       100,
		Method:      MethodExact,
		Key:         "Putin",
	}
	if diff := cmp.Diff(want, *l); diff != "" {
		t.Errorf("link mismatch (-want +got):\n%s", diff)
	}
}

func TestSuggest(t *testing.T) {
	r := NewIndexResolver(kb.Builtin(), 0)
	got := r.Suggest("trmp", 3)
	if len(got) == 0 {
		t.Fatal("expected suggestions")
	}
	for _, s := range got {
		if s != "Trump" && s != "Donald Trump" && s != "Donald J. Trump" {
			t.Errorf("unexpected suggestion %q", s)
		}
	}
	if got := r.Suggest("zzzz", 3); len(got) != 0 {
		t.Errorf("expected none, got %v", got)
	}
}

type stubResolver struct {
	link  *Link
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, name string) (*Link, error) {
	s.calls++
	return s.link, s.err
}

func TestChainResolver(t *testing.T) {
	miss := &stubResolver{}
	hit := &stubResolver{link: &Link{EntityID: "Q9"}}
	never := &stubResolver{link: &Link{EntityID: "Q10"}}

	l, err := ChainResolver{miss, nil, hit, never}.Resolve(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if l.EntityID != "Q9" || never.calls != 0 {
		t.Errorf("got %+v, later resolver called %d times", l, never.calls)
	}

	boom := &stubResolver{err: errors.New("boom")}
	if _, err := (ChainResolver{boom, hit}).Resolve(context.Background(), "x"); err == nil {
		t.Fatal("expected error to stop the chain")
	}
}

func TestLinkAllPreservesOrder(t *testing.T) {
	r := NewIndexResolver(kb.Builtin(), 0)
	mentions := []ner.Mention{
		{Text: "Elonn Mask", Label: ner.LabelPerson, Start: 0, End: 10},
		{Text: "Nobody", Label: ner.LabelPerson, Start: 11, End: 17},
		{Text: "Vlademir Poutin", Label: ner.LabelPerson, Start: 18, End: 33},
		{Text: "US", Label: ner.LabelGPE, Start: 40, End: 42},
	}
	out, err := LinkAll(context.Background(), r, mentions, 2)
	if err != nil {
		t.Fatal(err)
	}
	links, unlinked := Split(out)
	var ids []string
	for _, l := range links {
		ids = append(ids, l.EntityID)
	}
	if diff := cmp.Diff([]string{"Q1", "Q5", "Q4"}, ids); diff != "" {
		t.Errorf("ids mismatch (-want +got):\n%s", diff)
	}
	if len(unlinked) != 1 || unlinked[0].Text != "Nobody" {
		t.Errorf("unexpected unlinked %+v", unlinked)
	}
	if links[0].Mention.Text != "Elonn Mask" {
		t.Errorf("link lost its mention: %+v", links[0])
	}
}

func TestLinkAllPropagatesErrors(t *testing.T) {
	_, err := LinkAll(context.Background(), &stubResolver{err: errors.New("boom")}, []ner.Mention{{Text: "a"}}, 1)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestLocal(t *testing.T) {
	links := []Link{
		{EntityID: "Q1", Method: MethodExact},
		{EntityID: "Q2", Method: MethodWikidata},
		{EntityID: "Q5", Method: MethodFuzzy},
	}
	var ids []string
	for _, l := range Local(links) {
		ids = append(ids, l.EntityID)
	}
	if diff := cmp.Diff([]string{"Q1", "Q5"}, ids); diff != "" {
		t.Errorf("local ids mismatch (-want +got):\n%s", diff)
	}
	if IsLocal(links[1]) {
		t.Error("a Wikidata link with a builtin-looking id is not local")
	}
}

func TestWikidataResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"head":{"vars":["item"]},"results":{"bindings":[{"item":{"type":"uri","value":"http://www.wikidata.org/entity/Q7747"},"itemLabel":{"type":"literal","value":"Vladimir Putin"},"itemDescription":{"type":"literal","value":"President of Russia"},"article":{"type":"uri","value":"https://en.wikipedia.org/wiki/Vladimir_Putin"}}]}}`))
	}))
	defer srv.Close()

	r := NewWikidataResolver(sparql.New(sparql.Config{Endpoint: srv.URL}, nil), "")
	l, err := r.Resolve(context.Background(), "Putin")
	if err != nil {
		t.Fatal(err)
	}
	if l == nil || l.EntityID != "Q7747" || l.Method != MethodWikidata {
		t.Fatalf("unexpected link %+v", l)
	}
	if l.URL != "https://en.wikipedia.org/wiki/Vladimir_Putin" {
		t.Errorf("unexpected url %q", l.URL)
	}
}

func TestWikidataResolverSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewWikidataResolver(sparql.New(sparql.Config{Endpoint: srv.URL}, nil), "en")
	l, err := r.Resolve(context.Background(), "Putin")
	if err != nil || l != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", l, err)
	}

	chain := ChainResolver{NewIndexResolver(kb.Builtin(), 0), r}
	l, err = chain.Resolve(context.Background(), "Completely Unknown Person")
	if err != nil || l != nil {
		t.Fatalf("expected (nil, nil) from chain, got (%v, %v)", l, err)
	}
}

func TestLinkUnresolved(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		q := r.URL.Query().Get("query")
		switch {
		case strings.Contains(q, `"Broken"@`):
			http.Error(w, "overloaded", http.StatusInternalServerError)
		case strings.Contains(q, `"Berlin"@`):
			w.Write([]byte(`{"head":{"vars":["item"]},"results":{"bindings":[{"item":{"type":"uri","value":"http://www.wikidata.org/entity/Q64"},"itemLabel":{"type":"literal","value":"Berlin"},"itemDescription":{"type":"literal","value":"capital of Germany"}}]}}`))
		default:
			w.Write([]byte(`{"head":{"vars":["item"]},"results":{"bindings":[]}}`))
		}
	}))
	defer srv.Close()

	musk := &Link{EntityID: "Q1", Method: MethodExact}
	outcomes := []Outcome{
		{Mention: ner.Mention{Text: "Musk", Start: 0}, Link: musk},
		{Mention: ner.Mention{Text: "Berlin", Start: 10}},
		{Mention: ner.Mention{Text: "Broken", Start: 20}},
		{Mention: ner.Mention{Text: "Berlin", Start: 30}},
		{Mention: ner.Mention{Text: "Nowhere", Start: 40}},
	}

	r := NewWikidataResolver(sparql.New(sparql.Config{Endpoint: srv.URL}, nil), "en")
	got := r.LinkUnresolved(context.Background(), outcomes, 2)

	if n := requests.Load(); n != 3 {
		t.Errorf("requests = %d, want one per distinct unresolved name", n)
	}
	if got[0].Link != musk {
		t.Error("resolved outcome was replaced")
	}
	for _, i := range []int{1, 3} {
		l := got[i].Link
		if l == nil || l.EntityID != "Q64" || l.Method != MethodWikidata {
			t.Fatalf("outcome %d link = %+v", i, l)
		}
		if l.Mention.Start != outcomes[i].Mention.Start {
			t.Errorf("outcome %d carries mention at %d", i, l.Mention.Start)
		}
	}
	if got[2].Link != nil || got[4].Link != nil {
		t.Errorf("failed or empty lookups linked: %+v %+v", got[2].Link, got[4].Link)
	}
	if outcomes[1].Link != nil {
		t.Error("input outcomes modified")
	}
}

type searcherFunc func(ctx context.Context, label, lang string, limit int) ([]sparql.Hit, error)

func (f searcherFunc) SearchLabel(ctx context.Context, label, lang string, limit int) ([]sparql.Hit, error) {
	return f(ctx, label, lang, limit)
}

func TestLinkUnresolvedWithoutBatchSearch(t *testing.T) {
	var calls []string
	search := searcherFunc(func(_ context.Context, label, lang string, _ int) ([]sparql.Hit, error) {
		calls = append(calls, label+"@"+lang)
		if label == "Berlin" {
			return []sparql.Hit{{QID: "Q64", Label: "Berlin"}}, nil
		}
		return nil, errors.New("boom")
	})
	outcomes := []Outcome{
		{Mention: ner.Mention{Text: "Berlin"}},
		{Mention: ner.Mention{Text: "Paris"}},
		{Mention: ner.Mention{Text: "Berlin"}},
	}
	got := NewWikidataResolver(search, "de").LinkUnresolved(context.Background(), outcomes, 0)
	if diff := cmp.Diff([]string{"Berlin@de", "Paris@de"}, calls); diff != "" {
		t.Errorf("lookups mismatch (-want +got):\n%s", diff)
	}
	if got[0].Link == nil || got[2].Link == nil || got[1].Link != nil {
		t.Errorf("links = %v %v %v", got[0].Link, got[1].Link, got[2].Link)
	}
}
