package linker

import (
	"context"
	"log/slog"

	"github.com/brunobiangulo/nelgraph/sparql"
)

// Searcher is the part of sparql.Client the Wikidata resolver needs.
type Searcher interface {
	SearchLabel(ctx context.Context, label, lang string, limit int) ([]sparql.Hit, error)
}

// BatchSearcher looks up many labels with bounded concurrency. Failed
// lookups are reported per label.
type BatchSearcher interface {
	SearchLabels(ctx context.Context, labels []string, lang string, concurrency int) (map[string][]sparql.Hit, map[string]error)
}

// WikidataResolver looks names up on a SPARQL endpoint. Lookup failures are
// logged and reported as "no link", never as errors.
type WikidataResolver struct {
	client Searcher
	lang   string
}

// NewWikidataResolver wraps client. An empty lang means "en".
func NewWikidataResolver(client Searcher, lang string) *WikidataResolver {
	if lang == "" {
		lang = "en"
	}
	return &WikidataResolver{client: client, lang: lang}
}

// Resolve implements Resolver.
func (w *WikidataResolver) Resolve(ctx context.Context, name string) (*Link, error) {
	hits, err := w.client.SearchLabel(ctx, name, w.lang, 1)
	if err != nil {
		slog.Warn("linker: wikidata lookup failed", "name", name, "error", err)
		return nil, nil
	}
	if len(hits) == 0 {
		return nil, nil
	}
	return hitLink(hits[0], name), nil
}

// LinkUnresolved fills the unresolved outcomes from Wikidata. Each distinct
// mention text is looked up once. Outcomes that already have a link are
// returned unchanged, as are mentions whose lookup failed.
func (w *WikidataResolver) LinkUnresolved(ctx context.Context, outcomes []Outcome, concurrency int) []Outcome {
	var names []string
	seen := make(map[string]bool)
	for _, o := range outcomes {
		if o.Link == nil && !seen[o.Mention.Text] {
			seen[o.Mention.Text] = true
			names = append(names, o.Mention.Text)
		}
	}
	if len(names) == 0 {
		return outcomes
	}

	found := make(map[string]*Link, len(names))
	if batch, ok := w.client.(BatchSearcher); ok {
		if concurrency <= 0 {
			concurrency = defaultConcurrency
		}
		hits, errs := batch.SearchLabels(ctx, names, w.lang, concurrency)
		for name, err := range errs {
			slog.Warn("linker: wikidata lookup failed", "name", name, "error", err)
		}
		for name, hs := range hits {
			if len(hs) > 0 {
				found[name] = hitLink(hs[0], name)
			}
		}
	} else {
		for _, name := range names {
			if l, _ := w.Resolve(ctx, name); l != nil {
				found[name] = l
			}
		}
	}

	out := make([]Outcome, len(outcomes))
	for i, o := range outcomes {
		if l, ok := found[o.Mention.Text]; ok && o.Link == nil {
			cp := *l
			cp.Mention = o.Mention
			o.Link = &cp
		}
		out[i] = o
	}
	slog.Debug("linker: wikidata fallback", "names", len(names), "found", len(found))
	return out
}

func hitLink(h sparql.Hit, name string) *Link {
	return &Link{
		EntityID:    h.QID,
		Name:        h.Label,
		Description: h.Description,
		URL:         h.Article,
		Score:       100,
		Method:      MethodWikidata,
		Key:         name,
	}
}
