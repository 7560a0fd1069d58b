// Package linker resolves mention strings to knowledge-base entities.
package linker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sahilm/fuzzy"
	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/ner"
)

// Link methods.
const (
	MethodExact    = "exact"
	MethodFuzzy    = "fuzzy"
	MethodWikidata = "wikidata"
)

// DefaultCutoff is the minimum fuzzy score accepted by IndexResolver.
const DefaultCutoff = 80

const defaultConcurrency = 8

// Link is a mention resolved to an entity.
type Link struct {
	Mention     ner.Mention `json:"mention"`
	EntityID    string      `json:"entity_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	URL         string      `json:"url"`
	Score       float64     `json:"score"`
	Method      string      `json:"method"`
	// Key is the index key or remote label that produced the match.
	Key string `json:"key,omitempty"`
}

// Resolver maps a surface string to an entity. A nil link with a nil error
// means no entity was found.
type Resolver interface {
	Resolve(ctx context.Context, name string) (*Link, error)
}

// IndexResolver resolves against a NameIndex: exact key first, then the best
// fuzzy key at or above the cutoff.
type IndexResolver struct {
	kb     *kb.KB
	index  *kb.NameIndex
	cutoff float64
}

// NewIndexResolver indexes k. A non-positive cutoff means DefaultCutoff.
func NewIndexResolver(k *kb.KB, cutoff float64) *IndexResolver {
	if cutoff <= 0 {
		cutoff = DefaultCutoff
	}
	return &IndexResolver{kb: k, index: kb.BuildNameIndex(k), cutoff: cutoff}
}

// Index exposes the underlying name index.
func (r *IndexResolver) Index() *kb.NameIndex { return r.index }

// Resolve implements Resolver.
func (r *IndexResolver) Resolve(ctx context.Context, name string) (*Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if id, ok := r.index.Lookup(name); ok {
		return r.link(id, name, 100, MethodExact), nil
	}
	key, score, ok := r.index.Best(name, r.cutoff)
	if !ok {
		return nil, nil
	}
	id, _ := r.index.Lookup(key)
	return r.link(id, key, score, MethodFuzzy), nil
}

func (r *IndexResolver) link(id, key string, score float64, method string) *Link {
	e, _ := r.kb.Get(id)
	return &Link{
		EntityID:    id,
		Name:        e.Name,
		Description: e.Description,
		URL:         e.Wikipedia,
		Score:       score,
		Method:      method,
		Key:         key,
	}
}

// Suggest ranks index keys by subsequence match for interactive lookups.
func (r *IndexResolver) Suggest(name string, n int) []string {
	keys := r.index.Keys()
	matches := fuzzy.Find(name, keys)
	if n > 0 && len(matches) > n {
		matches = matches[:n]
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}
	return out
}

// ChainResolver tries resolvers in order and returns the first link.
type ChainResolver []Resolver

// Resolve implements Resolver. An error from one resolver stops the chain.
func (c ChainResolver) Resolve(ctx context.Context, name string) (*Link, error) {
	for _, r := range c {
		if r == nil {
			continue
		}
		l, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		if l != nil {
			return l, nil
		}
	}
	return nil, nil
}

// Outcome is the resolution of one mention; Link is nil when unresolved.
type Outcome struct {
	Mention ner.Mention
	Link    *Link
}

// LinkAll resolves mentions concurrently and returns outcomes in mention
// order. At most concurrency resolutions run at once.
func LinkAll(ctx context.Context, r Resolver, mentions []ner.Mention, concurrency int) ([]Outcome, error) {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	out := make([]Outcome, len(mentions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, m := range mentions {
		g.Go(func() error {
			l, err := r.Resolve(gctx, m.Text)
			if err != nil {
				return fmt.Errorf("linker.LinkAll: %q: %w", m.Text, err)
			}
			if l != nil {
				cp := *l
				cp.Mention = m
				l = &cp
			}
			out[i] = Outcome{Mention: m, Link: l}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	linked := 0
	for _, o := range out {
		if o.Link != nil {
			linked++
		}
	}
	slog.Debug("linker: resolved mentions", "total", len(out), "linked", linked)
	return out, nil
}

// Split separates outcomes into links and unlinked mentions, keeping order.
func Split(outcomes []Outcome) ([]Link, []ner.Mention) {
	var (
		links    []Link
		unlinked []ner.Mention
	)
	for _, o := range outcomes {
		if o.Link != nil {
			links = append(links, *o.Link)
		} else {
			unlinked = append(unlinked, o.Mention)
		}
	}
	return links, unlinked
}

// IsLocal reports whether l points into the knowledge base. Wikidata ids
// look like builtin ids but belong to a different namespace.
func IsLocal(l Link) bool { return l.Method != MethodWikidata }

// Local returns the knowledge-base links, keeping order.
func Local(links []Link) []Link {
	out := make([]Link, 0, len(links))
	for _, l := range links {
		if IsLocal(l) {
			out = append(out, l)
		}
	}
	return out
}
