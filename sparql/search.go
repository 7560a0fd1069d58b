package sparql

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

const defaultLimit = 5

// ErrInvalidLanguage is returned for a language code that cannot be placed
// in a query.
var ErrInvalidLanguage = errors.New("sparql: invalid language code")

// languageRe matches Wikidata label language codes such as "en", "pt-br",
// "zh-hans" or "simple".
var languageRe = regexp.MustCompile(`^[a-z]{2,8}(-[a-z0-9]{1,8})*$`)

// ValidLanguage reports whether lang is a well-formed label language code.
// Case is ignored.
func ValidLanguage(lang string) bool {
	return languageRe.MatchString(strings.ToLower(lang))
}

const labelQuery = `SELECT DISTINCT ?item ?itemLabel ?itemDescription ?article WHERE {
  ?item rdfs:label|skos:altLabel %s@%s .
  OPTIONAL {
    ?article schema:about ?item ;
             schema:isPartOf <https://%s.wikipedia.org/> .
  }
  SERVICE wikibase:label { bd:serviceParam wikibase:language "%s,en". }
}
LIMIT %d`

// Hit is one entity matching a label search.
type Hit struct {
	QID         string `json:"qid"`
	URI         string `json:"uri"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Article     string `json:"article,omitempty"`
}

// SearchLabel finds items whose label or alias equals label in lang.
func (c *Client) SearchLabel(ctx context.Context, label, lang string, limit int) ([]Hit, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, nil
	}
	if lang == "" {
		lang = "en"
	}
	if !ValidLanguage(lang) {
		return nil, fmt.Errorf("sparql.SearchLabel: %w: %q", ErrInvalidLanguage, lang)
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	res, err := c.Query(ctx, LabelQuery(label, strings.ToLower(lang), limit))
	if err != nil {
		return nil, fmt.Errorf("sparql.SearchLabel %q: %w", label, err)
	}

	seen := make(map[string]bool)
	var hits []Hit
	for _, b := range res.Results.Bindings {
		uri := b["item"].Value
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		hits = append(hits, Hit{
			QID:         QID(uri),
			URI:         uri,
			Label:       b["itemLabel"].Value,
			Description: b["itemDescription"].Value,
			Article:     b["article"].Value,
		})
	}
	return hits, nil
}

// SearchLabels runs SearchLabel for many labels with at most concurrency
// requests in flight. Failed lookups are reported in the error map.
func (c *Client) SearchLabels(ctx context.Context, labels []string, lang string, concurrency int) (map[string][]Hit, map[string]error) {
	if concurrency <= 0 {
		concurrency = 4
	}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		sem  = make(chan struct{}, concurrency)
		hits = make(map[string][]Hit, len(labels))
		errs = make(map[string]error)
	)
	for _, label := range labels {
		wg.Add(1)
		go func(label string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs[label] = ctx.Err()
				mu.Unlock()
				return
			}
			h, err := c.SearchLabel(ctx, label, lang, 1)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[label] = err
				return
			}
			hits[label] = h
		}(label)
	}
	wg.Wait()
	return hits, errs
}

// LabelQuery renders the label/alias lookup query. lang must pass
// ValidLanguage; it is inserted verbatim.
func LabelQuery(label, lang string, limit int) string {
	return fmt.Sprintf(labelQuery, Literal(label), lang, lang, lang, limit)
}

// Literal quotes s as a SPARQL string literal.
func Literal(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return `"` + r.Replace(s) + `"`
}

// QID returns the trailing identifier of an entity URI, e.g. "Q317521" for
// http://www.wikidata.org/entity/Q317521.
func QID(uri string) string {
	if i := strings.LastIndexByte(uri, '/'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}
