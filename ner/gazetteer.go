package ner

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/brunobiangulo/nelgraph/kb"
)

// shortKeyLen is the longest key matched case-sensitively, so "US" does not
// fire on "us".
const shortKeyLen = 3

// maxWindowTokens bounds the capitalised token windows tried by fuzzy tagging.
const maxWindowTokens = 3

const defaultCutoff = 80

var tokenRe = regexp.MustCompile(`[\p{L}\p{N}]+(?:['’.\-][\p{L}\p{N}]+)*`)

// GazetteerOptions configures a GazetteerTagger.
type GazetteerOptions struct {
	// Fuzzy enables tagging of capitalised token windows that are close to,
	// but not exactly, a known name.
	Fuzzy bool
	// Cutoff is the minimum fuzzy score (0..100). Zero means 80.
	Cutoff float64
}

// GazetteerTagger tags occurrences of knowledge-base names and aliases.
type GazetteerTagger struct {
	index  *kb.NameIndex
	kb     *kb.KB
	keys   []gazetteerKey
	fuzzy  bool
	cutoff float64
}

type gazetteerKey struct {
	key string
	id  string
	re  *regexp.Regexp
}

// NewGazetteerTagger indexes every name and alias in k.
func NewGazetteerTagger(k *kb.KB, opts GazetteerOptions) *GazetteerTagger {
	idx := kb.BuildNameIndex(k)
	cutoff := opts.Cutoff
	if cutoff <= 0 {
		cutoff = defaultCutoff
	}
	g := &GazetteerTagger{
		index:  idx,
		kb:     k,
		fuzzy:  opts.Fuzzy,
		cutoff: cutoff,
	}
	for _, key := range idx.Keys() {
		id, _ := idx.Lookup(key)
		pattern := regexp.QuoteMeta(key)
		if utf8.RuneCountInString(key) > shortKeyLen {
			pattern = "(?i)" + pattern
		}
		g.keys = append(g.keys, gazetteerKey{key: key, id: id, re: regexp.MustCompile(pattern)})
	}
	return g
}

// Name implements Tagger.
func (g *GazetteerTagger) Name() string { return KindGazetteer }

// Tag implements Tagger.
func (g *GazetteerTagger) Tag(ctx context.Context, text string) ([]Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var found []Mention
	for _, k := range g.keys {
		for _, loc := range k.re.FindAllStringIndex(text, -1) {
			if !onWordBoundary(text, loc[0], loc[1]) {
				continue
			}
			found = append(found, Mention{
				Text:   text[loc[0]:loc[1]],
				Label:  g.labelFor(k.id),
				Start:  loc[0],
				End:    loc[1],
				Source: KindGazetteer,
			})
		}
	}
	found = resolveOverlaps(found)

	if g.fuzzy {
		found = resolveOverlaps(append(found, g.fuzzyMentions(text, found)...))
	}
	return found, nil
}

func (g *GazetteerTagger) labelFor(id string) string {
	e, _ := g.kb.Get(id)
	return LabelForType(e.Type)
}

// fuzzyMentions scores runs of capitalised tokens that no exact hit covers.
// Longer windows are tried first and block the shorter ones they contain.
func (g *GazetteerTagger) fuzzyMentions(text string, exact []Mention) []Mention {
	var out []Mention
	for _, run := range capitalisedRuns(text) {
		for size := min(maxWindowTokens, len(run)); size >= 1; size-- {
			for i := 0; i+size <= len(run); i++ {
				start, end := run[i][0], run[i+size-1][1]
				if overlapsAny(start, end, exact) || overlapsAny(start, end, out) {
					continue
				}
				// Partial matches would tag any sentence-initial "The".
				key, _, ok := g.index.BestBy(text[start:end], g.cutoff, kb.StrictRatio)
				if !ok {
					continue
				}
				id, _ := g.index.Lookup(key)
				out = append(out, Mention{
					Text:   text[start:end],
					Label:  g.labelFor(id),
					Start:  start,
					End:    end,
					Source: KindGazetteer,
				})
			}
		}
	}
	return out
}

// capitalisedRuns groups adjacent capitalised tokens separated only by spaces.
func capitalisedRuns(text string) [][][2]int {
	var (
		runs [][][2]int
		cur  [][2]int
	)
	for _, loc := range tokenRe.FindAllStringIndex(text, -1) {
		r, _ := utf8.DecodeRuneInString(text[loc[0]:])
		if !unicode.IsUpper(r) {
			if len(cur) > 0 {
				runs = append(runs, cur)
				cur = nil
			}
			continue
		}
		if len(cur) > 0 {
			gap := text[cur[len(cur)-1][1]:loc[0]]
			if strings.TrimSpace(gap) != "" {
				runs = append(runs, cur)
				cur = nil
			}
		}
		cur = append(cur, [2]int{loc[0], loc[1]})
	}
	if len(cur) > 0 {
		runs = append(runs, cur)
	}
	return runs
}

func onWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
