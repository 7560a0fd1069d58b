// Package ner finds named-entity mentions in text.
package ner

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/llm"
)

// OntoNotes labels emitted by the taggers. Labels outside this set are passed
// through unchanged.
const (
	LabelPerson = "PERSON"
	LabelOrg    = "ORG"
	LabelGPE    = "GPE"
	LabelNORP   = "NORP"
	LabelLoc    = "LOC"
	LabelMisc   = "MISC"
)

// Tagger kinds accepted by New.
const (
	KindGazetteer = "gazetteer"
	KindProse     = "prose"
	KindLLM       = "llm"
)

var (
	// ErrUnknownTagger is returned by New for an unrecognised kind.
	ErrUnknownTagger = errors.New("ner: unknown tagger")

	// ErrMissingDependency is returned when a tagger kind needs a knowledge
	// base or chat provider that was not supplied.
	ErrMissingDependency = errors.New("ner: tagger dependency missing")
)

// Mention is a labelled span. Start and End are byte offsets into the tagged
// text, so text[Start:End] == Text.
type Mention struct {
	Text   string `json:"text"`
	Label  string `json:"label"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Source string `json:"source,omitempty"`
}

// Tagger finds mentions in a text.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Mention, error)
	Name() string
}

// Options configures New.
type Options struct {
	KB     *kb.KB
	Fuzzy  bool
	Cutoff float64
	Chat   llm.Provider
	Model  string
}

// New builds a tagger by kind.
func New(kind string, opts Options) (Tagger, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindGazetteer:
		if opts.KB == nil {
			return nil, fmt.Errorf("%w: gazetteer needs a knowledge base", ErrMissingDependency)
		}
		return NewGazetteerTagger(opts.KB, GazetteerOptions{Fuzzy: opts.Fuzzy, Cutoff: opts.Cutoff}), nil
	case KindProse:
		return NewProseTagger(), nil
	case KindLLM:
		if opts.Chat == nil {
			return nil, fmt.Errorf("%w: llm tagger needs a chat provider", ErrMissingDependency)
		}
		return NewLLMTagger(opts.Chat, opts.Model), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTagger, kind)
	}
}

// LabelForType maps a knowledge-base entity type to an NER label.
func LabelForType(entityType string) string {
	switch entityType {
	case kb.TypePerson:
		return LabelPerson
	case kb.TypeCountry:
		return LabelGPE
	case kb.TypeCompany, kb.TypeOrganization:
		return LabelOrg
	default:
		return LabelMisc
	}
}

// resolveOverlaps keeps the longest of any overlapping spans (earliest wins a
// tie) and returns the survivors in text order.
func resolveOverlaps(ms []Mention) []Mention {
	if len(ms) < 2 {
		return ms
	}
	byLen := make([]Mention, len(ms))
	copy(byLen, ms)
	sort.SliceStable(byLen, func(i, j int) bool {
		li, lj := byLen[i].End-byLen[i].Start, byLen[j].End-byLen[j].Start
		if li != lj {
			return li > lj
		}
		return byLen[i].Start < byLen[j].Start
	})

	kept := make([]Mention, 0, len(ms))
	for _, m := range byLen {
		if !overlapsAny(m.Start, m.End, kept) {
			kept = append(kept, m)
		}
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

func overlapsAny(start, end int, ms []Mention) bool {
	for _, m := range ms {
		if start < m.End && m.Start < end {
			return true
		}
	}
	return false
}
