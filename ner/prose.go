package ner

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"
)

// ProseTagger runs prose's pretrained averaged-perceptron entity model.
type ProseTagger struct{}

// NewProseTagger returns a tagger backed by prose.
func NewProseTagger() *ProseTagger { return &ProseTagger{} }

// Name implements Tagger.
func (p *ProseTagger) Name() string { return KindProse }

// Tag implements Tagger. prose reports entity text without offsets, so each
// entity is located by scanning forward from the previous one.
func (p *ProseTagger) Tag(ctx context.Context, text string) ([]Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("ner.ProseTagger: %w", err)
	}

	var (
		out    []Mention
		cursor int
	)
	for _, ent := range doc.Entities() {
		start, end, ok := locate(text, ent.Text, cursor)
		if !ok {
			continue
		}
		out = append(out, Mention{
			Text:   text[start:end],
			Label:  ent.Label,
			Start:  start,
			End:    end,
			Source: KindProse,
		})
		cursor = end
	}
	return resolveOverlaps(out), nil
}

// locate finds needle in text at or after from, falling back to a search from
// the beginning. A case-insensitive match is tried when the exact one fails.
func locate(text, needle string, from int) (int, int, bool) {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return 0, 0, false
	}
	if from > len(text) {
		from = len(text)
	}
	if i := strings.Index(text[from:], needle); i >= 0 {
		return from + i, from + i + len(needle), true
	}
	if i := strings.Index(text, needle); i >= 0 {
		return i, i + len(needle), true
	}
	for _, base := range []int{from, 0} {
		rest := text[base:]
		lower := strings.ToLower(rest)
		if len(lower) != len(rest) {
			continue
		}
		if i := strings.Index(lower, strings.ToLower(needle)); i >= 0 {
			return base + i, base + i + len(needle), true
		}
	}
	return 0, 0, false
}
