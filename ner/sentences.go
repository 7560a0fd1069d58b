package ner

import (
	"regexp"

	"github.com/jdkato/prose/v2"
)

// Sentence is a sentence span with byte offsets into the source text.
type Sentence struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

var sentenceEndRe = regexp.MustCompile(`[.!?]+["'”’)]*\s+`)

// Sentences splits text with prose's punkt segmenter. When the segmenter
// fails or returns text that cannot be located, a punctuation splitter is
// used instead.
func Sentences(text string) []Sentence {
	if text == "" {
		return nil
	}
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithTokenization(false),
	)
	if err != nil {
		return splitOnPunctuation(text)
	}

	var (
		out    []Sentence
		cursor int
	)
	for _, s := range doc.Sentences() {
		start, end, ok := locate(text, s.Text, cursor)
		if !ok || start < cursor {
			return splitOnPunctuation(text)
		}
		out = append(out, Sentence{Text: text[start:end], Start: start, End: end})
		cursor = end
	}
	if len(out) == 0 {
		return splitOnPunctuation(text)
	}
	return out
}

func splitOnPunctuation(text string) []Sentence {
	var (
		out   []Sentence
		start int
	)
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		end := loc[1]
		for end > loc[0] && isSpaceByte(text[end-1]) {
			end--
		}
		if s := trimSpan(text, start, end); s.End > s.Start {
			out = append(out, s)
		}
		start = loc[1]
	}
	if s := trimSpan(text, start, len(text)); s.End > s.Start {
		out = append(out, s)
	}
	return out
}

func trimSpan(text string, start, end int) Sentence {
	for start < end && isSpaceByte(text[start]) {
		start++
	}
	for end > start && isSpaceByte(text[end-1]) {
		end--
	}
	return Sentence{Text: text[start:end], Start: start, End: end}
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}
