package nelgraph

import (
	"strings"
	"unicode"

	"github.com/brunobiangulo/nelgraph/ner"
)

// snippetMaxLen is the approximate maximum character length for a snippet.
const snippetMaxLen = 160

// Snippet returns the sentence of text containing m, cut to roughly maxLen
// bytes around the mention on word boundaries. Cut ends are marked with
// "...". A non-positive maxLen means snippetMaxLen.
func Snippet(text string, m ner.Mention, maxLen int) string {
	if maxLen <= 0 {
		maxLen = snippetMaxLen
	}
	if m.Start < 0 || m.End > len(text) || m.Start >= m.End {
		return ""
	}

	start, end := 0, len(text)
	for _, s := range ner.Sentences(text) {
		if s.Start <= m.Start && m.End <= s.End {
			start, end = s.Start, s.End
			break
		}
	}
	if end-start <= maxLen {
		return strings.TrimSpace(text[start:end])
	}

	// Spread the remaining budget evenly on both sides of the mention.
	room := maxLen - (m.End - m.Start)
	if room < 0 {
		room = 0
	}
	from := max(start, m.Start-room/2)
	to := min(end, m.End+room-(m.Start-from))
	if to == end {
		from = max(start, to-maxLen)
	}

	from = wordStart(text, from, m.Start)
	to = wordEnd(text, to, m.End)

	var b strings.Builder
	if from > start {
		b.WriteString("...")
	}
	b.WriteString(strings.TrimSpace(text[from:to]))
	if to < end {
		b.WriteString("...")
	}
	return b.String()
}

// wordStart moves i forward to the start of the next word, never past limit.
func wordStart(text string, i, limit int) int {
	if i == 0 || isSpace(text[i-1]) {
		return i
	}
	for i < limit && !isSpace(text[i]) {
		i++
	}
	for i < limit && isSpace(text[i]) {
		i++
	}
	return i
}

// wordEnd moves i back to the end of the previous word, never before limit.
func wordEnd(text string, i, limit int) int {
	if i == len(text) || isSpace(text[i]) {
		return i
	}
	for i > limit && !isSpace(text[i-1]) {
		i--
	}
	for i > limit && isSpace(text[i-1]) {
		i--
	}
	return i
}

func isSpace(c byte) bool {
	return c < 0x80 && unicode.IsSpace(rune(c))
}
