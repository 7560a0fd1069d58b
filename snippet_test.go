package nelgraph

import (
	"strings"
	"testing"

	"github.com/brunobiangulo/nelgraph/ner"
)

func mentionOf(t *testing.T, text, needle string) ner.Mention {
	t.Helper()
	i := strings.Index(text, needle)
	if i < 0 {
		t.Fatalf("%q not in text", needle)
	}
	return ner.Mention{Text: needle, Start: i, End: i + len(needle)}
}

func TestSnippetWholeSentence(t *testing.T) {
	text := "Musk owns Tesla. Putin leads Russia. Obama was president."
	got := Snippet(text, mentionOf(t, text, "Putin"), 0)
	if got != "Putin leads Russia." {
		t.Errorf("Snippet = %q, want %q", got, "Putin leads Russia.")
	}
}

func TestSnippetTruncatesLongSentence(t *testing.T) {
	text := DemoTexts()[1]
	m := mentionOf(t, text, "Vladimir Putin")

	got := Snippet(text, m, 60)
	if !strings.Contains(got, "Vladimir Putin") {
		t.Fatalf("snippet %q lost the mention", got)
	}
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "...") {
		t.Errorf("snippet %q should be cut on both ends", got)
	}
	if inner := strings.Trim(got, "."); len(inner) > 60 {
		t.Errorf("snippet body is %d bytes, want <= 60: %q", len(inner), got)
	}
	// Cuts fall on word boundaries.
	body := strings.TrimSuffix(strings.TrimPrefix(got, "..."), "...")
	if !strings.Contains(text, body) {
		t.Errorf("snippet body %q is not a substring of the text", body)
	}
	for _, w := range strings.Fields(body) {
		if !strings.Contains(" "+text+" ", " "+w) {
			t.Errorf("word %q in snippet starts mid-word", w)
		}
	}
}

func TestSnippetInvalidMention(t *testing.T) {
	text := "short text"
	tests := []ner.Mention{
		{Start: -1, End: 2},
		{Start: 3, End: 3},
		{Start: 5, End: 50},
	}
	for _, m := range tests {
		if got := Snippet(text, m, 0); got != "" {
			t.Errorf("Snippet(%+v) = %q, want empty", m, got)
		}
	}
}
