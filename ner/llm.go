package ner

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/brunobiangulo/nelgraph/llm"
)

const entityPrompt = `You are a named-entity recognition engine.
Extract every named entity mentioned in the text below.

ENTITY TYPES (use exactly these values):
- PERSON : a named individual
- ORG    : a company, agency, newspaper, party or other institution
- GPE    : a country, city or state
- NORP   : a nationality, religious or political group
- LOC    : a non-political location

Return a JSON object with exactly one key:
  "entities" : array of {"name": string, "type": string}

Rules:
- Copy each name exactly as it appears in the text, one entry per occurrence.
- List entities in the order they appear.
- Do NOT include any text outside the JSON object.

EXAMPLE:
Input: "Angela Merkel visited Paris with Siemens executives."
Output:
{"entities": [{"name": "Angela Merkel", "type": "PERSON"}, {"name": "Paris", "type": "GPE"}, {"name": "Siemens", "type": "ORG"}]}

TEXT:
%s`

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// LLMTagger asks a chat model for entities.
type LLMTagger struct {
	chat  llm.Provider
	model string
}

// NewLLMTagger returns a tagger that prompts chat. An empty model uses the
// provider's configured default.
func NewLLMTagger(chat llm.Provider, model string) *LLMTagger {
	return &LLMTagger{chat: chat, model: model}
}

// Name implements Tagger.
func (t *LLMTagger) Name() string { return KindLLM }

type llmEntities struct {
	Entities []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"entities"`
}

// Tag implements Tagger.
func (t *LLMTagger) Tag(ctx context.Context, text string) ([]Mention, error) {
	resp, err := t.chat.Chat(ctx, llm.ChatRequest{
		Model:          t.model,
		Messages:       []llm.Message{{Role: "user", Content: fmt.Sprintf(entityPrompt, text)}},
		Temperature:    0.0,
		ResponseFormat: "json_object",
	})
	if err != nil {
		return nil, fmt.Errorf("ner.LLMTagger: chat: %w", err)
	}

	raw, err := extractJSON(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("ner.LLMTagger: %w", err)
	}
	var result llmEntities
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("ner.LLMTagger: unmarshalling: %w", err)
	}

	var (
		out    []Mention
		cursor int
	)
	for _, e := range result.Entities {
		start, end, ok := locate(text, e.Name, cursor)
		if !ok {
			continue
		}
		out = append(out, Mention{
			Text:   text[start:end],
			Label:  normalizeLabel(e.Type),
			Start:  start,
			End:    end,
			Source: KindLLM,
		})
		cursor = end
	}
	return resolveOverlaps(dedupeSpans(out)), nil
}

// normalizeLabel maps free-form model output onto the label set.
func normalizeLabel(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case LabelPerson, "PER":
		return LabelPerson
	case LabelOrg, "ORGANIZATION", "ORGANISATION", "COMPANY":
		return LabelOrg
	case LabelGPE, "COUNTRY", "CITY", "STATE":
		return LabelGPE
	case LabelNORP, "NATIONALITY":
		return LabelNORP
	case LabelLoc, "LOCATION":
		return LabelLoc
	case "":
		return LabelMisc
	default:
		return strings.ToUpper(strings.TrimSpace(s))
	}
}

func dedupeSpans(ms []Mention) []Mention {
	seen := make(map[[2]int]bool, len(ms))
	out := ms[:0]
	for _, m := range ms {
		k := [2]int{m.Start, m.End}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, m)
	}
	return out
}

// extractJSON pulls a JSON object out of a model response that may be wrapped
// in a code fence or surrounded by prose.
func extractJSON(raw string) (string, error) {
	if m := codeBlockRe.FindStringSubmatch(raw); len(m) > 1 {
		raw = m[1]
	}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return raw, nil
	}
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1], nil
	}
	return "", fmt.Errorf("no JSON object found in response")
}
