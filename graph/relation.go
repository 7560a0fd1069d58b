package graph

import (
	"sort"
	"strings"

	"github.com/brunobiangulo/nelgraph/linker"
	"github.com/brunobiangulo/nelgraph/ner"
)

// Rule assigns Type to a sentence containing any of Keywords. Keywords are
// matched as lower-case substrings.
type Rule struct {
	Keywords []string `json:"keywords" yaml:"keywords"`
	Type     string   `json:"type" yaml:"type"`
}

// DefaultRules is checked in order; the first matching rule wins.
var DefaultRules = []Rule{
	{Keywords: []string{"acquired", "bought", "took over"}, Type: RelAcquired},
	{Keywords: []string{"founded", "co-founded", "established"}, Type: RelFounded},
	{Keywords: []string{"owns", "owner of"}, Type: RelOwns},
	{Keywords: []string{"ceo of", "leader of", "head of", "leads"}, Type: RelLeads},
	{Keywords: []string{"met ", "met,", "meeting", "contact with", "in contact"}, Type: RelMetWith},
	{Keywords: []string{"reported", "according to"}, Type: RelReportedBy},
}

// MatchRule returns the type of the first rule matching sentence.
func MatchRule(rules []Rule, sentence string) (string, bool) {
	lower := strings.ToLower(sentence)
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				return r.Type, true
			}
		}
	}
	return "", false
}

// Extract derives relations from the links that fall inside each sentence.
// Every ordered pair of distinct entities (earlier mention first) in a
// sentence with two or more linked entities yields one relation, typed by
// the first matching rule or RelCoOccurs. A nil rules slice means
// DefaultRules.
func Extract(sentences []ner.Sentence, links []linker.Link, rules []Rule) []Relation {
	if rules == nil {
		rules = DefaultRules
	}
	ordered := make([]linker.Link, len(links))
	copy(ordered, links)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Mention.Start < ordered[j].Mention.Start
	})

	var out []Relation
	for _, s := range sentences {
		var ids []string
		seen := make(map[string]bool)
		for _, l := range ordered {
			if l.EntityID == "" || l.Mention.Start < s.Start || l.Mention.End > s.End {
				continue
			}
			if !seen[l.EntityID] {
				seen[l.EntityID] = true
				ids = append(ids, l.EntityID)
			}
		}
		if len(ids) < 2 {
			continue
		}

		relType, ok := MatchRule(rules, s.Text)
		if !ok {
			relType = RelCoOccurs
		}
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				out = append(out, Relation{
					Source:   ids[i],
					Target:   ids[j],
					Type:     relType,
					Weight:   1,
					Sentence: s.Text,
				})
			}
		}
	}
	return out
}
