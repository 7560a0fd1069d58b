package eval

import (
	"strings"

	"github.com/brunobiangulo/nelgraph/linker"
	"github.com/brunobiangulo/nelgraph/ner"
)

// Counts are the raw matches behind precision and recall. Mentions compare
// surface text only; links compare surface text and entity id.
type Counts struct {
	MentionTP   int `json:"mention_tp"`
	MentionPred int `json:"mention_pred"`
	MentionGold int `json:"mention_gold"`
	LinkTP      int `json:"link_tp"`
	LinkPred    int `json:"link_pred"`
	LinkGold    int `json:"link_gold"`
}

func (c *Counts) add(o Counts) {
	c.MentionTP += o.MentionTP
	c.MentionPred += o.MentionPred
	c.MentionGold += o.MentionGold
	c.LinkTP += o.LinkTP
	c.LinkPred += o.LinkPred
	c.LinkGold += o.LinkGold
}

// Metrics turns counts into micro-averaged scores.
func (c Counts) Metrics() AggregateMetrics {
	m := AggregateMetrics{
		MentionPrecision: ratio(c.MentionTP, c.MentionPred),
		MentionRecall:    ratio(c.MentionTP, c.MentionGold),
		LinkPrecision:    ratio(c.LinkTP, c.LinkPred),
		LinkRecall:       ratio(c.LinkTP, c.LinkGold),
	}
	m.MentionF1 = f1(m.MentionPrecision, m.MentionRecall)
	m.LinkF1 = f1(m.LinkPrecision, m.LinkRecall)
	return m
}

// score compares one pipeline result against its gold mentions. Matching is
// multiset based so a name mentioned twice must be found twice.
func score(expected []ExpectedLink, mentions []ner.Mention, links []linker.Link) (Counts, []string) {
	var c Counts
	var missed []string

	goldMentions := make(map[string]int)
	goldLinks := make(map[string]int)
	for _, ex := range expected {
		key := normalizeMention(ex.Mention)
		goldMentions[key]++
		c.MentionGold++
		if ex.EntityID != "" {
			goldLinks[key+"\x00"+ex.EntityID]++
			c.LinkGold++
		}
	}

	for _, m := range mentions {
		c.MentionPred++
		key := normalizeMention(m.Text)
		if goldMentions[key] > 0 {
			goldMentions[key]--
			c.MentionTP++
		}
	}

	for _, l := range links {
		c.LinkPred++
		key := normalizeMention(l.Mention.Text) + "\x00" + l.EntityID
		if goldLinks[key] > 0 {
			goldLinks[key]--
			c.LinkTP++
		}
	}

	for _, ex := range expected {
		if ex.EntityID == "" {
			continue
		}
		key := normalizeMention(ex.Mention) + "\x00" + ex.EntityID
		if goldLinks[key] > 0 {
			goldLinks[key]--
			missed = append(missed, ex.Mention+" -> "+ex.EntityID)
		}
	}
	return c, missed
}

// spurious lists predicted links that match no gold link.
func spurious(expected []ExpectedLink, links []linker.Link) []string {
	gold := make(map[string]int)
	for _, ex := range expected {
		if ex.EntityID != "" {
			gold[normalizeMention(ex.Mention)+"\x00"+ex.EntityID]++
		}
	}
	var out []string
	for _, l := range links {
		key := normalizeMention(l.Mention.Text) + "\x00" + l.EntityID
		if gold[key] > 0 {
			gold[key]--
			continue
		}
		out = append(out, l.Mention.Text+" -> "+l.EntityID)
	}
	return out
}

func normalizeMention(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func f1(p, r float64) float64 {
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}
