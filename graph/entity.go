// Package graph assembles the entity graph from the knowledge base and the
// relations found in processed texts, and computes the analytics over it.
package graph

import "github.com/brunobiangulo/nelgraph/kb"

// Relation type constants used during extraction and storage.
const (
	RelLinked     = "linked"
	RelCoOccurs   = "co_occurs"
	RelAcquired   = "acquired"
	RelFounded    = "founded"
	RelOwns       = "owns"
	RelMetWith    = "met_with"
	RelReportedBy = "reported_by"
	RelLeads      = "leads"
)

// DefaultColor is used for entity types without an entry in TypeColors.
const DefaultColor = "#dddddd"

// TypeColors maps entity types to node fill colours.
var TypeColors = map[string]string{
	kb.TypePerson:  "#ff9999",
	kb.TypeCompany: "#99ccff",
	kb.TypeCountry: "#99ff99",
}

// ColorFor returns the fill colour for an entity type.
func ColorFor(entityType string) string {
	if c, ok := TypeColors[entityType]; ok {
		return c
	}
	return DefaultColor
}

// Relation is a directed, typed edge between two knowledge-base entities.
type Relation struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Type     string  `json:"relation_type"`
	Weight   float64 `json:"weight"`
	Sentence string  `json:"sentence,omitempty"`
}
