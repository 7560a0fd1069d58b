package graph

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/brunobiangulo/nelgraph/kb"
)

// Node is an entity vertex. It carries the attributes used when the graph is
// drawn.
type Node struct {
	NodeID int64  `json:"-"`
	KBID   string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type,omitempty"`
}

// ID implements graph.Node.
func (n Node) ID() int64 { return n.NodeID }

// DOTID names the node in DOT output.
func (n Node) DOTID() string { return n.KBID }

// Attributes implements encoding.Attributer.
func (n Node) Attributes() []encoding.Attribute {
	label := n.Name
	if label == "" {
		label = n.KBID
	}
	return []encoding.Attribute{
		{Key: "label", Value: label},
		{Key: "style", Value: "filled"},
		{Key: "fillcolor", Value: ColorFor(n.Type)},
	}
}

// Edge is a directed edge. Parallel relations between the same pair are
// merged: their weights add up and their types are collected.
type Edge struct {
	F, T  *Node
	W     float64
	Types []string
}

// From implements graph.Edge.
func (e Edge) From() graph.Node { return e.F }

// To implements graph.Edge.
func (e Edge) To() graph.Node { return e.T }

// ReversedEdge implements graph.Edge.
func (e Edge) ReversedEdge() graph.Edge { return Edge{F: e.T, T: e.F, W: e.W, Types: e.Types} }

// Weight implements graph.WeightedEdge.
func (e Edge) Weight() float64 { return e.W }

// Attributes implements encoding.Attributer.
func (e Edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{
		{Key: "label", Value: strings.Join(e.Types, ",")},
		{Key: "color", Value: "gray"},
	}
}

// KnowledgeGraph is a weighted directed graph keyed by knowledge-base ids.
type KnowledgeGraph struct {
	g     *simple.WeightedDirectedGraph
	ids   map[string]int64
	nodes []*Node
}

// New returns an empty graph.
func New() *KnowledgeGraph {
	return &KnowledgeGraph{
		g:   simple.NewWeightedDirectedGraph(0, 0),
		ids: make(map[string]int64),
	}
}

// FromKB adds one node per entity and a RelLinked edge for every linked id
// present in k. Dangling and self links are skipped.
func FromKB(k *kb.KB) *KnowledgeGraph {
	kg := New()
	for _, e := range k.Entities() {
		kg.AddEntity(e)
	}
	for _, e := range k.Entities() {
		for _, target := range e.Linked {
			if !k.Has(target) {
				continue
			}
			kg.AddRelation(Relation{Source: e.ID, Target: target, Type: RelLinked, Weight: 1})
		}
	}
	return kg
}

// AddEntity adds a node for e, or refreshes its name and type if present.
func (kg *KnowledgeGraph) AddEntity(e kb.Entity) Node {
	return *kg.ensure(e.ID, e.Name, e.Type)
}

// ensure returns the node for id. Nodes are shared with the underlying
// graph, so a refresh is visible to every edge that references them.
func (kg *KnowledgeGraph) ensure(id, name, typ string) *Node {
	if nid, ok := kg.ids[id]; ok {
		n := kg.nodes[nid]
		if name != "" {
			n.Name = name
			n.Type = typ
		}
		return n
	}
	n := &Node{NodeID: int64(len(kg.nodes)), KBID: id, Name: name, Type: typ}
	kg.ids[id] = n.NodeID
	kg.nodes = append(kg.nodes, n)
	kg.g.AddNode(n)
	return n
}

// AddRelation adds r as an edge, creating bare nodes for unknown endpoints.
// It returns false for self relations, which are not representable.
func (kg *KnowledgeGraph) AddRelation(r Relation) bool {
	if r.Source == "" || r.Target == "" || r.Source == r.Target {
		return false
	}
	w := r.Weight
	if w == 0 {
		w = 1
	}
	from := kg.ensure(r.Source, "", "")
	to := kg.ensure(r.Target, "", "")

	e := Edge{F: from, T: to, W: w, Types: []string{r.Type}}
	if prev, ok := kg.g.WeightedEdge(from.ID(), to.ID()).(Edge); ok {
		e.W += prev.W
		e.Types = prev.Types
		if !contains(e.Types, r.Type) {
			e.Types = append(append([]string(nil), prev.Types...), r.Type)
		}
	}
	kg.g.SetWeightedEdge(e)
	return true
}

// AddRelations adds every relation and returns how many were applied.
func (kg *KnowledgeGraph) AddRelations(rs []Relation) int {
	n := 0
	for _, r := range rs {
		if kg.AddRelation(r) {
			n++
		}
	}
	return n
}

// Node returns the node for a knowledge-base id.
func (kg *KnowledgeGraph) Node(id string) (Node, bool) {
	nid, ok := kg.ids[id]
	if !ok {
		return Node{}, false
	}
	return *kg.nodes[nid], true
}

// Nodes returns all nodes in insertion order.
func (kg *KnowledgeGraph) Nodes() []Node {
	out := make([]Node, len(kg.nodes))
	for i, n := range kg.nodes {
		out[i] = *n
	}
	return out
}

// Edge returns the edge from one id to another.
func (kg *KnowledgeGraph) Edge(from, to string) (Edge, bool) {
	f, ok1 := kg.ids[from]
	t, ok2 := kg.ids[to]
	if !ok1 || !ok2 {
		return Edge{}, false
	}
	e, ok := kg.g.WeightedEdge(f, t).(Edge)
	return e, ok
}

// Edges returns all edges ordered by source then target insertion order.
func (kg *KnowledgeGraph) Edges() []Edge {
	var out []Edge
	for _, n := range kg.nodes {
		succ := graph.NodesOf(kg.g.From(n.ID()))
		sort.Slice(succ, func(i, j int) bool { return succ[i].ID() < succ[j].ID() })
		for _, s := range succ {
			if e, ok := kg.g.WeightedEdge(n.ID(), s.ID()).(Edge); ok {
				out = append(out, e)
			}
		}
	}
	return out
}

// Successors returns the ids reachable over one outgoing edge.
func (kg *KnowledgeGraph) Successors(id string) []string {
	return kg.adjacent(id, kg.g.From)
}

// Predecessors returns the ids with an edge into id.
func (kg *KnowledgeGraph) Predecessors(id string) []string {
	return kg.adjacent(id, kg.g.To)
}

func (kg *KnowledgeGraph) adjacent(id string, next func(int64) graph.Nodes) []string {
	nid, ok := kg.ids[id]
	if !ok {
		return nil
	}
	nodes := graph.NodesOf(next(nid))
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = kg.nodes[n.ID()].KBID
	}
	return out
}

// NodeCount returns the number of nodes.
func (kg *KnowledgeGraph) NodeCount() int { return len(kg.nodes) }

// EdgeCount returns the number of distinct directed edges.
func (kg *KnowledgeGraph) EdgeCount() int { return kg.g.Edges().Len() }

// Directed exposes the underlying graph for library routines.
func (kg *KnowledgeGraph) Directed() graph.WeightedDirected { return kg.g }

func (kg *KnowledgeGraph) kbID(nid int64) string {
	if nid < 0 || int(nid) >= len(kg.nodes) {
		return ""
	}
	return kg.nodes[nid].KBID
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
