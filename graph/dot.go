package graph

import (
	"fmt"
	"io"

	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// DOTName is the graph name used in DOT output.
const DOTName = "entities"

type attrs []encoding.Attribute

func (a attrs) Attributes() []encoding.Attribute { return a }

// dotGraph adds graph-wide attributes for renderers such as neato.
type dotGraph struct {
	*simple.WeightedDirectedGraph
}

func (dotGraph) DOTAttributers() (graph, node, edge encoding.Attributer) {
	return attrs{
			{Key: "label", Value: "Entity Knowledge Graph"},
			{Key: "overlap", Value: "false"},
		},
		attrs{{Key: "shape", Value: "ellipse"}},
		attrs{{Key: "arrowsize", Value: "0.8"}}
}

// MarshalDOT renders kg in Graphviz DOT.
func MarshalDOT(kg *KnowledgeGraph) ([]byte, error) {
	b, err := dot.Marshal(dotGraph{kg.g}, DOTName, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("graph.MarshalDOT: %w", err)
	}
	return b, nil
}

// WriteDOT writes kg to w in Graphviz DOT. Nodes are filled with the colour
// of their entity type and labelled with the entity name.
func WriteDOT(w io.Writer, kg *KnowledgeGraph) error {
	b, err := MarshalDOT(kg)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("graph.WriteDOT: %w", err)
	}
	return nil
}
