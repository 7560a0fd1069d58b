package graph

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/james-bowman/nlp"
	"github.com/james-bowman/nlp/measures/pairwise"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/mat"

	"github.com/brunobiangulo/nelgraph/kb"
	"github.com/brunobiangulo/nelgraph/llm"
)

// Analysis defaults.
const (
	DefaultTopK         = 10
	DefaultSimulatedDim = 64
	pageRankDamping     = 0.85
	pageRankTolerance   = 1e-6
)

// Embedding sources reported in Report.EmbeddingSource.
const (
	EmbeddingSimulated = "simulated"
	EmbeddingProvider  = "provider"
)

// stopWords is removed before TF-IDF weighting.
var stopWords = []string{
	"a", "about", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "in", "is", "it", "its", "known", "of", "on", "one", "or", "that",
	"the", "their", "to", "two", "was", "were", "which", "with",
}

// Options controls Analyze.
type Options struct {
	// TopK bounds the similarity lists. Zero means DefaultTopK; negative
	// means unbounded.
	TopK int `json:"top_k" yaml:"top_k"`

	// Undirected measures shortest paths on the undirected view.
	Undirected bool `json:"undirected" yaml:"undirected"`

	// SimulatedDim is the size of the simulated vectors.
	SimulatedDim int `json:"simulated_dim" yaml:"simulated_dim"`

	// Embedder, when set, replaces the simulated vectors with real ones
	// computed from entity descriptions.
	Embedder llm.Provider `json:"-" yaml:"-"`
}

// PairCount is an unordered entity pair with the number of texts mentioning
// both. A sorts before B.
type PairCount struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Count int    `json:"count"`
}

// PairScore is an unordered entity pair with a similarity score.
type PairScore struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// PathLength is the hop distance between two entities.
type PathLength struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Hops int      `json:"hops"`
	Path []string `json:"path"`
}

// Rank is a PageRank score.
type Rank struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// Report collects every metric computed by Analyze.
type Report struct {
	Nodes                 int          `json:"nodes"`
	Edges                 int          `json:"edges"`
	Documents             int          `json:"documents"`
	CoOccurrence          []PairCount  `json:"co_occurrence"`
	DescriptionSimilarity []PairScore  `json:"description_similarity"`
	ShortestPaths         []PathLength `json:"shortest_paths"`
	Undirected            bool         `json:"undirected"`
	PageRank              []Rank       `json:"pagerank"`
	EmbeddingSimilarity   []PairScore  `json:"embedding_similarity"`
	EmbeddingSource       string       `json:"embedding_source"`
}

// Analyze computes the graph and text metrics. docs holds, for each
// processed text, the ids of the entities linked in it.
func Analyze(ctx context.Context, kg *KnowledgeGraph, k *kb.KB, docs [][]string, opts Options) (*Report, error) {
	topK := opts.TopK
	if topK == 0 {
		topK = DefaultTopK
	}

	rep := &Report{
		Nodes:        kg.NodeCount(),
		Edges:        kg.EdgeCount(),
		Documents:    len(docs),
		CoOccurrence: CountCoOccurrence(docs),
		Undirected:   opts.Undirected,
	}

	sim, err := DescriptionSimilarity(k)
	if err != nil {
		return nil, fmt.Errorf("graph.Analyze: %w", err)
	}
	rep.DescriptionSimilarity = limit(sim, topK)
	rep.ShortestPaths = ShortestPaths(kg, opts.Undirected)
	rep.PageRank = PageRank(kg)

	if opts.Embedder != nil {
		scores, err := providerSimilarity(ctx, opts.Embedder, k)
		if err != nil {
			return nil, fmt.Errorf("graph.Analyze: embeddings: %w", err)
		}
		rep.EmbeddingSimilarity = limit(scores, topK)
		rep.EmbeddingSource = EmbeddingProvider
	} else {
		rep.EmbeddingSimilarity = limit(SimulatedSimilarity(k.IDs(), opts.SimulatedDim), topK)
		rep.EmbeddingSource = EmbeddingSimulated
	}
	return rep, nil
}

// CountCoOccurrence counts, for every unordered pair of distinct ids, the
// documents listing both. Duplicates within a document count once.
func CountCoOccurrence(docs [][]string) []PairCount {
	counts := make(map[[2]string]int)
	for _, ids := range docs {
		uniq := dedupe(ids)
		for i := 0; i < len(uniq); i++ {
			for j := i + 1; j < len(uniq); j++ {
				a, b := uniq[i], uniq[j]
				if b < a {
					a, b = b, a
				}
				counts[[2]string{a, b}]++
			}
		}
	}

	out := make([]PairCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, PairCount{A: p[0], B: p[1], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// DescriptionSimilarity weights entity descriptions with TF-IDF and returns
// the cosine similarity of every pair with a defined, non-zero score, best
// first.
func DescriptionSimilarity(k *kb.KB) ([]PairScore, error) {
	entities := k.Entities()
	if len(entities) < 2 {
		return nil, nil
	}
	corpus := make([]string, len(entities))
	empty := true
	for i, e := range entities {
		corpus[i] = e.Description
		if e.Description != "" {
			empty = false
		}
	}
	if empty {
		return nil, nil
	}

	pipeline := nlp.NewPipeline(nlp.NewCountVectoriser(stopWords...), nlp.NewTfidfTransformer())
	tfidf, err := pipeline.FitTransform(corpus...)
	if err != nil {
		return nil, fmt.Errorf("tf-idf: %w", err)
	}
	terms, _ := tfidf.Dims()
	if terms == 0 {
		return nil, nil
	}
	cols := make([]mat.Vector, len(entities))
	for j := range cols {
		cols[j] = mat.NewVecDense(terms, mat.Col(nil, j, tfidf))
	}

	var out []PairScore
	for i := 0; i < len(entities); i++ {
		for j := i + 1; j < len(entities); j++ {
			s := pairwise.CosineSimilarity(cols[i], cols[j])
			if math.IsNaN(s) || s <= 0 {
				continue
			}
			out = append(out, PairScore{A: entities[i].ID, B: entities[j].ID, Score: s})
		}
	}
	sortScores(out)
	return out, nil
}

// hopView hides edge weights so path searches count hops.
type hopView struct{ graph.Directed }

// ShortestPaths returns the hop distance of every reachable ordered pair of
// distinct nodes.
func ShortestPaths(kg *KnowledgeGraph, undirected bool) []PathLength {
	var g graph.Graph = hopView{kg.g}
	if undirected {
		g = graph.Undirect{G: kg.g}
	}
	all := path.DijkstraAllPaths(g)

	var out []PathLength
	for _, from := range kg.nodes {
		for _, to := range kg.nodes {
			if from.ID() == to.ID() {
				continue
			}
			nodes, w, _ := all.Between(from.ID(), to.ID())
			if math.IsInf(w, 1) || len(nodes) == 0 {
				continue
			}
			ids := make([]string, len(nodes))
			for i, n := range nodes {
				ids[i] = kg.kbID(n.ID())
			}
			out = append(out, PathLength{From: from.KBID, To: to.KBID, Hops: int(w), Path: ids})
		}
	}
	return out
}

// PageRank scores every node, highest first.
func PageRank(kg *KnowledgeGraph) []Rank {
	if kg.NodeCount() == 0 {
		return nil
	}
	scores := network.PageRank(kg.g, pageRankDamping, pageRankTolerance)
	out := make([]Rank, 0, len(scores))
	for nid, s := range scores {
		n := kg.nodes[nid]
		out = append(out, Rank{ID: n.KBID, Name: n.Name, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return kg.ids[out[i].ID] < kg.ids[out[j].ID]
	})
	return out
}

// SimulatedVector returns a deterministic pseudo-random unit vector for id.
// It carries no meaning and stands in for a real embedding.
func SimulatedVector(id string, dim int) []float64 {
	if dim <= 0 {
		dim = DefaultSimulatedDim
	}
	h := fnv.New64a()
	h.Write([]byte(id))
	seed := h.Sum64()
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	v := make([]float64, dim)
	for i := range v {
		v[i] = r.NormFloat64()
	}
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}

// SimulatedSimilarity compares the simulated vectors of every pair of ids.
func SimulatedSimilarity(ids []string, dim int) []PairScore {
	vecs := make([][]float64, len(ids))
	for i, id := range ids {
		vecs[i] = SimulatedVector(id, dim)
	}
	return pairScores(ids, vecs)
}

func providerSimilarity(ctx context.Context, p llm.Provider, k *kb.KB) ([]PairScore, error) {
	entities := k.Entities()
	texts := make([]string, len(entities))
	ids := make([]string, len(entities))
	for i, e := range entities {
		ids[i] = e.ID
		texts[i] = e.Name + ". " + e.Description
	}
	raw, err := p.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(raw), len(texts))
	}
	vecs := make([][]float64, len(raw))
	for i, v := range raw {
		vecs[i] = make([]float64, len(v))
		for j, x := range v {
			vecs[i][j] = float64(x)
		}
	}
	return pairScores(ids, vecs), nil
}

func pairScores(ids []string, vecs [][]float64) []PairScore {
	var out []PairScore
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			s, ok := cosine(vecs[i], vecs[j])
			if !ok {
				continue
			}
			out = append(out, PairScore{A: ids[i], B: ids[j], Score: s})
		}
	}
	sortScores(out)
	return out
}

func cosine(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return floats.Dot(a, b) / (na * nb), true
}

func sortScores(ps []PairScore) {
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Score > ps[j].Score })
}

func limit(ps []PairScore, k int) []PairScore {
	if k > 0 && len(ps) > k {
		return ps[:k]
	}
	return ps
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
