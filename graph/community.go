package graph

import (
	"log/slog"
	"sort"
)

// minComponentSplit is the minimum component size eligible for further
// modularity-based splitting.
const minComponentSplit = 6

// maxModularityNodes caps the node count for the modularity optimisation.
// Components larger than this are kept as level-0 only.
const maxModularityNodes = 200

// Community is a group of entity ids. Level 0 groups are connected
// components; level 1 groups split a large component by modularity.
type Community struct {
	Level     int      `json:"level"`
	EntityIDs []string `json:"entity_ids"`
}

// edge represents a weighted edge in the in-memory adjacency list.
type edge struct {
	to     int
	weight float64
}

// DetectCommunities runs community detection on the undirected view of kg.
// Level-0 communities are connected components. Components of at least
// minComponentSplit nodes are further split using greedy modularity
// optimisation and reported as level-1 communities.
func DetectCommunities(kg *KnowledgeGraph) []Community {
	n := kg.NodeCount()
	if n == 0 {
		return nil
	}

	adj := make([][]edge, n)
	totalWeight := 0.0
	for _, e := range kg.Edges() {
		si, ti := int(e.F.ID()), int(e.T.ID())
		adj[si] = append(adj[si], edge{to: ti, weight: e.W})
		adj[ti] = append(adj[ti], edge{to: si, weight: e.W})
		totalWeight += e.W
	}

	// --- Level 0: connected components via BFS ---
	visited := make([]bool, n)
	var components [][]int
	for i := 0; i < n; i++ {
		if visited[i] {
			continue
		}
		var comp []int
		queue := []int{i}
		visited[i] = true
		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			comp = append(comp, node)
			for _, e := range adj[node] {
				if !visited[e.to] {
					visited[e.to] = true
					queue = append(queue, e.to)
				}
			}
		}
		sort.Ints(comp)
		components = append(components, comp)
	}

	slog.Debug("community: BFS found components",
		"components", len(components), "largest", largestComp(components))

	var communities []Community
	for _, comp := range components {
		communities = append(communities, Community{Level: 0, EntityIDs: kg.componentIDs(comp)})

		// --- Level 1: modularity-based splitting for large components ---
		// Skip if too large (the optimisation is quadratic).
		if len(comp) >= minComponentSplit && len(comp) <= maxModularityNodes && totalWeight > 0 {
			subs := modularitySplit(comp, adj, totalWeight)
			if len(subs) <= 1 {
				continue
			}
			for _, sub := range subs {
				communities = append(communities, Community{Level: 1, EntityIDs: kg.componentIDs(sub)})
			}
		}
	}

	slog.Debug("community: detection complete", "communities", len(communities))
	return communities
}

func largestComp(comps [][]int) int {
	max := 0
	for _, c := range comps {
		if len(c) > max {
			max = len(c)
		}
	}
	return max
}

// componentIDs maps node indices back to knowledge-base ids.
func (kg *KnowledgeGraph) componentIDs(comp []int) []string {
	ids := make([]string, len(comp))
	for i, idx := range comp {
		ids[i] = kg.nodes[idx].KBID
	}
	return ids
}

// modularitySplit applies a greedy modularity optimisation (simplified Louvain)
// to split a connected component into two or more sub-communities. If the
// split does not improve modularity the original component is returned as-is.
// Groups are ordered by their smallest member.
func modularitySplit(comp []int, adj [][]edge, totalWeight float64) [][]int {
	n := len(comp)
	if n < minComponentSplit {
		return [][]int{comp}
	}

	localIdx := make(map[int]int, n)
	for i, node := range comp {
		localIdx[node] = i
	}

	// community[i] is the community label for local node i.
	community := make([]int, n)
	for i := range community {
		community[i] = i
	}

	strength := make([]float64, n)
	for i, node := range comp {
		for _, e := range adj[node] {
			if _, ok := localIdx[e.to]; ok {
				strength[i] += e.weight
			}
		}
	}

	m2 := 2.0 * totalWeight
	if m2 == 0 {
		return [][]int{comp}
	}

	commStrength := make(map[int]float64, n)
	for i := range comp {
		commStrength[community[i]] += strength[i]
	}

	const maxPasses = 20
	for pass := 0; pass < maxPasses; pass++ {
		moved := false
		for i, node := range comp {
			commWeights := make(map[int]float64)
			for _, e := range adj[node] {
				li, ok := localIdx[e.to]
				if !ok {
					continue
				}
				commWeights[community[li]] += e.weight
			}

			currentComm := community[i]
			bestComm := currentComm
			bestGain := 0.0

			kiIn := commWeights[currentComm]
			ki := strength[i]
			removeDelta := kiIn/m2 - (commStrength[currentComm]*ki)/(m2*m2)

			// Visit candidate communities in label order so ties resolve
			// the same way on every run.
			labels := make([]int, 0, len(commWeights))
			for c := range commWeights {
				labels = append(labels, c)
			}
			sort.Ints(labels)
			for _, c := range labels {
				if c == currentComm {
					continue
				}
				gain := (commWeights[c]/m2 - (commStrength[c]*ki)/(m2*m2)) - removeDelta
				if gain > bestGain {
					bestGain = gain
					bestComm = c
				}
			}

			if bestComm != currentComm {
				commStrength[currentComm] -= ki
				commStrength[bestComm] += ki
				community[i] = bestComm
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	groups := make(map[int][]int)
	var order []int
	for i, node := range comp {
		c := community[i]
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], node)
	}

	if len(order) <= 1 {
		return [][]int{comp}
	}
	result := make([][]int, 0, len(order))
	for _, c := range order {
		result = append(result, groups[c])
	}
	return result
}
