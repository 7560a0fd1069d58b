package graph

import "github.com/brunobiangulo/nelgraph/kb"

// TreeRow is one entry of a linked-entity walk.
type TreeRow struct {
	Entity kb.Entity `json:"entity"`
	Level  int       `json:"level"`
}

// LinkedTree walks the linked ids of an entity depth first. Each entity
// appears once; ids missing from k are skipped.
func LinkedTree(k *kb.KB, id string) []TreeRow {
	return LinkedTreeVisited(k, id, make(map[string]bool))
}

// LinkedTreeVisited is LinkedTree with a caller-owned visited set, so several
// walks can share it.
func LinkedTreeVisited(k *kb.KB, id string, visited map[string]bool) []TreeRow {
	var rows []TreeRow
	var walk func(id string, level int)
	walk = func(id string, level int) {
		if visited[id] {
			return
		}
		e, ok := k.Get(id)
		if !ok {
			return
		}
		visited[id] = true
		rows = append(rows, TreeRow{Entity: e, Level: level})
		for _, next := range e.Linked {
			walk(next, level+1)
		}
	}
	walk(id, 0)
	return rows
}

// Neighbourhood returns the ids within depth hops of the seeds, following
// edges in both directions. Seeds come first; unknown seeds are ignored.
func Neighbourhood(kg *KnowledgeGraph, seeds []string, depth int) []string {
	if len(seeds) == 0 || depth < 0 {
		return nil
	}

	visited := make(map[string]bool)
	var out, queue []string
	for _, id := range seeds {
		if _, ok := kg.ids[id]; ok && !visited[id] {
			visited[id] = true
			queue = append(queue, id)
			out = append(out, id)
		}
	}

	for d := 0; d < depth && len(queue) > 0; d++ {
		var next []string
		for _, id := range queue {
			around := append(kg.Successors(id), kg.Predecessors(id)...)
			for _, nid := range around {
				if !visited[nid] {
					visited[nid] = true
					next = append(next, nid)
					out = append(out, nid)
				}
			}
		}
		queue = next
	}
	return out
}
