package kb

// NameIndex maps every entity name and alias to the owning entity ID.
type NameIndex struct {
	keys []string
	ids  map[string]string
}

// BuildNameIndex indexes names and aliases in KB order. When two entities
// share a key the later one wins, but the key keeps its first position.
func BuildNameIndex(k *KB) *NameIndex {
	idx := &NameIndex{ids: make(map[string]string)}
	for _, e := range k.Entities() {
		for _, name := range e.Names() {
			idx.put(name, e.ID)
		}
	}
	return idx
}

func (idx *NameIndex) put(key, id string) {
	if key == "" {
		return
	}
	if _, ok := idx.ids[key]; !ok {
		idx.keys = append(idx.keys, key)
	}
	idx.ids[key] = id
}

// Lookup is an exact, case-sensitive key lookup.
func (idx *NameIndex) Lookup(name string) (string, bool) {
	id, ok := idx.ids[name]
	return id, ok
}

// Keys returns indexed keys in build order.
func (idx *NameIndex) Keys() []string {
	out := make([]string, len(idx.keys))
	copy(out, idx.keys)
	return out
}

// Len returns the number of distinct keys.
func (idx *NameIndex) Len() int {
	return len(idx.keys)
}

// Best returns the key scoring highest against name under WRatio, provided
// the score reaches cutoff. Ties keep the earliest key.
func (idx *NameIndex) Best(name string, cutoff float64) (key string, score float64, ok bool) {
	return idx.BestBy(name, cutoff, WRatio)
}

// BestBy is Best with an explicit scorer.
func (idx *NameIndex) BestBy(name string, cutoff float64, scorer Scorer) (key string, score float64, ok bool) {
	q := Normalize(name)
	if q == "" {
		return "", 0, false
	}
	for _, k := range idx.keys {
		s := scorer(q, Normalize(k))
		if s >= cutoff && s > score {
			key, score, ok = k, s, true
		}
	}
	return key, score, ok
}
