package kb

import (
	"fmt"
	"strings"
)

// KB is an ordered, ID-keyed entity table. Iteration follows insertion order
// so every report built from it is deterministic.
type KB struct {
	order []string
	byID  map[string]Entity
}

// New builds a KB from the given entities. It fails on the first invalid or
// duplicate record.
func New(entities ...Entity) (*KB, error) {
	k := &KB{byID: make(map[string]Entity, len(entities))}
	for _, e := range entities {
		if err := k.Add(e); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// Add appends an entity.
func (k *KB) Add(e Entity) error {
	e.ID = strings.TrimSpace(e.ID)
	e.Name = strings.TrimSpace(e.Name)
	if e.ID == "" || e.Name == "" {
		return fmt.Errorf("%w: %+v", ErrInvalidEntity, e)
	}
	if _, ok := k.byID[e.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ID)
	}
	if k.byID == nil {
		k.byID = make(map[string]Entity)
	}
	k.byID[e.ID] = e
	k.order = append(k.order, e.ID)
	return nil
}

// Get returns the entity with the given ID.
func (k *KB) Get(id string) (Entity, bool) {
	e, ok := k.byID[id]
	return e, ok
}

// Has reports whether id is present.
func (k *KB) Has(id string) bool {
	_, ok := k.byID[id]
	return ok
}

// IDs returns entity IDs in insertion order.
func (k *KB) IDs() []string {
	out := make([]string, len(k.order))
	copy(out, k.order)
	return out
}

// Entities returns all entities in insertion order.
func (k *KB) Entities() []Entity {
	out := make([]Entity, 0, len(k.order))
	for _, id := range k.order {
		out = append(out, k.byID[id])
	}
	return out
}

// Len returns the number of entities.
func (k *KB) Len() int {
	return len(k.order)
}

// Validate reports linked references that point outside the table. Dangling
// links are tolerated everywhere else (they are simply skipped), so this is
// advisory only.
func (k *KB) Validate() []string {
	var problems []string
	for _, id := range k.order {
		for _, linked := range k.byID[id].Linked {
			if !k.Has(linked) {
				problems = append(problems, fmt.Sprintf("%s links to unknown entity %s", id, linked))
			}
			if linked == id {
				problems = append(problems, fmt.Sprintf("%s links to itself", id))
			}
		}
	}
	return problems
}
