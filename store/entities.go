package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/brunobiangulo/nelgraph/kb"
)

// SaveKB writes k to the entities tables. Entities missing from k are removed
// along with their vectors; row ids of surviving entities are kept.
func (s *Store) SaveKB(ctx context.Context, k *kb.KB) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		keep := make([]interface{}, 0, k.Len())
		for pos, e := range k.Entities() {
			var id int64
			err := tx.QueryRowContext(ctx, `
				INSERT INTO entities (kb_id, name, entity_type, description, wikipedia, position)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(kb_id) DO UPDATE SET
					name = excluded.name,
					entity_type = excluded.entity_type,
					description = excluded.description,
					wikipedia = excluded.wikipedia,
					position = excluded.position
				RETURNING id
			`, e.ID, e.Name, e.Type, e.Description, e.Wikipedia, pos).Scan(&id)
			if err != nil {
				return fmt.Errorf("store.SaveKB: upserting %s: %w", e.ID, err)
			}
			keep = append(keep, e.ID)

			if _, err := tx.ExecContext(ctx, "DELETE FROM entity_aliases WHERE entity_id = ?", id); err != nil {
				return fmt.Errorf("store.SaveKB: clearing aliases: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM entity_links WHERE entity_id = ?", id); err != nil {
				return fmt.Errorf("store.SaveKB: clearing links: %w", err)
			}
			for i, alias := range e.Aliases {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO entity_aliases (entity_id, position, alias) VALUES (?, ?, ?)",
					id, i, alias); err != nil {
					return fmt.Errorf("store.SaveKB: alias %q: %w", alias, err)
				}
			}
			for i, target := range e.Linked {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO entity_links (entity_id, position, target_kb_id) VALUES (?, ?, ?)",
					id, i, target); err != nil {
					return fmt.Errorf("store.SaveKB: link %s: %w", target, err)
				}
			}
		}

		stale := "SELECT id FROM entities"
		if len(keep) > 0 {
			stale += " WHERE kb_id NOT IN (" + placeholders(len(keep)) + ")"
		}
		rows, err := tx.QueryContext(ctx, stale, keep...)
		if err != nil {
			return fmt.Errorf("store.SaveKB: finding stale entities: %w", err)
		}
		var staleIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("store.SaveKB: scanning stale entity: %w", err)
			}
			staleIDs = append(staleIDs, id)
		}
		rows.Close()
		for _, id := range staleIDs {
			if _, err := tx.ExecContext(ctx, "DELETE FROM vec_entities WHERE entity_id = ?", id); err != nil {
				return fmt.Errorf("store.SaveKB: dropping stale vector: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ?", id); err != nil {
				return fmt.Errorf("store.SaveKB: dropping stale entity: %w", err)
			}
		}
		return nil
	})
}

// LoadKB rebuilds the knowledge base in its saved order. It returns
// ErrNotFound when no entities have been saved.
func (s *Store) LoadKB(ctx context.Context) (*kb.KB, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kb_id, name, entity_type, description, wikipedia
		FROM entities ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("store.LoadKB: %w", err)
	}

	var (
		entities []kb.Entity
		rowIDs   = make(map[int64]int)
	)
	for rows.Next() {
		var (
			rowID int64
			e     kb.Entity
		)
		if err := rows.Scan(&rowID, &e.ID, &e.Name, &e.Type, &e.Description, &e.Wikipedia); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store.LoadKB: scanning: %w", err)
		}
		rowIDs[rowID] = len(entities)
		entities = append(entities, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.LoadKB: %w", err)
	}
	if len(entities) == 0 {
		return nil, ErrNotFound
	}

	if err := s.loadLists(ctx, "SELECT entity_id, alias FROM entity_aliases ORDER BY entity_id, position", rowIDs, func(i int, v string) {
		entities[i].Aliases = append(entities[i].Aliases, v)
	}); err != nil {
		return nil, fmt.Errorf("store.LoadKB: aliases: %w", err)
	}
	if err := s.loadLists(ctx, "SELECT entity_id, target_kb_id FROM entity_links ORDER BY entity_id, position", rowIDs, func(i int, v string) {
		entities[i].Linked = append(entities[i].Linked, v)
	}); err != nil {
		return nil, fmt.Errorf("store.LoadKB: links: %w", err)
	}

	return kb.New(entities...)
}

func (s *Store) loadLists(ctx context.Context, query string, rowIDs map[int64]int, add func(int, string)) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			rowID int64
			v     string
		)
		if err := rows.Scan(&rowID, &v); err != nil {
			return err
		}
		if i, ok := rowIDs[rowID]; ok {
			add(i, v)
		}
	}
	return rows.Err()
}

// Neighbor is an entity returned by a vector search.
type Neighbor struct {
	KBID     string  `json:"kb_id"`
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	Score    float64 `json:"score"`
}

// UpsertEmbedding stores the vector for an entity.
func (s *Store) UpsertEmbedding(ctx context.Context, kbID string, vec []float32) error {
	if len(vec) != s.embeddingDim {
		return fmt.Errorf("store.UpsertEmbedding: vector has %d dimensions, want %d", len(vec), s.embeddingDim)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var id int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM entities WHERE kb_id = ?", kbID).Scan(&id); err != nil {
			return fmt.Errorf("store.UpsertEmbedding: %s: %w", kbID, notFound(err))
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM vec_entities WHERE entity_id = ?", id); err != nil {
			return fmt.Errorf("store.UpsertEmbedding: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO vec_entities (entity_id, embedding) VALUES (?, ?)",
			id, serializeFloat32(vec)); err != nil {
			return fmt.Errorf("store.UpsertEmbedding: %w", err)
		}
		return nil
	})
}

// NearestEntities returns the k entities whose vectors are closest to vec by
// cosine distance. Score is 1 - distance.
func (s *Store) NearestEntities(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.kb_id, e.name, v.distance
		FROM vec_entities v
		JOIN entities e ON e.id = v.entity_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(vec), k)
	if err != nil {
		return nil, fmt.Errorf("store.NearestEntities: %w", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.KBID, &n.Name, &n.Distance); err != nil {
			return nil, fmt.Errorf("store.NearestEntities: scanning: %w", err)
		}
		n.Score = 1.0 - n.Distance
		out = append(out, n)
	}
	return out, rows.Err()
}
