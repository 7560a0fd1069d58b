package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Relationship represents a row in the relationships table.
type Relationship struct {
	ID           int64   `json:"id"`
	DocumentID   int64   `json:"document_id,omitempty"`
	SourceKBID   string  `json:"source"`
	TargetKBID   string  `json:"target"`
	RelationType string  `json:"relation_type"`
	Weight       float64 `json:"weight"`
	Sentence     string  `json:"sentence,omitempty"`
}

// PairCount is an unordered entity pair with the number of documents in
// which both appear. A sorts before B.
type PairCount struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Count int    `json:"count"`
}

// Community represents a row in the communities table.
type Community struct {
	ID        int64    `json:"id"`
	Level     int      `json:"level"`
	EntityIDs []string `json:"entity_ids"`
}

// ReplaceRelationships stores the relations extracted from a document,
// replacing any previous set. Both endpoints must be set.
func (s *Store) ReplaceRelationships(ctx context.Context, docID int64, rels []Relationship) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceRelationships(ctx, tx, docID, rels)
	})
}

func replaceRelationships(ctx context.Context, q querier, docID int64, rels []Relationship) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM relationships WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("store.ReplaceRelationships: clearing: %w", err)
	}
	for i, r := range rels {
		if r.SourceKBID == "" || r.TargetKBID == "" {
			return fmt.Errorf("store.ReplaceRelationships: relationship %d: empty endpoint", i)
		}
		weight := r.Weight
		if weight == 0 {
			weight = 1
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO relationships (document_id, source_kb_id, target_kb_id, relation_type, weight, sentence)
			VALUES (?, ?, ?, ?, ?, ?)
		`, docID, r.SourceKBID, r.TargetKBID, r.RelationType, weight, r.Sentence); err != nil {
			return fmt.Errorf("store.ReplaceRelationships: %s-%s: %w", r.SourceKBID, r.TargetKBID, err)
		}
	}
	return nil
}

// AllRelationships returns every stored relationship in insertion order.
func (s *Store) AllRelationships(ctx context.Context) ([]Relationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(document_id, 0), source_kb_id, target_kb_id, relation_type, weight, COALESCE(sentence, '')
		FROM relationships ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store.AllRelationships: %w", err)
	}
	defer rows.Close()

	var rels []Relationship
	for rows.Next() {
		var r Relationship
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.SourceKBID, &r.TargetKBID,
			&r.RelationType, &r.Weight, &r.Sentence); err != nil {
			return nil, fmt.Errorf("store.AllRelationships: scanning: %w", err)
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

// CoOccurrence counts, for each pair of distinct linked entities, the
// documents mentioning both. Results are ordered by count, then ids.
func (s *Store) CoOccurrence(ctx context.Context) ([]PairCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH linked AS (
			SELECT DISTINCT document_id, kb_id FROM mentions WHERE kb_id IS NOT NULL
		)
		SELECT a.kb_id, b.kb_id, COUNT(*) AS n
		FROM linked a
		JOIN linked b ON a.document_id = b.document_id AND a.kb_id < b.kb_id
		GROUP BY a.kb_id, b.kb_id
		ORDER BY n DESC, a.kb_id, b.kb_id
	`)
	if err != nil {
		return nil, fmt.Errorf("store.CoOccurrence: %w", err)
	}
	defer rows.Close()

	var out []PairCount
	for rows.Next() {
		var p PairCount
		if err := rows.Scan(&p.A, &p.B, &p.Count); err != nil {
			return nil, fmt.Errorf("store.CoOccurrence: scanning: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceCommunities swaps the stored community set for cs.
func (s *Store) ReplaceCommunities(ctx context.Context, cs []Community) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM communities"); err != nil {
			return fmt.Errorf("store.ReplaceCommunities: clearing: %w", err)
		}
		for _, c := range cs {
			ids, err := json.Marshal(c.EntityIDs)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO communities (level, entity_ids) VALUES (?, ?)", c.Level, string(ids)); err != nil {
				return fmt.Errorf("store.ReplaceCommunities: %w", err)
			}
		}
		return nil
	})
}

// Communities returns stored communities ordered by level then id.
func (s *Store) Communities(ctx context.Context) ([]Community, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, level, entity_ids FROM communities ORDER BY level, id")
	if err != nil {
		return nil, fmt.Errorf("store.Communities: %w", err)
	}
	defer rows.Close()

	var out []Community
	for rows.Next() {
		var (
			c   Community
			raw string
		)
		if err := rows.Scan(&c.ID, &c.Level, &raw); err != nil {
			return nil, fmt.Errorf("store.Communities: scanning: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &c.EntityIDs); err != nil {
			return nil, fmt.Errorf("store.Communities: decoding ids: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
