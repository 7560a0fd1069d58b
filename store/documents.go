package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Document represents a row in the documents table.
type Document struct {
	ID          int64  `json:"id"`
	RunID       string `json:"run_id"`
	Source      string `json:"source"`
	ContentHash string `json:"content_hash"`
	Content     string `json:"content,omitempty"`
	Tagger      string `json:"tagger"`
	CreatedAt   string `json:"created_at"`
}

// Mention represents a row in the mentions table. KBID is empty for
// mentions that were not linked.
type Mention struct {
	ID         int64   `json:"id"`
	DocumentID int64   `json:"document_id"`
	Text       string  `json:"text"`
	Label      string  `json:"label"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	KBID       string  `json:"kb_id,omitempty"`
	Score      float64 `json:"score"`
	Method     string  `json:"method,omitempty"`
}

// InsertDocument records a processed text. A text already stored (same
// content hash) is not inserted again: its existing id is returned with
// created set to false.
func (s *Store) InsertDocument(ctx context.Context, doc Document) (id int64, created bool, err error) {
	return insertDocument(ctx, s.db, doc)
}

// SaveProcessed stores a document with its mentions and relationships in a
// single transaction. Previous mentions and relationships of a duplicate
// text are replaced; on error nothing is written.
func (s *Store) SaveProcessed(ctx context.Context, doc Document, mentions []Mention, rels []Relationship) (id int64, created bool, err error) {
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		id, created, err = insertDocument(ctx, tx, doc)
		if err != nil {
			return err
		}
		if err := replaceMentions(ctx, tx, id, mentions); err != nil {
			return err
		}
		return replaceRelationships(ctx, tx, id, rels)
	})
	if err != nil {
		return 0, false, err
	}
	return id, created, nil
}

func insertDocument(ctx context.Context, q querier, doc Document) (id int64, created bool, err error) {
	if doc.ContentHash == "" {
		doc.ContentHash = ContentHash(doc.Content)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO documents (run_id, source, content_hash, content, tagger)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING
	`, doc.RunID, doc.Source, doc.ContentHash, doc.Content, doc.Tagger)
	if err != nil {
		return 0, false, fmt.Errorf("store.InsertDocument: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		id, err = res.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("store.InsertDocument: %w", err)
		}
		return id, true, nil
	}

	if err := q.QueryRowContext(ctx,
		"SELECT id FROM documents WHERE content_hash = ?", doc.ContentHash).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("store.InsertDocument: existing row: %w", err)
	}
	return id, false, nil
}

// GetDocument retrieves a document by ID, content included.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	d := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, source, content_hash, content, tagger, created_at
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.RunID, &d.Source, &d.ContentHash, &d.Content, &d.Tagger, &d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store.GetDocument %d: %w", id, notFound(err))
	}
	return d, nil
}

// ListDocuments returns all documents, oldest first, without content.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, source, content_hash, tagger, created_at
		FROM documents ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("store.ListDocuments: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.RunID, &d.Source, &d.ContentHash, &d.Tagger, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.ListDocuments: scanning: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a document and, by cascade, its mentions and
// relationships.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("store.DeleteDocument: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store.DeleteDocument %d: %w", id, ErrNotFound)
	}
	return nil
}

// ReplaceMentions stores the mentions of a document, replacing any previous
// set so reprocessing a text is idempotent.
func (s *Store) ReplaceMentions(ctx context.Context, docID int64, mentions []Mention) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return replaceMentions(ctx, tx, docID, mentions)
	})
}

func replaceMentions(ctx context.Context, q querier, docID int64, mentions []Mention) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM mentions WHERE document_id = ?", docID); err != nil {
		return fmt.Errorf("store.ReplaceMentions: clearing: %w", err)
	}
	stmt, err := q.PrepareContext(ctx, `
		INSERT INTO mentions (document_id, position, text, label, start_pos, end_pos, kb_id, score, method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store.ReplaceMentions: prepare: %w", err)
	}
	defer stmt.Close()

	for i, m := range mentions {
		var kbID sql.NullString
		if m.KBID != "" {
			kbID = sql.NullString{String: m.KBID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, docID, i, m.Text, m.Label, m.Start, m.End, kbID, m.Score, m.Method); err != nil {
			return fmt.Errorf("store.ReplaceMentions: mention %d: %w", i, err)
		}
	}
	return nil
}

// DocumentMentions returns the mentions of a document in text order.
func (s *Store) DocumentMentions(ctx context.Context, docID int64) ([]Mention, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, text, label, start_pos, end_pos, kb_id, score, method
		FROM mentions WHERE document_id = ? ORDER BY position
	`, docID)
	if err != nil {
		return nil, fmt.Errorf("store.DocumentMentions: %w", err)
	}
	defer rows.Close()

	var out []Mention
	for rows.Next() {
		var (
			m    Mention
			kbID sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Text, &m.Label, &m.Start, &m.End, &kbID, &m.Score, &m.Method); err != nil {
			return nil, fmt.Errorf("store.DocumentMentions: scanning: %w", err)
		}
		m.KBID = kbID.String
		out = append(out, m)
	}
	return out, rows.Err()
}

// DocumentEntities returns, per document, the distinct linked entity ids in
// first-mention order. Documents without links are omitted.
func (s *Store) DocumentEntities(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, kb_id
		FROM mentions
		WHERE kb_id IS NOT NULL
		GROUP BY document_id, kb_id
		ORDER BY document_id, MIN(position)
	`)
	if err != nil {
		return nil, fmt.Errorf("store.DocumentEntities: %w", err)
	}
	defer rows.Close()

	var (
		out   [][]string
		curID int64 = -1
	)
	for rows.Next() {
		var (
			docID int64
			kbID  string
		)
		if err := rows.Scan(&docID, &kbID); err != nil {
			return nil, fmt.Errorf("store.DocumentEntities: scanning: %w", err)
		}
		if docID != curID {
			out = append(out, nil)
			curID = docID
		}
		out[len(out)-1] = append(out[len(out)-1], kbID)
	}
	return out, rows.Err()
}
