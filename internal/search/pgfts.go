package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS searches edit_history with PostgreSQL full-text search.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx := context.Background()
	const where = `project_id::text = $1 AND fts @@ plainto_tsquery('english', $2)`

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM edit_history WHERE `+where, q.ProjectID, q.Text).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, project_id::text, user_id::text, action, object_type, coalesce(object_id, ''),
			ts_headline('english', coalesce(changes::text, '') || ' ' || coalesce(new_data::text, ''),
				plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30'),
			created_at
		FROM edit_history
		WHERE `+where+`
		ORDER BY ts_rank(fts, plainto_tsquery('english', $2)) DESC, created_at DESC
		LIMIT $3 OFFSET $4
	`, q.ProjectID, q.Text, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.UserID, &r.Action, &r.ObjectType, &r.ObjectID, &r.Snippet, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.CreatedAt = r.CreatedAt.UTC()
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadEditDocuments returns every edit for a full reindex.
func (p *PgFTS) LoadEditDocuments(ctx context.Context) ([]EditDocument, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, project_id::text, user_id::text, action, object_type, coalesce(object_id, ''),
			coalesce(changes::text, ''), coalesce(new_data::text, ''), created_at
		FROM edit_history
		ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("load edit history: %w", err)
	}
	defer rows.Close()

	docs := make([]EditDocument, 0)
	for rows.Next() {
		var doc EditDocument
		var changes, newData string
		var createdAt time.Time
		if err := rows.Scan(&doc.ID, &doc.ProjectID, &doc.UserID, &doc.Action, &doc.ObjectType, &doc.ObjectID, &changes, &newData, &createdAt); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		doc.Content = strings.TrimSpace(changes + " " + newData)
		doc.CreatedAt = createdAt.Unix()
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edit history: %w", err)
	}
	return docs, nil
}
