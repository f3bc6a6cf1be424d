package search

import (
	"encoding/json"
	"strings"
	"time"

	"collab/api/internal/store"
)

// EditDocument is what we index for one edit_history row.
type EditDocument struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	UserID     string `json:"userId"`
	Action     string `json:"action"`
	ObjectType string `json:"objectType"`
	ObjectID   string `json:"objectId"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"createdAt"`
}

func DocumentFromRecord(record store.EditRecord) EditDocument {
	doc := EditDocument{
		ID:         record.ID,
		ProjectID:  record.ProjectID,
		UserID:     record.UserID,
		Action:     record.Action,
		ObjectType: record.ObjectType,
		CreatedAt:  record.CreatedAt.Unix(),
	}
	if record.ObjectID != nil {
		doc.ObjectID = *record.ObjectID
	}
	doc.Content = flattenContent(record.Changes, record.NewData)
	return doc
}

func flattenContent(parts ...json.RawMessage) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if len(part) == 0 || string(part) == "null" {
			continue
		}
		values = append(values, string(part))
	}
	return strings.Join(values, " ")
}

// Query searches one project's edit history.
type Query struct {
	ProjectID string
	Text      string
	Limit     int
	Offset    int
}

type Result struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	UserID     string    `json:"user_id"`
	Action     string    `json:"action"`
	ObjectType string    `json:"object_type"`
	ObjectID   string    `json:"object_id,omitempty"`
	Snippet    string    `json:"snippet"`
	CreatedAt  time.Time `json:"created_at"`
}

type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

type Indexer interface {
	IndexEdit(doc EditDocument) error
	IndexEdits(docs []EditDocument) error
}
