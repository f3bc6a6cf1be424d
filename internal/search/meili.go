package search

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxEditHistory = "collab_edit_history"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	logger  *slog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili connects and configures the edit history index. An unreachable
// server is not an error: the health loop keeps probing and search falls
// back until it recovers.
func NewMeili(url, apiKey string, logger *slog.Logger) *Meili {
	return newMeili(meili.New(url, meili.WithAPIKey(apiKey)), logger, 10*time.Second)
}

func newMeili(client meili.ServiceManager, logger *slog.Logger, healthEvery time.Duration) *Meili {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Meili{
		client: client,
		logger: logger.With("component", "meilisearch"),
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		m.logger.Warn("meilisearch unavailable", "error", err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop(healthEvery)
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxEditHistory,
		PrimaryKey: "id",
	}); err != nil {
		m.logger.Debug("create index (may already exist)", "index", idxEditHistory, "error", err)
	}

	index := m.client.Index(idxEditHistory)
	filterable := []interface{}{"projectId", "userId", "action", "objectType"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", "index", idxEditHistory, "error", err)
	}
	searchable := []string{"content", "action", "objectType", "objectId"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", "index", idxEditHistory, "error", err)
	}
}

func (m *Meili) healthLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	request := &meili.SearchRequest{
		IndexUID:              idxEditHistory,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"content"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		Filter:                []string{fmt.Sprintf("projectId = %q", q.ProjectID)},
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{request},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:         decodeString(hit, "id"),
		ProjectID:  decodeString(hit, "projectId"),
		UserID:     decodeString(hit, "userId"),
		Action:     decodeString(hit, "action"),
		ObjectType: decodeString(hit, "objectType"),
		ObjectID:   decodeString(hit, "objectId"),
	}
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content"))
	if raw, ok := hit["createdAt"]; ok {
		var unix int64
		if err := json.Unmarshal(raw, &unix); err == nil {
			r.CreatedAt = time.Unix(unix, 0).UTC()
		}
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func (m *Meili) IndexEdit(doc EditDocument) error {
	_, err := m.client.Index(idxEditHistory).AddDocuments([]EditDocument{doc}, nil)
	return err
}

func (m *Meili) IndexEdits(docs []EditDocument) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEditHistory).AddDocuments(docs, nil)
	return err
}
