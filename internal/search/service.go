package search

import (
	"context"
	"log/slog"

	"collab/api/internal/store"
)

const (
	EngineMeili = "meilisearch"
	EnginePgFTS = "pgfts"
)

type editLoader interface {
	LoadEditDocuments(ctx context.Context) ([]EditDocument, error)
}

// Service tries Meilisearch first and falls back to Postgres FTS.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	loader   editLoader
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil when Meilisearch
// is not configured.
func NewService(m *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger.With("component", "search")}
	if m != nil {
		s.primary = m
		s.indexer = m
	}
	if pgfts != nil {
		s.fallback = pgfts
		s.loader = pgfts
	}
	return s
}

func (s *Service) Search(q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EngineMeili}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", "error", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text, Engine: EnginePgFTS}
	}
	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.logger.Error("pgfts error", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text, Engine: EnginePgFTS}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Engine: EnginePgFTS}
}

// Healthy reports whether the primary engine is serving queries.
func (s *Service) Healthy() bool {
	return s.primary != nil && s.primary.Healthy()
}

// IndexEdit pushes a recorded edit to Meilisearch without waiting.
func (s *Service) IndexEdit(record store.EditRecord) {
	if s.indexer == nil || !s.Healthy() {
		return
	}
	doc := DocumentFromRecord(record)
	go func() {
		if err := s.indexer.IndexEdit(doc); err != nil {
			s.logger.Warn("index edit failed", "edit_id", doc.ID, "error", err)
		}
	}()
}

// ReindexAllFromPG reloads edit_history into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.indexer == nil || s.loader == nil || !s.Healthy() {
		return
	}
	docs, err := s.loader.LoadEditDocuments(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", "error", err)
		return
	}
	if err := s.indexer.IndexEdits(docs); err != nil {
		s.logger.Error("reindex edits failed", "count", len(docs), "error", err)
		return
	}
	s.logger.Info("reindexed edit history", "count", len(docs))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
