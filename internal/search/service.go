package search

import (
	"log/slog"

	"kisscoffee/site/internal/settings"
)

// Service is the facade that tries Meilisearch first and falls back to the
// in-memory index.
type Service struct {
	meili  *Meili
	memory *Memory
	logger *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, logger *slog.Logger) *Service {
	return &Service{meili: meili, memory: NewMemory(), logger: logger}
}

// Search tries Meilisearch if healthy, otherwise falls back to memory.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("search: meilisearch error, falling back to memory", "error", err)
	}

	results, total, err := s.memory.Search(q)
	if err != nil {
		s.logger.Error("search: memory search", "error", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexMenu replaces the indexed menu. The in-memory index is updated at
// once; Meilisearch is updated fire-and-forget.
func (s *Service) IndexMenu(menu settings.Menu) {
	records := RecordsFromMenu(menu)
	s.memory.Replace(records)
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.ReplaceMenu(records); err != nil {
			s.logger.Warn("search: index menu", "items", len(records), "error", err)
		}
	}()
}

// Close stops background work.
func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
