package search

import (
	"strings"
	"sync"
)

// Memory answers searches from the last indexed menu held in process. It is
// the fallback when Meilisearch is not configured or unhealthy.
type Memory struct {
	mu      sync.RWMutex
	records []MenuRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

// Replace swaps the indexed records.
func (m *Memory) Replace(records []MenuRecord) {
	cloned := append([]MenuRecord(nil), records...)
	m.mu.Lock()
	m.records = cloned
	m.mu.Unlock()
}

// Healthy always returns true.
func (m *Memory) Healthy() bool {
	return true
}

// Search matches every word of the query against item names and categories,
// case-insensitively.
func (m *Memory) Search(q Query) ([]Result, int, error) {
	words := strings.Fields(strings.ToLower(q.Text))
	limit := normalizeLimit(q.Limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Result, 0)
	total := 0
	for _, record := range m.records {
		if q.Category != "" && record.Category != q.Category {
			continue
		}
		if !matchesAll(words, strings.ToLower(record.Name+" "+record.Category)) {
			continue
		}
		total++
		if len(results) < limit {
			results = append(results, record.result())
		}
	}
	return results, total, nil
}

func matchesAll(words []string, haystack string) bool {
	for _, word := range words {
		if !strings.Contains(haystack, word) {
			return false
		}
	}
	return true
}
