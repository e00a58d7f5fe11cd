package search

import (
	"strconv"
	"strings"

	"kisscoffee/site/internal/settings"
)

// Result is a single menu item matching a search.
type Result struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

// Query describes a search request.
type Query struct {
	Text     string
	Category string // empty = all categories
	Limit    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a menu search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// MenuRecord is the data we index for a menu item.
type MenuRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

// RecordsFromMenu flattens a menu into index records in display order. Ids
// are the category slug and the item position.
func RecordsFromMenu(menu settings.Menu) []MenuRecord {
	var records []MenuRecord
	for _, category := range menu.Categories() {
		slug := Slug(category)
		for i, item := range menu[category] {
			records = append(records, MenuRecord{
				ID:       slug + "-" + strconv.Itoa(i),
				Name:     item.Name,
				Price:    item.Price,
				Category: category,
			})
		}
	}
	return records
}

// Slug lowercases s and keeps only letters and digits, joining words with "-".
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	if b.Len() == 0 {
		return "category"
	}
	return b.String()
}

func (r MenuRecord) result() Result {
	return Result{ID: r.ID, Name: r.Name, Price: r.Price, Category: r.Category}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
