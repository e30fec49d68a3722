package roster

import (
	"fmt"

	"raffle/internal/models"
)

// Page is one screen of the roster list.
type Page struct {
	Index      int            `json:"index"`
	TotalPages int            `json:"totalPages"`
	PerPage    int            `json:"perPage"`
	Entries    []models.Entry `json:"entries"`
}

// TotalPages is ceil(len/perPage). An empty pool has no pages.
func (p *Pool) TotalPages(perPage int) (int, error) {
	if perPage <= 0 {
		return 0, fmt.Errorf("entries per page %d: %w", perPage, models.ErrInvalidCount)
	}
	return pageCount(p.Len(), perPage), nil
}

func pageCount(n, perPage int) int {
	pages := n / perPage
	if n%perPage != 0 {
		pages++
	}
	return pages
}

// Page returns the entries shown on the zero-based page index.
// An index past the end yields an empty page rather than an error.
func (p *Pool) Page(index, perPage int) (Page, error) {
	if perPage <= 0 {
		return Page{}, fmt.Errorf("entries per page %d: %w", perPage, models.ErrInvalidCount)
	}
	if index < 0 {
		index = 0
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.entries)
	page := Page{
		Index:      index,
		TotalPages: pageCount(n, perPage),
		PerPage:    perPage,
		Entries:    []models.Entry{},
	}
	if index >= page.TotalPages {
		return page, nil
	}
	start := index * perPage
	end := min(start+perPage, n)
	page.Entries = append(page.Entries, p.entries[start:end]...)
	return page, nil
}
