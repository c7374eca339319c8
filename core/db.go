package core

import (
	"math"
	"strconv"
)

const maxPerPage = 100

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// Page selects a window of a result set. A zero Page means "everything".
type Page struct {
	Number  int
	PerPage int
}

// NewPage parses the page & per_page query values, falling back to the first page of `defaultPerPage` items.
func NewPage(page, perPage string, defaultPerPage int) Page {
	p := Page{Number: 1, PerPage: defaultPerPage}
	if n, err := strconv.Atoi(page); err == nil && n > 0 {
		p.Number = n
	}
	if n, err := strconv.Atoi(perPage); err == nil && n > 0 {
		p.PerPage = n
	}
	if p.PerPage > maxPerPage {
		p.PerPage = maxPerPage
	}
	return p
}

func (p Page) IsZero() bool { return p.PerPage <= 0 }

func (p Page) Limit() int { return p.PerPage }

func (p Page) Offset() int {
	if p.Number <= 1 {
		return 0
	}
	return (p.Number - 1) * p.PerPage
}

// Slice bounds a slice of `n` items to the Page.
func (p Page) Slice(n int) (start, end int) {
	if p.IsZero() {
		return 0, n
	}
	start = p.Offset()
	if start > n {
		start = n
	}
	end = start + p.PerPage
	if end > n {
		end = n
	}
	return start, end
}

type PageInfo struct {
	Total       int `json:"total"`
	Pages       int `json:"pages"`
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
}

func NewPageInfo(p Page, total int) PageInfo {
	info := PageInfo{Total: total, CurrentPage: p.Number, PerPage: p.PerPage}
	if p.PerPage > 0 {
		info.Pages = int(math.Ceil(float64(total) / float64(p.PerPage)))
	}
	return info
}
