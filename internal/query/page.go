package query

import (
	"strconv"
	"strings"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	MaxPage      = 1000
)

type Page struct {
	Number int
	Limit  int
}

// ParsePage clamps client pagination: page to [1, MaxPage], limit to [1, MaxLimit].
// Unparseable or non-positive values take the defaults.
func ParsePage(page, limit string) Page {
	p := Page{Number: 1, Limit: DefaultLimit}

	if v, err := strconv.Atoi(strings.TrimSpace(page)); err == nil && v > 0 {
		p.Number = min(v, MaxPage)
	}
	if v, err := strconv.Atoi(strings.TrimSpace(limit)); err == nil && v > 0 {
		p.Limit = min(v, MaxLimit)
	}
	return p
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

func (p Page) Paginate(total int) Pagination {
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{
		Page:       p.Number,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
		HasNext:    p.Number < pages,
		HasPrev:    p.Number > 1,
	}
}
