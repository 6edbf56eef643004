package request

import (
	"net/http"
	"strconv"
	"strings"
)

// Pagination holds parsed pagination parameters. Cursor is the folder of
// the last job on the previous page.
type Pagination struct {
	Limit  int
	Cursor string
}

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ParsePagination extracts limit and cursor from query parameters.
func ParsePagination(r *http.Request) Pagination {
	p := Pagination{
		Limit:  DefaultLimit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			p.Limit = limit
		}
	}

	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}

	return p
}
