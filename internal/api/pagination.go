package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/ignite/autolink/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// listWindow is the limit/offset pair a list handler passes to its service.
type listWindow struct {
	Limit  int
	Offset int
}

// ListResponse is the envelope every list endpoint returns. NextOffset is
// set while more rows remain.
type ListResponse[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	NextOffset *int `json:"next_offset,omitempty"`
}

// parseListWindow reads limit and either offset or a 1-based page. offset
// wins when both are given. A missing or zero limit takes the default and a
// larger one is clamped to maxListLimit.
func parseListWindow(r *http.Request) (listWindow, error) {
	q := r.URL.Query()
	limit, err := queryInt(q, "limit")
	if err != nil {
		return listWindow{}, err
	}
	switch {
	case limit == 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	if q.Has("offset") {
		offset, err := queryInt(q, "offset")
		if err != nil {
			return listWindow{}, err
		}
		return listWindow{Limit: limit, Offset: offset}, nil
	}
	page, err := queryInt(q, "page")
	if err != nil {
		return listWindow{}, err
	}
	if page < 1 {
		page = 1
	}
	return listWindow{Limit: limit, Offset: (page - 1) * limit}, nil
}

func queryInt(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(key, "must be a non-negative integer")
	}
	return n, nil
}

func newListResponse[T any](items []T, win listWindow, total int) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	resp := ListResponse[T]{Items: items, Total: total, Limit: win.Limit, Offset: win.Offset}
	if next := win.Offset + len(items); len(items) > 0 && next < total {
		resp.NextOffset = &next
	}
	return resp
}
