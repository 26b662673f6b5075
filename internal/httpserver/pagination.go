package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	// DefaultPageSize is the default number of items per page.
	DefaultPageSize = 50
	// MaxPageSize is the maximum allowed page size.
	MaxPageSize = 100
)

// ParsePageParams extracts the limit/offset pagination parameters shared by
// the tenant-facing and admin list endpoints. Invalid or negative values
// fall back to the default rather than erroring, and a limit above
// MaxPageSize is clamped to MaxPageSize.
func ParsePageParams(r *http.Request) (limit, offset int) {
	limit, offset = DefaultPageSize, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

// ParseTimeWindow extracts the optional "from"/"to" RFC 3339 query
// parameters shared by the outbound and inbound listing endpoints.
func ParseTimeWindow(r *http.Request) (from, to *time.Time, err error) {
	if v := r.URL.Query().Get("from"); v != "" {
		t, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("from must be an RFC3339 timestamp")
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, parseErr := time.Parse(time.RFC3339, v)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("to must be an RFC3339 timestamp")
		}
		to = &t
	}
	return from, to, nil
}
