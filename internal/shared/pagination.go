package shared

import (
	"net/url"
	"strconv"
)

const (
	// DefaultLimit is applied when the caller does not ask for a page size.
	DefaultLimit = 50
	// MaxLimit caps any page size.
	MaxLimit = 500
)

// ClampLimit keeps limit within [1, MaxLimit], defaulting zero or negative values.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// ListParams is the limit/offset pair accepted by list endpoints.
type ListParams struct {
	Limit  int
	Offset int
}

// ParseListParams reads limit and offset from a query string.
func ParseListParams(q url.Values) ListParams {
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return ListParams{Limit: ClampLimit(limit), Offset: offset}
}
