// Package pagination extracts and validates the listing parameters of the
// inbox endpoint from URL query strings, enforcing defaults and a hard cap
// on page size.
package pagination

import (
	"net/url"
	"strconv"
	"strings"
)

// Params are the caller-supplied listing parameters. PageToken stays an
// opaque string here; the inbox service decodes and routes it.
type Params struct {
	Query     string
	PageToken string
	Limit     int64
}

const (
	// MaxLimit is the maximum number of messages per page.
	MaxLimit int64 = 100
	// DefaultLimit applies when the caller does not specify one.
	DefaultLimit int64 = 10
)

// FromQuery reads q, pageToken and limit from query values.
func FromQuery(q url.Values) Params {
	params := Params{
		Query:     strings.TrimSpace(q.Get("q")),
		PageToken: strings.TrimSpace(q.Get("pageToken")),
		Limit:     DefaultLimit,
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		if val, err := strconv.ParseInt(limitStr, 10, 64); err == nil && val > 0 {
			params.Limit = val
		}
	}
	if params.Limit > MaxLimit {
		params.Limit = MaxLimit
	}
	return params
}
