package pagination

import (
	"net/url"
	"testing"
)

func TestFromQueryDefaults(t *testing.T) {
	params := FromQuery(url.Values{})
	if params.Query != "" || params.PageToken != "" {
		t.Errorf("params = %+v; want empty query and token", params)
	}
	if params.Limit != DefaultLimit {
		t.Errorf("limit = %d; want %d", params.Limit, DefaultLimit)
	}
}

func TestFromQueryPassthrough(t *testing.T) {
	q := url.Values{}
	q.Set("q", " from:alice ")
	q.Set("pageToken", " tok123 ")
	q.Set("limit", "25")
	params := FromQuery(q)
	if params.Query != "from:alice" {
		t.Errorf("query = %q", params.Query)
	}
	if params.PageToken != "tok123" {
		t.Errorf("pageToken = %q", params.PageToken)
	}
	if params.Limit != 25 {
		t.Errorf("limit = %d; want 25", params.Limit)
	}
}

func TestFromQueryLimitBounds(t *testing.T) {
	cases := []struct {
		limit string
		want  int64
	}{
		{"500", MaxLimit},
		{"100", MaxLimit},
		{"0", DefaultLimit},
		{"-3", DefaultLimit},
		{"nope", DefaultLimit},
	}
	for _, tc := range cases {
		q := url.Values{}
		q.Set("limit", tc.limit)
		if got := FromQuery(q).Limit; got != tc.want {
			t.Errorf("limit=%q -> %d; want %d", tc.limit, got, tc.want)
		}
	}
}
