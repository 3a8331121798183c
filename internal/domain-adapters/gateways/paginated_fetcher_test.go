package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// pageServer serves the given page bodies in order and records request bodies
type pageServer struct {
	pages    []func(w http.ResponseWriter)
	requests []serviceRequest
	auth     []string
}

func (s *pageServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.requests = append(s.requests, req)
	s.auth = append(s.auth, r.Header.Get("Authorization"))

	i := len(s.requests) - 1
	if i >= len(s.pages) {
		http.Error(w, "unexpected page", http.StatusTeapot)
		return
	}
	s.pages[i](w)
}

func jsonPage(body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func webAppPage(firstID, count int, hasMore any, lastID string) func(w http.ResponseWriter) {
	rows := make([]string, 0, count)
	for id := firstID; id < firstID+count; id++ {
		rows = append(rows, fmt.Sprintf(`{"WebApp":{"id":%d,"name":"app-%d"}}`, id, id))
	}
	more, _ := json.Marshal(hasMore)
	last := ""
	if lastID != "" {
		last = fmt.Sprintf(`,"lastId":%s`, lastID)
	}
	return jsonPage(fmt.Sprintf(`{"ServiceResponse":{"responseCode":"SUCCESS","count":%d,"hasMoreRecords":%s%s,"data":[%s]}}`,
		count, more, last, strings.Join(rows, ",")))
}

func newTestFetcher(t *testing.T, s *pageServer) *PaginatedFetcher {
	t.Helper()
	server := httptest.NewServer(s)
	t.Cleanup(server.Close)
	return NewPaginatedFetcher(server.URL, NewBasicAuthTokenProvider("u", "p"), server.Client(), nil)
}

func TestPaginatedFetcher_TwoPages(t *testing.T) {
	s := &pageServer{pages: []func(http.ResponseWriter){
		webAppPage(1, 100, "true", "100"),
		webAppPage(101, 5, "false", ""),
	}}
	fetcher := newTestFetcher(t, s)

	rows, err := fetcher.FetchAll(context.Background(), PageRequest{
		Path:     "/search/was/webapp",
		Criteria: []Criterion{{Field: "name", Operator: "CONTAINS", Value: "app"}},
	})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}

	if len(s.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(s.requests))
	}
	if len(rows) != 105 {
		t.Fatalf("rows = %d, want 105", len(rows))
	}
	if got := entities.TextAt(rows[104], "WebApp", "id").OrElse(""); got != "105" {
		t.Errorf("last row id = %s, want 105", got)
	}

	first := s.requests[0].ServiceRequest
	if first.Preferences.LimitResults != "100" || first.Preferences.Verbose != "true" {
		t.Errorf("preferences = %+v, want verbose true, limitResults 100", first.Preferences)
	}
	if len(first.Filters.Criteria) != 1 {
		t.Errorf("first page criteria = %+v, want only the static criterion", first.Filters.Criteria)
	}

	second := s.requests[1].ServiceRequest.Filters.Criteria
	want := []Criterion{
		{Field: "name", Operator: "CONTAINS", Value: "app"},
		{Field: "id", Operator: "GREATER", Value: "100"},
	}
	if len(second) != len(want) {
		t.Fatalf("second page criteria = %+v, want %+v", second, want)
	}
	for i := range want {
		if second[i] != want[i] {
			t.Errorf("second page criterion %d = %+v, want %+v", i, second[i], want[i])
		}
	}

	for i, a := range s.auth {
		if a != "Basic dTpw" {
			t.Errorf("request %d Authorization = %q, want Basic dTpw", i, a)
		}
	}
}

func TestPaginatedFetcher_BooleanHasMore(t *testing.T) {
	s := &pageServer{pages: []func(http.ResponseWriter){
		webAppPage(1, 2, true, "2"),
		webAppPage(3, 1, false, ""),
	}}
	fetcher := newTestFetcher(t, s)

	rows, err := fetcher.FetchAll(context.Background(), PageRequest{Path: "/search/was/webapp", PageSize: 2})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("rows = %d, want 3", len(rows))
	}
	if s.requests[0].ServiceRequest.Filters != nil {
		t.Errorf("first page filters = %+v, want none", s.requests[0].ServiceRequest.Filters)
	}
}

func TestPaginatedFetcher_CustomCursorAndEnvelope(t *testing.T) {
	s := &pageServer{pages: []func(http.ResponseWriter){
		jsonPage(`{"Result":{"more":true,"cursor":"20","items":[{"findingId":10},{"findingId":20}]}}`),
		jsonPage(`{"Result":{"more":false,"items":[{"findingId":30}]}}`),
	}}
	fetcher := newTestFetcher(t, s)

	rows, err := fetcher.FetchAll(context.Background(), PageRequest{
		Path:        "/search/was/finding",
		CursorField: "findingId",
		Envelope:    &PageEnvelope{Response: "Result", Data: "items", HasMore: "more", LastID: "cursor"},
	})
	if err != nil {
		t.Fatalf("FetchAll() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	want := Criterion{Field: "findingId", Operator: "GREATER", Value: "20"}
	second := s.requests[1].ServiceRequest.Filters
	if second == nil || len(second.Criteria) != 1 || second.Criteria[0] != want {
		t.Errorf("second page filters = %+v, want %+v", second, want)
	}
}

func TestPaginatedFetcher_Failures(t *testing.T) {
	abort := func(_ http.ResponseWriter) { panic(http.ErrAbortHandler) }

	tests := []struct {
		name  string
		pages []func(http.ResponseWriter)
		want  error
	}{
		{
			name:  "network failure on second page",
			pages: []func(http.ResponseWriter){webAppPage(1, 3, "true", "3"), abort},
			want:  entities.ErrFetchFailure,
		},
		{
			name: "server error on second page",
			pages: []func(http.ResponseWriter){webAppPage(1, 3, "true", "3"), func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusBadGateway)
			}},
			want: entities.ErrFetchFailure,
		},
		{
			name:  "malformed second page",
			pages: []func(http.ResponseWriter){webAppPage(1, 3, "true", "3"), jsonPage(`{"ServiceResponse":`)},
			want:  entities.ErrParseFailure,
		},
		{
			name:  "missing envelope",
			pages: []func(http.ResponseWriter){jsonPage(`{"data":[]}`)},
			want:  entities.ErrParseFailure,
		},
		{
			name:  "cursor does not advance",
			pages: []func(http.ResponseWriter){webAppPage(1, 3, "true", "3"), webAppPage(4, 3, "true", "3")},
			want:  entities.ErrFetchFailure,
		},
		{
			name:  "more records without cursor",
			pages: []func(http.ResponseWriter){webAppPage(1, 3, "true", "")},
			want:  entities.ErrFetchFailure,
		},
		{
			name:  "non numeric cursor",
			pages: []func(http.ResponseWriter){webAppPage(1, 3, "true", `"abc"`)},
			want:  entities.ErrFetchFailure,
		},
		{
			name: "unauthorized",
			pages: []func(http.ResponseWriter){func(w http.ResponseWriter) {
				w.WriteHeader(http.StatusUnauthorized)
			}},
			want: entities.ErrAuthFailure,
		},
		{
			name:  "in-band credential failure",
			pages: []func(http.ResponseWriter){jsonPage(`{"ServiceResponse":{"responseCode":"INVALID_CREDENTIALS"}}`)},
			want:  entities.ErrAuthFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := newTestFetcher(t, &pageServer{pages: tt.pages})

			rows, err := fetcher.FetchAll(context.Background(), PageRequest{Path: "/search/was/webapp"})
			if !errors.Is(err, tt.want) {
				t.Errorf("FetchAll() error = %v, want %v", err, tt.want)
			}
			if rows != nil {
				t.Errorf("FetchAll() returned %d rows with an error, want none", len(rows))
			}
		})
	}
}

func TestPaginatedFetcher_MaxPages(t *testing.T) {
	s := &pageServer{pages: []func(http.ResponseWriter){
		webAppPage(1, 1, "true", "1"),
		webAppPage(2, 1, "true", "2"),
		webAppPage(3, 1, "true", "3"),
	}}
	fetcher := newTestFetcher(t, s)
	fetcher.maxPages = 2

	_, err := fetcher.FetchAll(context.Background(), PageRequest{Path: "/search/was/webapp"})
	if !errors.Is(err, entities.ErrFetchFailure) {
		t.Errorf("FetchAll() error = %v, want ErrFetchFailure", err)
	}
	if len(s.requests) != 2 {
		t.Errorf("requests = %d, want 2", len(s.requests))
	}
}
