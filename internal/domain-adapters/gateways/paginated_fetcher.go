package gateways

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
)

// DefaultMaxPages bounds a single FetchAll
const DefaultMaxPages = 10000

// Criterion is one search filter of a paginated request
type Criterion struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

// DefaultCursorField is the record field the cursor criterion filters on
const DefaultCursorField = "id"

// PageEnvelope names the response fields that carry rows and the cursor
type PageEnvelope struct {
	Response string
	Data     string
	HasMore  string
	LastID   string
}

// ServiceResponseEnvelope is the envelope of Qualys QPS search responses
var ServiceResponseEnvelope = PageEnvelope{
	Response: "ServiceResponse",
	Data:     "data",
	HasMore:  "hasMoreRecords",
	LastID:   "lastId",
}

// PageRequest describes one paginated collection
type PageRequest struct {
	// Path is relative to the fetcher base URL
	Path string
	// Criteria are sent with every page
	Criteria []Criterion
	// PageSize defaults to entities.DefaultPageSize
	PageSize int
	// CursorField defaults to DefaultCursorField
	CursorField string
	// Envelope defaults to ServiceResponseEnvelope
	Envelope *PageEnvelope
}

func (r PageRequest) withDefaults() PageRequest {
	if r.PageSize <= 0 {
		r.PageSize = entities.DefaultPageSize
	}
	if r.CursorField == "" {
		r.CursorField = DefaultCursorField
	}
	if r.Envelope == nil {
		r.Envelope = &ServiceResponseEnvelope
	}
	return r
}

type serviceRequest struct {
	ServiceRequest serviceRequestBody `json:"ServiceRequest"`
}

type serviceRequestBody struct {
	Preferences servicePreferences `json:"preferences"`
	Filters     *serviceFilters    `json:"filters,omitempty"`
}

type servicePreferences struct {
	Verbose      string `json:"verbose"`
	LimitResults string `json:"limitResults"`
}

type serviceFilters struct {
	Criteria []Criterion `json:"Criteria"`
}

// PaginatedFetcher walks cursor-paginated search endpoints. Each page after
// the first adds a "<CursorField> GREATER <lastId>" criterion to the request
// criteria.
type PaginatedFetcher struct {
	api      *apiClient
	maxPages int
	logger   interfaces.Logger
}

// NewPaginatedFetcher creates a fetcher for endpoints under baseURL
func NewPaginatedFetcher(baseURL string, auth gateways.TokenProvider, client *http.Client, logger interfaces.Logger) *PaginatedFetcher {
	return &PaginatedFetcher{
		api:      newAPIClient(baseURL, auth, client),
		maxPages: DefaultMaxPages,
		logger:   interfaces.OrNoOp(logger),
	}
}

// FetchAll returns the rows of every page in order. Any failed or
// unparsable page fails the whole fetch; no partial result is returned.
func (f *PaginatedFetcher) FetchAll(ctx context.Context, req PageRequest) ([]any, error) {
	req = req.withDefaults()
	env := req.Envelope

	var (
		rows      []any
		cursor    int64
		hasCursor bool
	)

	for page := 1; ; page++ {
		if page > f.maxPages {
			return nil, fmt.Errorf("%w: %s: more than %d pages", entities.ErrFetchFailure, req.Path, f.maxPages)
		}

		criteria := append([]Criterion(nil), req.Criteria...)
		if hasCursor {
			criteria = append(criteria, Criterion{Field: req.CursorField, Operator: "GREATER", Value: strconv.FormatInt(cursor, 10)})
		}

		body := serviceRequest{ServiceRequest: serviceRequestBody{
			Preferences: servicePreferences{Verbose: "true", LimitResults: strconv.Itoa(req.PageSize)},
		}}
		if len(criteria) > 0 {
			body.ServiceRequest.Filters = &serviceFilters{Criteria: criteria}
		}

		op := fmt.Sprintf("%s page %d", req.Path, page)
		doc, err := f.api.postJSON(ctx, req.Path, body, op)
		if err != nil {
			return nil, err
		}

		resp, ok := doc.Lookup(env.Response)
		if !ok {
			return nil, fmt.Errorf("%w: %s: response has no %s", entities.ErrParseFailure, op, env.Response)
		}
		if err := checkResponseCode(resp, op); err != nil {
			return nil, err
		}

		data, _ := entities.Lookup(resp, env.Data)
		pageRows := entities.List(data)
		rows = append(rows, pageRows...)

		f.logger.Debug("Fetched page",
			interfaces.F("path", req.Path),
			interfaces.F("page", page),
			interfaces.F("rows", len(pageRows)))

		if entities.TextAt(resp, env.HasMore).OrElse("false") != "true" {
			return rows, nil
		}

		next, err := nextCursor(resp, env, cursor, hasCursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", entities.ErrFetchFailure, op, err)
		}
		cursor, hasCursor = next, true
	}
}

// nextCursor checks that the last id is present and numeric and that it advances
func nextCursor(resp any, env *PageEnvelope, current int64, hasCurrent bool) (int64, error) {
	raw, ok := entities.TextAt(resp, env.LastID).Get()
	if !ok {
		return 0, fmt.Errorf("%s is set but %s is missing", env.HasMore, env.LastID)
	}

	next, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s %q is not an integer", env.LastID, raw)
	}
	if hasCurrent && next <= current {
		return 0, fmt.Errorf("%s %d does not advance past %d", env.LastID, next, current)
	}
	return next, nil
}

// checkResponseCode inspects the in-band status some APIs return with HTTP 200
func checkResponseCode(resp any, op string) error {
	code, ok := entities.TextAt(resp, "responseCode").Get()
	if !ok || code == "SUCCESS" {
		return nil
	}

	msg := entities.TextAt(resp, "responseErrorDetails", "errorMessage").OrElse(code)
	switch code {
	case "INVALID_CREDENTIALS", "UNAUTHORIZED", "NOT_AUTHORIZED":
		return fmt.Errorf("%w: %s: %s", entities.ErrAuthFailure, op, msg)
	default:
		return fmt.Errorf("%w: %s: %s: %s", entities.ErrFetchFailure, op, code, msg)
	}
}
