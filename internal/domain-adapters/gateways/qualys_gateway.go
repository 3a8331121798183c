package gateways

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	xmladapter "github.com/ochairo/kdibridge/internal/external-adapters/xml"
)

// Qualys API roots
const (
	QualysWASPrefix = "qps/rest/3.0"
	QualysKBPrefix  = "api/2.0/fo"

	// knowledge-base ids per lookup request
	kbBatchSize = 100
)

// qualysGateway implements ProjectSource, FindingSource and
// DefinitionSource against Qualys WAS and the Qualys knowledge base
type qualysGateway struct {
	fetcher  *PaginatedFetcher
	kb       *apiClient
	pageSize int
	logger   interfaces.Logger
}

// NewQualysGateway creates a gateway for a Qualys platform host
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewQualysGateway(console string, port int, auth gateways.TokenProvider, client *http.Client, pageSize int, logger interfaces.Logger) *qualysGateway {
	kb := newAPIClient(ConsoleURL(console, port, QualysKBPrefix), auth, client)
	kb.headers["X-Requested-With"] = "kdibridge"

	return &qualysGateway{
		fetcher:  NewPaginatedFetcher(ConsoleURL(console, port, QualysWASPrefix), auth, client, logger),
		kb:       kb,
		pageSize: pageSize,
		logger:   interfaces.OrNoOp(logger),
	}
}

// ListProjects returns every web application
func (g *qualysGateway) ListProjects(ctx context.Context) ([]entities.Project, error) {
	rows, err := g.fetcher.FetchAll(ctx, PageRequest{Path: "/search/was/webapp", PageSize: g.pageSize})
	if err != nil {
		return nil, fmt.Errorf("list web applications: %w", err)
	}

	projects := make([]entities.Project, 0, len(rows))
	for _, row := range rows {
		app := unwrap(row, "WebApp")
		id, ok := entities.TextAt(app, "id").Get()
		if !ok {
			return nil, fmt.Errorf("%w: list web applications: web application without id", entities.ErrParseFailure)
		}
		projects = append(projects, entities.Project{
			ID:   id,
			Name: entities.TextAt(app, "name").OrElse(id),
		})
	}

	g.logger.Debug("Listed web applications", interfaces.F("count", len(projects)))
	return projects, nil
}

// ListFindings returns the finding rows of one web application
func (g *qualysGateway) ListFindings(ctx context.Context, projectID string) ([]any, error) {
	rows, err := g.fetcher.FetchAll(ctx, PageRequest{
		Path:     "/search/was/finding",
		Criteria: []Criterion{{Field: "webApp.id", Operator: "EQUALS", Value: projectID}},
		PageSize: g.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list findings of web application %s: %w", projectID, err)
	}

	findings := make([]any, 0, len(rows))
	for _, row := range rows {
		findings = append(findings, unwrap(row, "Finding"))
	}
	return findings, nil
}

// LookupDefinitions resolves QIDs through the knowledge base. QIDs the
// knowledge base does not know are absent from the result.
func (g *qualysGateway) LookupDefinitions(ctx context.Context, ids []string) (map[string]entities.DefinitionInfo, error) {
	out := make(map[string]entities.DefinitionInfo, len(ids))

	for start := 0; start < len(ids); start += kbBatchSize {
		end := min(start+kbBatchSize, len(ids))
		chunk := ids[start:end]

		query := url.Values{}
		query.Set("action", "list")
		query.Set("ids", strings.Join(chunk, ","))

		op := "knowledge base lookup"
		data, err := g.kb.getXML(ctx, "/knowledge_base/vuln/?"+query.Encode(), op)
		if err != nil {
			return nil, err
		}

		vulns, err := xmladapter.Query(bytes.NewReader(data), "//VULN")
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		for _, v := range vulns {
			qid, ok := entities.TextAt(v, "QID").Get()
			if !ok {
				continue
			}
			out[qid] = entities.DefinitionInfo{
				ID:          qid,
				Title:       entities.TextAt(v, "TITLE").OrElse(""),
				Description: entities.TextAt(v, "DIAGNOSIS").OrElse(""),
			}
		}
	}

	return out, nil
}

// unwrap returns row[key] when a row is a single-key envelope such as {"WebApp": {...}}
func unwrap(row any, key string) any {
	if inner, ok := entities.Lookup(row, key); ok {
		if _, isMap := inner.(map[string]any); isMap {
			return inner
		}
	}
	return row
}
