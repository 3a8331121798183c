package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
)

// CheckmarxAPIPrefix is the REST root of a Checkmarx SAST console
const CheckmarxAPIPrefix = "cxrestapi"

// CheckmarxTokenURL returns the identity endpoint under a REST base URL
func CheckmarxTokenURL(baseURL string) string {
	return baseURL + "/auth/identity/connect/token"
}

// checkmarxGateway implements ProjectSource, ScanSource and ReportAPI
// against the Checkmarx SAST REST API
type checkmarxGateway struct {
	api    *apiClient
	logger interfaces.Logger
}

// NewCheckmarxGateway creates a gateway for the REST base URL
// (https://<console>[:port]/cxrestapi)
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewCheckmarxGateway(baseURL string, auth gateways.TokenProvider, client *http.Client, logger interfaces.Logger) *checkmarxGateway {
	return &checkmarxGateway{
		api:    newAPIClient(baseURL, auth, client),
		logger: interfaces.OrNoOp(logger),
	}
}

// ListProjects returns every project visible to the user
func (g *checkmarxGateway) ListProjects(ctx context.Context) ([]entities.Project, error) {
	doc, err := g.api.getJSON(ctx, "/projects", "list projects")
	if err != nil {
		return nil, err
	}

	rows, ok := doc.Root.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: list projects: expected a JSON array", entities.ErrParseFailure)
	}

	projects := make([]entities.Project, 0, len(rows))
	for _, row := range rows {
		id, ok := entities.TextAt(row, "id").Get()
		if !ok {
			return nil, fmt.Errorf("%w: list projects: project without id", entities.ErrParseFailure)
		}
		projects = append(projects, entities.Project{
			ID:   id,
			Name: entities.TextAt(row, "name").OrElse(id),
		})
	}

	g.logger.Debug("Listed projects", interfaces.F("count", len(projects)))
	return projects, nil
}

// ListScans returns the finished scans of a project
func (g *checkmarxGateway) ListScans(ctx context.Context, projectID string) ([]entities.Scan, error) {
	query := url.Values{}
	query.Set("projectId", projectID)
	query.Set("scanStatus", "Finished")

	op := "list scans of project " + projectID
	doc, err := g.api.getJSON(ctx, "/sast/scans?"+query.Encode(), op)
	if err != nil {
		return nil, err
	}

	rows, ok := doc.Root.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s: expected a JSON array", entities.ErrParseFailure, op)
	}

	scans := make([]entities.Scan, 0, len(rows))
	for _, row := range rows {
		id, ok := entities.TextAt(row, "id").Get()
		if !ok {
			return nil, fmt.Errorf("%w: %s: scan without id", entities.ErrParseFailure, op)
		}
		scans = append(scans, entities.Scan{ID: id, ProjectID: projectID})
	}
	return scans, nil
}

type reportRequest struct {
	ReportType string `json:"reportType"`
	ScanID     any    `json:"scanId"`
}

// RequestReport asks the console to generate the XML report of a scan
func (g *checkmarxGateway) RequestReport(ctx context.Context, scanID string) (string, error) {
	var id any = scanID
	if _, err := strconv.ParseInt(scanID, 10, 64); err == nil {
		id = json.Number(scanID)
	}

	op := "request report for scan " + scanID
	doc, err := g.api.postJSON(ctx, "/reports/sastScan", reportRequest{ReportType: "XML", ScanID: id}, op)
	if err != nil {
		return "", err
	}

	reportID, ok := doc.Text("reportId").Get()
	if !ok {
		return "", fmt.Errorf("%w: %s: response has no reportId", entities.ErrParseFailure, op)
	}
	return reportID, nil
}

// ReportStatus maps the console report status onto the poller states
func (g *checkmarxGateway) ReportStatus(ctx context.Context, reportID string) (entities.ReportStatus, error) {
	op := "status of report " + reportID
	doc, err := g.api.getJSON(ctx, "/reports/sastScan/"+url.PathEscape(reportID)+"/status", op)
	if err != nil {
		return "", err
	}

	value, ok := doc.Text("status", "value").Get()
	if !ok {
		return "", fmt.Errorf("%w: %s: response has no status value", entities.ErrParseFailure, op)
	}

	switch value {
	case "Created":
		return entities.ReportReady, nil
	case "Failed", "Deleted":
		return entities.ReportFailed, nil
	default:
		return entities.ReportPending, nil
	}
}

// DownloadReport retrieves a generated XML report
func (g *checkmarxGateway) DownloadReport(ctx context.Context, reportID string) (*entities.RawDocument, error) {
	return g.api.getXMLDocument(ctx, "/reports/sastScan/"+url.PathEscape(reportID), "download report "+reportID)
}
