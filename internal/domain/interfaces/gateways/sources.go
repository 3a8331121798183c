package gateways

import (
	"context"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// ProjectSource lists the vendor projects (or web applications) to ingest
type ProjectSource interface {
	ListProjects(ctx context.Context) ([]entities.Project, error)
}

// ScanSource lists the completed scans of a project
type ScanSource interface {
	ListScans(ctx context.Context, projectID string) ([]entities.Scan, error)
}

// ReportSource returns the materialized report of a scan
type ReportSource interface {
	FetchReport(ctx context.Context, scanID string) (*entities.RawDocument, error)
}

// FindingSource lists the raw finding rows of a project
type FindingSource interface {
	ListFindings(ctx context.Context, projectID string) ([]any, error)
}

// DefinitionSource resolves vendor weakness identifiers to knowledge-base details
type DefinitionSource interface {
	LookupDefinitions(ctx context.Context, ids []string) (map[string]entities.DefinitionInfo, error)
}

// DefinitionCache stores knowledge-base details between runs
type DefinitionCache interface {
	GetDefinition(ctx context.Context, id string) (entities.DefinitionInfo, bool, error)
	PutDefinition(ctx context.Context, info entities.DefinitionInfo) error
}

// ReportAPI is the vendor side of asynchronous report generation
type ReportAPI interface {
	// RequestReport submits report generation for a scan and returns the report handle
	RequestReport(ctx context.Context, scanID string) (string, error)

	// ReportStatus returns the generation state of a report
	ReportStatus(ctx context.Context, reportID string) (entities.ReportStatus, error)

	// DownloadReport retrieves the materialized report
	DownloadReport(ctx context.Context, reportID string) (*entities.RawDocument, error)
}
