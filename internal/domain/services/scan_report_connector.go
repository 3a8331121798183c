package services

import (
	"context"
	"fmt"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/services"
)

// ScanReportConnector ingests vendors that publish results as per-scan
// reports: projects, then finished scans, then one report per scan
type ScanReportConnector struct {
	name       string
	projects   gateways.ProjectSource
	scans      gateways.ScanSource
	reports    gateways.ReportSource
	normalizer services.Normalizer
	logger     interfaces.Logger
}

// NewScanReportConnector wires a report-based connector
func NewScanReportConnector(
	name string,
	projects gateways.ProjectSource,
	scans gateways.ScanSource,
	reports gateways.ReportSource,
	normalizer services.Normalizer,
	logger interfaces.Logger,
) *ScanReportConnector {
	return &ScanReportConnector{
		name:       name,
		projects:   projects,
		scans:      scans,
		reports:    reports,
		normalizer: normalizer,
		logger:     interfaces.OrNoOp(logger),
	}
}

// Name returns the connector identifier
func (c *ScanReportConnector) Name() string {
	return c.name
}

// ListProjects returns every vendor project
func (c *ScanReportConnector) ListProjects(ctx context.Context) ([]entities.Project, error) {
	projects, err := c.projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// CollectProject normalizes the report of every finished scan into sink.
// It stops at the first scan that fails; rows normalized before a row-level
// error are still added.
func (c *ScanReportConnector) CollectProject(ctx context.Context, project entities.Project, sink services.RecordSink) error {
	scans, err := c.scans.ListScans(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}

	c.logger.Info("Processing project",
		interfaces.F("project", project.Name),
		interfaces.F("scans", len(scans)))

	for _, scan := range scans {
		doc, err := c.reports.FetchReport(ctx, scan.ID)
		if err != nil {
			return fmt.Errorf("scan %s: %w", scan.ID, err)
		}

		batch, err := c.normalizer.Normalize(doc)
		addBatch(sink, batch)

		c.logger.Debug("Normalized scan report",
			interfaces.F("project", project.ID),
			interfaces.F("scan", scan.ID),
			interfaces.F("findings", len(batch.AssetFindings)))

		if err != nil {
			return fmt.Errorf("scan %s: %w", scan.ID, err)
		}
	}

	return nil
}

func addBatch(sink services.RecordSink, batch entities.Batch) {
	for _, af := range batch.AssetFindings {
		sink.AddAssetFinding(af)
	}
	for _, def := range batch.Definitions {
		sink.AddDefinition(def)
	}
}
