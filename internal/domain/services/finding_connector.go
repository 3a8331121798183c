package services

import (
	"context"
	"fmt"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/services"
)

// FindingConnector ingests vendors that list findings per project and
// describe them through a separate knowledge base
type FindingConnector struct {
	name        string
	projects    gateways.ProjectSource
	findings    gateways.FindingSource
	definitions gateways.DefinitionSource
	cache       gateways.DefinitionCache
	normalizer  *QualysNormalizer
	logger      interfaces.Logger
}

// NewFindingConnector wires a finding-based connector. cache may be nil.
func NewFindingConnector(
	name string,
	projects gateways.ProjectSource,
	findings gateways.FindingSource,
	definitions gateways.DefinitionSource,
	cache gateways.DefinitionCache,
	normalizer *QualysNormalizer,
	logger interfaces.Logger,
) *FindingConnector {
	return &FindingConnector{
		name:        name,
		projects:    projects,
		findings:    findings,
		definitions: definitions,
		cache:       cache,
		normalizer:  normalizer,
		logger:      interfaces.OrNoOp(logger),
	}
}

// Name returns the connector identifier
func (c *FindingConnector) Name() string {
	return c.name
}

// ListProjects returns every web application
func (c *FindingConnector) ListProjects(ctx context.Context) ([]entities.Project, error) {
	projects, err := c.projects.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

// CollectProject lists the findings of project, resolves the QIDs they
// reference and normalizes them into sink
func (c *FindingConnector) CollectProject(ctx context.Context, project entities.Project, sink services.RecordSink) error {
	rows, err := c.findings.ListFindings(ctx, project.ID)
	if err != nil {
		return err
	}

	qids := uniqueQIDs(rows)
	c.logger.Info("Processing web application",
		interfaces.F("project", project.Name),
		interfaces.F("findings", len(rows)),
		interfaces.F("qids", len(qids)))

	defs := c.resolveDefinitions(ctx, qids)

	batch, err := c.normalizer.NormalizeFindings(project.Name, rows, defs)
	addBatch(sink, batch)
	if err != nil {
		return fmt.Errorf("web application %s: %w", project.ID, err)
	}
	return nil
}

// resolveDefinitions looks QIDs up in the cache first, then in the knowledge
// base. Lookup failures only cost the definition details.
func (c *FindingConnector) resolveDefinitions(ctx context.Context, qids []string) map[string]entities.DefinitionInfo {
	defs := make(map[string]entities.DefinitionInfo, len(qids))
	missing := qids

	if c.cache != nil {
		missing = missing[:0:0]
		for _, qid := range qids {
			info, ok, err := c.cache.GetDefinition(ctx, qid)
			if err != nil {
				c.logger.Warn("Definition cache read failed", interfaces.F("qid", qid), interfaces.F("error", err))
			}
			if ok {
				defs[qid] = info
				continue
			}
			missing = append(missing, qid)
		}
	}

	if len(missing) == 0 || c.definitions == nil {
		return defs
	}

	found, err := c.definitions.LookupDefinitions(ctx, missing)
	if err != nil {
		c.logger.Warn("Knowledge base lookup failed, continuing without definition details",
			interfaces.F("qids", len(missing)),
			interfaces.F("error", err))
		return defs
	}

	for qid, info := range found {
		defs[qid] = info
		if c.cache == nil {
			continue
		}
		if err := c.cache.PutDefinition(ctx, info); err != nil {
			c.logger.Warn("Definition cache write failed", interfaces.F("qid", qid), interfaces.F("error", err))
		}
	}

	c.logger.Debug("Resolved definitions",
		interfaces.F("requested", len(qids)),
		interfaces.F("looked_up", len(missing)),
		interfaces.F("found", len(defs)))
	return defs
}

// uniqueQIDs returns the QIDs of rows in first-seen order
func uniqueQIDs(rows []any) []string {
	seen := make(map[string]bool)
	var qids []string
	for _, row := range rows {
		qid, ok := entities.TextAt(row, "qid").Get()
		if !ok || seen[qid] {
			continue
		}
		seen[qid] = true
		qids = append(qids, qid)
	}
	return qids
}
