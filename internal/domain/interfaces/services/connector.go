// Package services defines interfaces for domain service contracts.
package services

import (
	"context"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// RecordSink receives canonical records while a project is processed
type RecordSink interface {
	AddAssetFinding(af entities.AssetFinding)
	AddDefinition(def entities.VulnerabilityDefinition)
}

// Connector ingests one vendor's results project by project
type Connector interface {
	// Name is the connector identifier used in file names and events
	Name() string

	// ListProjects returns every project to process in this run
	ListProjects(ctx context.Context) ([]entities.Project, error)

	// CollectProject fetches and normalizes everything belonging to project into sink.
	// Records already in sink when an error is returned are complete and valid.
	CollectProject(ctx context.Context, project entities.Project, sink RecordSink) error
}

// Normalizer flattens one vendor document into canonical records
type Normalizer interface {
	// Normalize returns the records of every eligible row, and the joined
	// errors of the rows it had to reject.
	Normalize(doc *entities.RawDocument) (entities.Batch, error)
}
