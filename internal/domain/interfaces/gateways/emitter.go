package gateways

import (
	"context"

	"github.com/ochairo/kdibridge/internal/domain/entities"
)

// BatchEmitter hands normalized project batches to the ingestion service
type BatchEmitter interface {
	// Emit writes (and, when configured, uploads) the batch of one project
	Emit(ctx context.Context, connector string, project entities.Project, batch entities.Batch) error

	// Kickoff asks the ingestion service to process everything uploaded in this
	// run. It reports false when there was nothing to process.
	Kickoff(ctx context.Context) (bool, error)
}

// BatchSigner produces a detached signature for an emitted batch file
type BatchSigner interface {
	SignFile(ctx context.Context, path string) (string, error)
}

// OutcomePublisher announces project outcomes to interested consumers
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, connector string, outcome entities.ProjectOutcome) error
	PublishSummary(ctx context.Context, summary *entities.RunSummary) error
	Close()
}
