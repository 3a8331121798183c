// Package orchestrators coordinates connectors and emitters into complete runs.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/services"
	domainservices "github.com/ochairo/kdibridge/internal/domain/services"
)

// IngestionOrchestrator runs one connector over every project it lists,
// emitting one batch per project and a single kickoff at the end
type IngestionOrchestrator struct {
	connector services.Connector
	emitter   gateways.BatchEmitter
	publisher gateways.OutcomePublisher
	logger    interfaces.Logger
	now       func() time.Time
}

// NewIngestionOrchestrator creates an orchestrator. publisher may be nil.
func NewIngestionOrchestrator(
	connector services.Connector,
	emitter gateways.BatchEmitter,
	publisher gateways.OutcomePublisher,
	logger interfaces.Logger,
) *IngestionOrchestrator {
	return &IngestionOrchestrator{
		connector: connector,
		emitter:   emitter,
		publisher: publisher,
		logger:    interfaces.OrNoOp(logger),
		now:       time.Now,
	}
}

// Run processes projects sequentially. Fetch, parse and poll failures skip
// the project; authentication failures, unknown severities and cancellation
// abort the run, which then returns the summary together with the cause.
func (o *IngestionOrchestrator) Run(ctx context.Context) (*entities.RunSummary, error) {
	start := o.now()
	summary := &entities.RunSummary{
		Connector: o.connector.Name(),
		StartedAt: start,
	}

	finish := func(runErr error) (*entities.RunSummary, error) {
		summary.Duration = o.now().Sub(start)
		if runErr != nil {
			summary.Aborted = true
			summary.AbortCause = runErr.Error()
		}
		o.publishSummary(ctx, summary)
		return summary, runErr
	}

	projects, err := o.connector.ListProjects(ctx)
	if err != nil {
		return finish(fmt.Errorf("run aborted: %w", err))
	}
	o.logger.Info("Starting run",
		interfaces.F("connector", summary.Connector),
		interfaces.F("projects", len(projects)))

	for _, project := range projects {
		if err := ctx.Err(); err != nil {
			return finish(fmt.Errorf("run aborted before project %s: %w", project.ID, err))
		}

		outcome, fatal := o.runProject(ctx, project)
		summary.Outcomes = append(summary.Outcomes, outcome)
		o.publishOutcome(ctx, outcome)

		if fatal != nil {
			o.logger.Error("Aborting run",
				interfaces.F("project", project.ID),
				interfaces.F("error", fatal))
			return finish(fmt.Errorf("run aborted at project %s: %w", project.ID, fatal))
		}
	}

	kicked, err := o.emitter.Kickoff(ctx)
	if err != nil {
		return finish(fmt.Errorf("connector run kickoff failed: %w", err))
	}
	summary.KickedOff = kicked

	o.logger.Info("Run finished",
		interfaces.F("completed", summary.Count(entities.ProjectCompleted)),
		interfaces.F("skipped", summary.Count(entities.ProjectSkipped)),
		interfaces.F("kicked_off", kicked))
	return finish(nil)
}

// runProject collects and emits one project. A non-nil second return value
// is the fatal error that must end the run.
func (o *IngestionOrchestrator) runProject(ctx context.Context, project entities.Project) (entities.ProjectOutcome, error) {
	outcome := entities.ProjectOutcome{ProjectID: project.ID, ProjectName: project.Name}

	acc := domainservices.NewRecordAccumulator()
	collectErr := o.connector.CollectProject(ctx, project, acc)

	switch {
	case collectErr == nil:
		outcome.Status = entities.ProjectCompleted
	case isAbort(ctx, collectErr):
		outcome.Status = entities.ProjectAborted
		outcome.Error = collectErr.Error()
		if !emitsPartial(ctx, collectErr) {
			return outcome, collectErr
		}
	default:
		outcome.Status = entities.ProjectSkipped
		outcome.Error = collectErr.Error()
		o.logger.Warn("Skipping project",
			interfaces.F("project", project.ID),
			interfaces.F("name", project.Name),
			interfaces.F("error", collectErr))
		return outcome, nil
	}

	if err := o.emit(ctx, project, acc, &outcome); err != nil {
		outcome.Error = joinMessages(outcome.Error, err.Error())
		if isAbort(ctx, err) {
			outcome.Status = entities.ProjectAborted
			return outcome, err
		}
		if outcome.Status == entities.ProjectCompleted {
			outcome.Status = entities.ProjectSkipped
		}
		o.logger.Warn("Failed to emit project batch",
			interfaces.F("project", project.ID),
			interfaces.F("error", err))
	}

	if outcome.Status == entities.ProjectAborted {
		return outcome, collectErr
	}
	return outcome, nil
}

func (o *IngestionOrchestrator) emit(ctx context.Context, project entities.Project, acc *domainservices.RecordAccumulator, outcome *entities.ProjectOutcome) error {
	batch, err := acc.Snapshot()
	if err != nil {
		return fmt.Errorf("%w: %v", entities.ErrParseFailure, err)
	}
	outcome.Findings = len(batch.AssetFindings)
	outcome.Definitions = len(batch.Definitions)

	if err := o.emitter.Emit(ctx, o.connector.Name(), project, batch); err != nil {
		return err
	}
	outcome.Emitted = !batch.Empty()
	return nil
}

func (o *IngestionOrchestrator) publishOutcome(ctx context.Context, outcome entities.ProjectOutcome) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishOutcome(ctx, o.connector.Name(), outcome); err != nil {
		o.logger.Warn("Failed to publish project outcome",
			interfaces.F("project", outcome.ProjectID),
			interfaces.F("error", err))
	}
}

func (o *IngestionOrchestrator) publishSummary(ctx context.Context, summary *entities.RunSummary) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishSummary(ctx, summary); err != nil {
		o.logger.Warn("Failed to publish run summary", interfaces.F("error", err))
	}
}

// isAbort reports whether err ends the whole run
func isAbort(ctx context.Context, err error) bool {
	return entities.IsFatal(err) ||
		ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// emitsPartial reports whether the records collected before err are still
// emitted. Only an unmapped severity qualifies, and only when no other
// failure class is joined into err.
func emitsPartial(ctx context.Context, err error) bool {
	if !errors.Is(err, entities.ErrUnknownSeverity) || ctx.Err() != nil {
		return false
	}
	for _, other := range []error{
		entities.ErrAuthFailure,
		entities.ErrParseFailure,
		entities.ErrFetchFailure,
		entities.ErrPollTimeout,
		context.Canceled,
		context.DeadlineExceeded,
	} {
		if errors.Is(err, other) {
			return false
		}
	}
	return true
}

func joinMessages(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// FormatSummary renders a human-readable run summary
func FormatSummary(summary *entities.RunSummary) string {
	var b strings.Builder

	status := "✅ COMPLETED"
	if summary.Aborted {
		status = "🚫 ABORTED"
	}
	fmt.Fprintf(&b, "%s: %s run over %d projects\n", status, summary.Connector, len(summary.Outcomes))

	for _, o := range summary.Outcomes {
		fmt.Fprintf(&b, "   %-9s %s (%s): %d findings, %d definitions",
			o.Status, o.ProjectName, o.ProjectID, o.Findings, o.Definitions)
		if o.Error != "" {
			fmt.Fprintf(&b, " - %s", o.Error)
		}
		b.WriteString("\n")
	}

	if summary.Aborted {
		fmt.Fprintf(&b, "   Cause: %s\n", summary.AbortCause)
	}
	fmt.Fprintf(&b, "   Connector run started: %t\n", summary.KickedOff)
	fmt.Fprintf(&b, "   Duration: %v", summary.Duration.Round(time.Millisecond))

	return b.String()
}
