// Package nats publishes run outcome events over NATS.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
)

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subj string, data []byte) error
	Flush() error
	Close()
}

// outcomeEvent is the payload published for each finished project
type outcomeEvent struct {
	Connector string `json:"connector"`
	entities.ProjectOutcome
	PublishedAt time.Time `json:"published_at"`
}

// Publisher implements gateways.OutcomePublisher on a NATS connection.
// Project outcomes go to <subject>.<connector>, run summaries to
// <subject>.<connector>.summary.
type Publisher struct {
	conn    conn
	subject string
	logger  interfaces.Logger
	now     func() time.Time
}

// NewPublisher connects to natsURL
func NewPublisher(natsURL, subject string, logger interfaces.Logger) (*Publisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("kdibridge"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	logger = interfaces.OrNoOp(logger)
	logger.Debug("Connected to NATS", interfaces.F("url", natsURL))

	return newPublisher(nc, subject, logger), nil
}

func newPublisher(c conn, subject string, logger interfaces.Logger) *Publisher {
	return &Publisher{
		conn:    c,
		subject: subject,
		logger:  interfaces.OrNoOp(logger),
		now:     time.Now,
	}
}

// PublishOutcome publishes the outcome of one project
func (p *Publisher) PublishOutcome(_ context.Context, connector string, outcome entities.ProjectOutcome) error {
	data, err := json.Marshal(outcomeEvent{
		Connector:      connector,
		ProjectOutcome: outcome,
		PublishedAt:    p.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	subject := p.subject + "." + connector
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish outcome of project %s: %w", outcome.ProjectID, err)
	}

	p.logger.Debug("Published project outcome",
		interfaces.F("subject", subject),
		interfaces.F("project", outcome.ProjectID))
	return nil
}

// PublishSummary publishes the summary of a finished run and flushes the connection
func (p *Publisher) PublishSummary(_ context.Context, summary *entities.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}

	subject := p.subject + "." + summary.Connector + ".summary"
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish run summary: %w", err)
	}
	if err := p.conn.Flush(); err != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", err)
	}
	return nil
}

// Close closes the connection
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}
