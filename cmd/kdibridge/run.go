package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ochairo/kdibridge/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/kdibridge/internal/domain-orchestrators"
	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	gatewayports "github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	"github.com/ochairo/kdibridge/internal/domain/interfaces/services"
	"github.com/ochairo/kdibridge/internal/external-adapters/nats"
)

// runConnector wires the emitter and optional publisher around connector,
// runs it and prints the summary. It returns the process exit code.
func runConnector(ctx context.Context, profile *entities.Profile, connector services.Connector, logger interfaces.Logger) int {
	var signer gatewayports.BatchSigner
	if profile.Signing.KeyPath != "" {
		s, err := gateways.NewBatchSigner(profile.Signing.KeyPath, profile.Signing.Passphrase)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		logger.Info("Signing batches", interfaces.F("fingerprint", s.Fingerprint()))
		signer = s
	}

	var publisher gatewayports.OutcomePublisher
	if profile.Events.NatsURL != "" {
		p, err := nats.NewPublisher(profile.Events.NatsURL, profile.Events.Subject, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		defer p.Close()
		publisher = p
	}

	emitter := gateways.NewKDIEmitter(profile.OutputDir, profile.Kenna, signer, gateways.NewHTTPClient(), logger)
	if !profile.Kenna.UploadEnabled() {
		logger.Info("No Kenna connector configured, batches are written locally only",
			interfaces.F("output_dir", profile.OutputDir))
	}

	summary, err := orchestrators.NewIngestionOrchestrator(connector, emitter, publisher, logger).Run(ctx)
	fmt.Println(orchestrators.FormatSummary(summary))

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// connectorUsage returns a flag usage function in the style shared by the connector commands
func connectorUsage(cf *connectorFlags, command, description, examples string) func() {
	return func() {
		fmt.Fprintf(os.Stderr, "Usage: kdibridge %s [options]\n\n%s\n\nOptions:\n", command, description)
		cf.fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Every option can also be set as KDIBRIDGE_<OPTION> (e.g. KDIBRIDGE_KENNA_API_KEY),
in the environment or in the --env-file. Flags override the environment, which
overrides the profile.

Examples:
%s`, examples)
	}
}

// parseAndLoad parses args, builds the logger and loads the merged profile
func parseAndLoad(ctx context.Context, cf *connectorFlags, connector string, args []string) (*entities.Profile, interfaces.Logger, bool) {
	if err := cf.fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return nil, nil, false
	}

	logger, err := cf.newLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, false
	}

	profile, err := cf.loadProfile(ctx, connector, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, nil, false
	}

	scoped := logger.With(interfaces.F("connector", connector), interfaces.F("profile", profile.Name))
	scoped.Debug("Configuration loaded", interfaces.F("output_dir", profile.OutputDir))
	return profile, scoped, true
}
