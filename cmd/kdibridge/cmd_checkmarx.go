package main

import (
	"context"

	"github.com/ochairo/kdibridge/internal/domain-adapters/gateways"
	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/services"
)

func runCheckmarxSAST(ctx context.Context, args []string) int {
	cf := newConnectorFlags("checkmarx-sast")
	cf.fs.Usage = connectorUsage(cf, "checkmarx-sast",
		"Ingest the latest finished scans of every Checkmarx SAST project.",
		`  kdibridge checkmarx-sast --profile checkmarx-prod
  kdibridge checkmarx-sast --console cx.example.com --username svc --password ... \
      --client-id resource_owner_client --client-secret ...
`)

	profile, logger, ok := parseAndLoad(ctx, cf, entities.ConnectorCheckmarxSAST, args)
	if !ok {
		return 1
	}

	client := gateways.NewHTTPClient()
	baseURL := gateways.ConsoleURL(profile.Vendor.Console, profile.Vendor.Port, gateways.CheckmarxAPIPrefix)
	auth := gateways.NewPasswordGrantTokenProvider(gateways.CheckmarxTokenURL(baseURL), profile.Vendor, client, logger)

	checkmarx := gateways.NewCheckmarxGateway(baseURL, auth, client, logger)
	poller := gateways.NewReportPoller(checkmarx, profile.Poll, logger)

	connector := services.NewScanReportConnector(
		entities.ConnectorCheckmarxSAST,
		checkmarx,
		checkmarx,
		poller,
		services.NewCheckmarxNormalizer(logger),
		logger,
	)

	return runConnector(ctx, profile, connector, logger)
}
