package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ochairo/kdibridge/internal/domain-adapters/gateways"
	"github.com/ochairo/kdibridge/internal/domain/entities"
	"github.com/ochairo/kdibridge/internal/domain/interfaces"
	gatewayports "github.com/ochairo/kdibridge/internal/domain/interfaces/gateways"
	"github.com/ochairo/kdibridge/internal/domain/services"
	"github.com/ochairo/kdibridge/internal/external-adapters/redis"
)

func runQualysWAS(ctx context.Context, args []string) int {
	cf := newConnectorFlags("qualys-was")
	cf.fs.Usage = connectorUsage(cf, "qualys-was",
		"Ingest the findings of every Qualys WAS web application.",
		`  kdibridge qualys-was --profile qualys-eu
  kdibridge qualys-was --username svc --password ... --redis-addr localhost:6379
`)

	profile, logger, ok := parseAndLoad(ctx, cf, entities.ConnectorQualysWAS, args)
	if !ok {
		return 1
	}

	var cache gatewayports.DefinitionCache
	if profile.Cache.RedisAddr != "" {
		c, err := redis.NewDefinitionCache(ctx, profile.Cache.RedisAddr, profile.Cache.RedisPassword,
			profile.Cache.RedisDB, profile.Vendor.Console, profile.Cache.TTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		//nolint:errcheck // Defer close on cache connection
		defer c.Close()
		logger.Info("Using definition cache", interfaces.F("redis", profile.Cache.RedisAddr))
		cache = c
	}

	client := gateways.NewHTTPClient()
	auth := gateways.NewBasicAuthTokenProvider(profile.Vendor.Username, profile.Vendor.Password)
	qualys := gateways.NewQualysGateway(profile.Vendor.Console, profile.Vendor.Port, auth, client, profile.PageSize, logger)

	connector := services.NewFindingConnector(
		entities.ConnectorQualysWAS,
		qualys,
		qualys,
		qualys,
		cache,
		services.NewQualysNormalizer(logger),
		logger,
	)

	return runConnector(ctx, profile, connector, logger)
}
