// Package query implements the chain-query bounded context: a resilient,
// multi-endpoint read client that normalizes provider responses into
// canonical records.
package query

import (
	"context"
	"time"

	"github.com/fd1az/chainquery/business/query/app"
	queryDI "github.com/fd1az/chainquery/business/query/di"
	"github.com/fd1az/chainquery/business/query/infra/ethereum"
	"github.com/fd1az/chainquery/internal/config"
	"github.com/fd1az/chainquery/internal/di"
	"github.com/fd1az/chainquery/internal/logger"
	"github.com/fd1az/chainquery/internal/monolith"
)

// Module implements the query bounded context.
type Module struct{}

// RegisterServices registers all query services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register ProviderPool (private - internal dependency)
	di.RegisterToken(c, queryDI.ProviderPool, func(sr di.ServiceRegistry) app.ProviderPool {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		providers := make([]app.Provider, 0, len(cfg.Ethereum.Endpoints))
		for _, url := range cfg.Ethereum.Endpoints {
			client, err := ethereum.Dial(context.Background(), ethereum.ClientConfig{
				URL:               url,
				RequestsPerMinute: cfg.Ethereum.RequestsPerMinute,
			}, log)
			if err != nil {
				panic("failed to dial endpoint: " + err.Error())
			}
			providers = append(providers, client)
		}

		pool, err := app.NewPool(providers)
		if err != nil {
			panic("failed to create provider pool: " + err.Error())
		}
		return pool
	})

	// Register FailoverExecutor (private - internal dependency)
	di.RegisterToken(c, queryDI.FailoverExecutor, func(sr di.ServiceRegistry) *app.FailoverExecutor {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		executor, err := app.NewFailoverExecutor(queryDI.GetProviderPool(sr), cfg.Ethereum.AttemptTimeout, log)
		if err != nil {
			panic("failed to create failover executor: " + err.Error())
		}
		return executor
	})

	// Register Normalizer (private - internal dependency)
	di.RegisterToken(c, queryDI.Normalizer, func(sr di.ServiceRegistry) app.Normalizer {
		cfg := sr.Get("config").(*config.Config)
		return ethereum.NewNormalizer(cfg.Ethereum.ChainID)
	})

	// Register Service (public - exposed to callers)
	di.RegisterToken(c, queryDI.QueryService, func(sr di.ServiceRegistry) *app.Service {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		return app.NewService(
			queryDI.GetFailoverExecutor(sr),
			queryDI.GetNormalizer(sr),
			cfg.Ethereum.ScanWindow,
			log,
		)
	})

	return nil
}

// Startup initializes the query module and probes the rotation once.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := queryDI.GetQueryService(mono.Services())

	probeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	height, err := svc.CurrentHeight(probeCtx)
	if err != nil {
		// Endpoints may come back; queries will fail over per call.
		log.Warn(ctx, "startup height probe failed", "error", err)
	} else {
		log.Info(ctx, "query module started",
			"endpoints", len(mono.Config().Ethereum.Endpoints),
			"height", height,
		)
	}

	return nil
}
