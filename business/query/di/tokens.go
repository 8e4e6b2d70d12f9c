// Package di contains dependency injection tokens for the query context.
package di

import (
	"github.com/fd1az/chainquery/business/query/app"
	"github.com/fd1az/chainquery/internal/di"
)

// Public service tokens - exposed to other modules
var (
	QueryService = di.NewToken[*app.Service]("query.QueryService")
)

// Private dependency tokens - internal to the query module
var (
	ProviderPool     = di.NewToken[app.ProviderPool]("query:providerPool")
	FailoverExecutor = di.NewToken[*app.FailoverExecutor]("query:failoverExecutor")
	Normalizer       = di.NewToken[app.Normalizer]("query:normalizer")
)

// Helper functions for type-safe access
func GetQueryService(c di.ServiceRegistry) *app.Service {
	return di.GetToken(c, QueryService)
}

func GetProviderPool(c di.ServiceRegistry) app.ProviderPool {
	return di.GetToken(c, ProviderPool)
}

func GetFailoverExecutor(c di.ServiceRegistry) *app.FailoverExecutor {
	return di.GetToken(c, FailoverExecutor)
}

func GetNormalizer(c di.ServiceRegistry) app.Normalizer {
	return di.GetToken(c, Normalizer)
}
