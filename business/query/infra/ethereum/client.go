// Package ethereum provides the go-ethereum backed endpoint adapter for the
// query context.
package ethereum

import (
	"context"
	"errors"
	"math/big"
	"net/url"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sony/gobreaker/v2"

	"github.com/fd1az/chainquery/internal/apperror"
	"github.com/fd1az/chainquery/internal/circuitbreaker"
	"github.com/fd1az/chainquery/internal/logger"
	"github.com/fd1az/chainquery/internal/ratelimit"
)

// ClientConfig holds configuration for one endpoint client.
type ClientConfig struct {
	URL string

	// RequestsPerMinute rate-limits calls against this endpoint.
	// 0 disables limiting.
	RequestsPerMinute int
}

// Client is one configured RPC endpoint. Calls go through a per-endpoint
// rate limiter and circuit breaker, so an endpoint known to be dead fails
// fast inside the rotation instead of burning a full attempt timeout.
type Client struct {
	name    string
	eth     *ethclient.Client
	limiter *ratelimit.Limiter
	breaker *circuitbreaker.CircuitBreaker[any]
	logger  logger.LoggerInterface
}

// Dial connects a new endpoint client.
func Dial(ctx context.Context, cfg ClientConfig, log logger.LoggerInterface) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.URL)
	if err != nil {
		return nil, apperror.External(apperror.CodeProviderError,
			"failed to dial "+cfg.URL, err)
	}

	c := &Client{
		name:   endpointName(cfg.URL),
		eth:    eth,
		logger: log,
	}

	if cfg.RequestsPerMinute > 0 {
		c.limiter = ratelimit.New(cfg.RequestsPerMinute)
	}

	cbCfg := circuitbreaker.DefaultConfig(c.name)
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Info(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	c.breaker = circuitbreaker.New[any](cbCfg)

	return c, nil
}

// endpointName reduces a connection URL to its host, keeping API keys out of
// logs and error messages.
func endpointName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

// Name identifies the endpoint in logs, metrics and errors.
func (c *Client) Name() string {
	return c.name
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// TransactionByHash returns the transaction and whether it is pending.
// An unknown hash returns (nil, false, nil).
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	type result struct {
		tx      *types.Transaction
		pending bool
	}

	v, err := c.call(ctx, func() (any, error) {
		tx, pending, err := c.eth.TransactionByHash(ctx, hash)
		if err != nil {
			return nil, err
		}
		return result{tx: tx, pending: pending}, nil
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}

	res := v.(result)
	return res.tx, res.pending, nil
}

// TransactionReceipt returns the receipt of a mined transaction, or nil when
// the transaction is unknown or still pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	v, err := c.call(ctx, func() (any, error) {
		return c.eth.TransactionReceipt(ctx, hash)
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*types.Receipt), nil
}

// BlockByNumber returns a block with its full transaction list, or nil when
// the chain has not produced it yet.
func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	v, err := c.call(ctx, func() (any, error) {
		return c.eth.BlockByNumber(ctx, number)
	})
	if err != nil || v == nil {
		return nil, err
	}
	return v.(*types.Block), nil
}

// BlockNumber returns the current chain height.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	v, err := c.call(ctx, func() (any, error) {
		return c.eth.BlockNumber(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// call funnels one provider request through the limiter and breaker, mapping
// legitimate absence to (nil, nil) and classifying failures.
func (c *Client) call(ctx context.Context, fn func() (any, error)) (any, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperror.External(apperror.CodeProviderError, c.name, err)
		}
	}

	v, err := c.breaker.Execute(func() (any, error) {
		v, err := fn()
		if errors.Is(err, ethereum.NotFound) {
			// Data legitimately absent: a successful call, not a provider
			// failure the breaker or rotation should count.
			return nil, nil
		}
		return v, err
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apperror.New(apperror.CodeCircuitOpen, apperror.WithContext(c.name))
		}
		return nil, apperror.External(apperror.CodeProviderError, c.name, err)
	}

	return v, nil
}
