// Package app contains application services and port definitions for the
// query context.
package app

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chainquery/business/query/domain"
)

// Provider is one configured RPC endpoint. These four primitives are the only
// thing the query context needs from an underlying chain-access client.
//
// Lookups that find nothing return a nil result with a nil error: legitimate
// absence is a successful call, not a reason for the failover rotation to try
// the next endpoint. Errors are reserved for transport and provider failures.
type Provider interface {
	// Name identifies the endpoint in logs, metrics and errors.
	Name() string

	// TransactionByHash returns the transaction and whether it is pending.
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)

	// TransactionReceipt returns the receipt of a mined transaction.
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// BlockByNumber returns a block with its full transaction list.
	// A nil number means the latest block.
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)

	// BlockNumber returns the current chain height.
	BlockNumber(ctx context.Context) (uint64, error)
}

// ProviderPool holds the ordered failover rotation and remembers which
// endpoint last succeeded.
type ProviderPool interface {
	Providers() []Provider
	StartIndex() int
	RecordSuccess(index int)
}

// Normalizer maps provider-native transaction/block shapes into the canonical
// records, independent of which endpoint produced them.
type Normalizer interface {
	// TransactionRecord builds a canonical record from the raw transaction,
	// its receipt and its containing block. Any absent piece yields an
	// IncompleteData error.
	TransactionRecord(tx *types.Transaction, receipt *types.Receipt, block *types.Block) (domain.TransactionRecord, error)

	// BlockRecord builds a canonical record from a raw block.
	BlockRecord(block *types.Block) (domain.BlockRecord, error)

	// Sender recovers the sending address of a raw transaction.
	Sender(tx *types.Transaction) (common.Address, error)
}
