package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/chainquery/business/query/domain"
	"github.com/fd1az/chainquery/internal/apperror"
	"github.com/fd1az/chainquery/internal/logger"
)

// DefaultScanWindow is the maximum number of most-recent blocks inspected by
// an address scan. Full-history scans belong to an indexed query path, not
// this client.
const DefaultScanWindow uint64 = 1000

// Service is the public query surface. Every operation that talks to the
// network goes through exactly one failover Execute per network call.
type Service struct {
	executor   *FailoverExecutor
	normalizer Normalizer
	scanWindow uint64
	logger     logger.LoggerInterface
	tracer     trace.Tracer
}

// NewService creates the query service. A zero scanWindow falls back to
// DefaultScanWindow.
func NewService(executor *FailoverExecutor, normalizer Normalizer, scanWindow uint64, log logger.LoggerInterface) *Service {
	if scanWindow == 0 {
		scanWindow = DefaultScanWindow
	}

	return &Service{
		executor:   executor,
		normalizer: normalizer,
		scanWindow: scanWindow,
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}
}

// txLookup carries the three raw pieces a transaction record is built from.
// Absent pieces stay nil; that is a successful lookup of missing data.
type txLookup struct {
	tx      *types.Transaction
	pending bool
	receipt *types.Receipt
	block   *types.Block
}

// TransactionByHash fetches a mined transaction as a canonical record.
// Malformed hashes fail fast without touching the network. A transaction that
// does not exist or is not yet mined yields TxNotFound, which callers must
// treat as a normal result, distinct from AllProvidersUnavailable.
func (s *Service) TransactionByHash(ctx context.Context, rawHash string) (domain.TransactionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "query.tx_by_hash")
	defer span.End()

	hash, err := domain.ParseTxHash(rawHash)
	if err != nil {
		span.RecordError(err)
		return domain.TransactionRecord{}, err
	}
	span.SetAttributes(attribute.String("hash", hash.Hex()))

	lookup, err := Execute(ctx, s.executor, "tx_by_hash", func(ctx context.Context, p Provider) (txLookup, error) {
		tx, pending, err := p.TransactionByHash(ctx, hash)
		if err != nil {
			return txLookup{}, err
		}
		if tx == nil || pending {
			return txLookup{tx: tx, pending: pending}, nil
		}

		receipt, err := p.TransactionReceipt(ctx, hash)
		if err != nil {
			return txLookup{}, err
		}
		if receipt == nil {
			return txLookup{tx: tx}, nil
		}

		block, err := p.BlockByNumber(ctx, receipt.BlockNumber)
		if err != nil {
			return txLookup{}, err
		}

		return txLookup{tx: tx, receipt: receipt, block: block}, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return domain.TransactionRecord{}, err
	}

	record, err := s.normalizer.TransactionRecord(lookup.tx, lookup.receipt, lookup.block)
	if err != nil {
		// Incomplete data from a healthy provider means the transaction is
		// unknown or not yet mined. That is a normal result, not a failure.
		if apperror.GetCode(err) == apperror.CodeIncompleteData {
			return domain.TransactionRecord{}, apperror.NotFound(apperror.CodeTxNotFound, hash.Hex())
		}
		span.RecordError(err)
		return domain.TransactionRecord{}, err
	}

	span.SetStatus(codes.Ok, "found")
	return record, nil
}

// TransactionsByAddress scans the most recent blocks, newest first, for
// transactions sent by or to addr, stopping at limit matches or when the scan
// window is exhausted. Blocks that fail to load are skipped; partial results
// are acceptable and not an error.
func (s *Service) TransactionsByAddress(ctx context.Context, rawAddr string, limit int) ([]domain.TransactionRecord, error) {
	ctx, span := s.tracer.Start(ctx, "query.txs_by_address")
	defer span.End()

	addr, err := domain.ParseAddress(rawAddr)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if limit <= 0 {
		return nil, apperror.Validation(apperror.CodeInvalidInput,
			fmt.Sprintf("limit must be positive, got %d", limit))
	}
	span.SetAttributes(
		attribute.String("address", addr.Hex()),
		attribute.Int("limit", limit),
	)

	height, err := s.CurrentHeight(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	window := s.scanWindow
	if height+1 < window {
		window = height + 1
	}

	records := make([]domain.TransactionRecord, 0, limit)

	for i := uint64(0); i < window && len(records) < limit; i++ {
		number := height - i

		block, err := s.fetchBlock(ctx, number)
		if err != nil {
			// Best-effort recent history: one unreadable block must not
			// abort the whole scan.
			s.logger.Warn(ctx, "skipping unreadable block", "number", number, "error", err)
			continue
		}
		if block == nil {
			continue
		}

		for _, tx := range block.Transactions() {
			if !s.matches(tx, addr) {
				continue
			}

			record, err := s.recordForScanMatch(ctx, tx, block)
			if err != nil {
				s.logger.Warn(ctx, "skipping transaction with unreadable receipt",
					"hash", tx.Hash().Hex(), "error", err)
				continue
			}

			records = append(records, record)
			if len(records) == limit {
				break
			}
		}
	}

	span.SetAttributes(attribute.Int("matches", len(records)))
	span.SetStatus(codes.Ok, "scan complete")
	return records, nil
}

// BlockByNumber fetches one block as a canonical record. A block the chain
// has not produced yet yields BlockNotFound.
func (s *Service) BlockByNumber(ctx context.Context, number uint64) (domain.BlockRecord, error) {
	ctx, span := s.tracer.Start(ctx, "query.block_by_number",
		trace.WithAttributes(attribute.Int64("number", int64(number))),
	)
	defer span.End()

	block, err := s.fetchBlock(ctx, number)
	if err != nil {
		span.RecordError(err)
		return domain.BlockRecord{}, err
	}

	record, err := s.normalizer.BlockRecord(block)
	if err != nil {
		if apperror.GetCode(err) == apperror.CodeIncompleteData {
			return domain.BlockRecord{}, apperror.NotFound(apperror.CodeBlockNotFound,
				fmt.Sprintf("block %d", number))
		}
		span.RecordError(err)
		return domain.BlockRecord{}, err
	}

	span.SetStatus(codes.Ok, "found")
	return record, nil
}

// CurrentHeight returns the latest block number.
func (s *Service) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, span := s.tracer.Start(ctx, "query.current_height")
	defer span.End()

	height, err := Execute(ctx, s.executor, "block_number", func(ctx context.Context, p Provider) (uint64, error) {
		return p.BlockNumber(ctx)
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int64("height", int64(height)))
	return height, nil
}

// fetchBlock loads one block with transactions through the failover rotation.
func (s *Service) fetchBlock(ctx context.Context, number uint64) (*types.Block, error) {
	return Execute(ctx, s.executor, "block_by_number", func(ctx context.Context, p Provider) (*types.Block, error) {
		return p.BlockByNumber(ctx, new(big.Int).SetUint64(number))
	})
}

// matches reports whether tx was sent by or to addr.
func (s *Service) matches(tx *types.Transaction, addr common.Address) bool {
	if to := tx.To(); to != nil && *to == addr {
		return true
	}
	from, err := s.normalizer.Sender(tx)
	return err == nil && from == addr
}

// recordForScanMatch completes a matched transaction with its receipt and
// normalizes it. The containing block is already at hand.
func (s *Service) recordForScanMatch(ctx context.Context, tx *types.Transaction, block *types.Block) (domain.TransactionRecord, error) {
	hash := tx.Hash()

	receipt, err := Execute(ctx, s.executor, "tx_receipt", func(ctx context.Context, p Provider) (*types.Receipt, error) {
		return p.TransactionReceipt(ctx, hash)
	})
	if err != nil {
		return domain.TransactionRecord{}, err
	}

	return s.normalizer.TransactionRecord(tx, receipt, block)
}
