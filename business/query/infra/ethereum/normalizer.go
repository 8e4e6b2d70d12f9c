package ethereum

import (
	"bytes"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chainquery/business/query/domain"
	"github.com/fd1az/chainquery/internal/apperror"
)

// Normalizer maps go-ethereum transaction/block shapes into the canonical
// records. Provider quirks stop here; nothing geth-specific leaks past it.
type Normalizer struct {
	signer types.Signer
}

// NewNormalizer creates a normalizer for the given chain.
func NewNormalizer(chainID uint64) *Normalizer {
	return &Normalizer{
		signer: types.LatestSignerForChainID(new(big.Int).SetUint64(chainID)),
	}
}

// TransactionRecord builds a canonical record from the raw transaction, its
// receipt and its containing block. Any absent piece means the transaction is
// unknown or not yet mined and yields IncompleteData.
func (n *Normalizer) TransactionRecord(tx *types.Transaction, receipt *types.Receipt, block *types.Block) (domain.TransactionRecord, error) {
	switch {
	case tx == nil:
		return domain.TransactionRecord{}, apperror.New(apperror.CodeIncompleteData,
			apperror.WithContext("transaction missing"))
	case receipt == nil:
		return domain.TransactionRecord{}, apperror.New(apperror.CodeIncompleteData,
			apperror.WithContext("receipt missing"))
	case block == nil:
		return domain.TransactionRecord{}, apperror.New(apperror.CodeIncompleteData,
			apperror.WithContext("containing block missing"))
	}

	from, err := types.Sender(n.signer, tx)
	if err != nil {
		return domain.TransactionRecord{}, apperror.New(apperror.CodeIncompleteData,
			apperror.WithContext("sender not recoverable"),
			apperror.WithCause(err))
	}

	status := domain.StatusFailed
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = domain.StatusSucceeded
	}

	// A nil recipient is a contract creation and stays absent; it is never
	// coerced to the zero address.
	var to *common.Address
	if dst := tx.To(); dst != nil {
		addr := *dst
		to = &addr
	}

	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = tx.GasPrice()
	}

	record := domain.TransactionRecord{
		Hash:        tx.Hash(),
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(tx.Value()),
		GasUsed:     receipt.GasUsed,
		GasPrice:    new(big.Int).Set(gasPrice),
		BlockNumber: block.NumberU64(),
		BlockHash:   block.Hash(),
		Timestamp:   time.Unix(int64(block.Time()), 0).UTC(),
		Status:      status,
		Index:       receipt.TransactionIndex,
	}

	if data := tx.Data(); len(data) > 0 {
		record.Input = bytes.Clone(data)
	}

	return record, nil
}

// BlockRecord builds a canonical record from a raw block.
func (n *Normalizer) BlockRecord(block *types.Block) (domain.BlockRecord, error) {
	if block == nil {
		return domain.BlockRecord{}, apperror.New(apperror.CodeIncompleteData,
			apperror.WithContext("block missing"))
	}

	return domain.BlockRecord{
		Hash:      block.Hash(),
		Number:    block.NumberU64(),
		Timestamp: time.Unix(int64(block.Time()), 0).UTC(),
		GasUsed:   block.GasUsed(),
		GasLimit:  block.GasLimit(),
		TxCount:   len(block.Transactions()),
	}, nil
}

// Sender recovers the sending address of a raw transaction.
func (n *Normalizer) Sender(tx *types.Transaction) (common.Address, error) {
	return types.Sender(n.signer, tx)
}
