// Package domain contains the canonical, provider-independent record types
// for the query context.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TxStatus is the execution outcome of a mined transaction.
type TxStatus string

const (
	StatusSucceeded TxStatus = "succeeded"
	StatusFailed    TxStatus = "failed"
)

// TransactionRecord is the canonical representation of a mined transaction.
// Monetary and gas figures are carried as arbitrary-precision integers in the
// smallest unit (wei); they never pass through a float.
type TransactionRecord struct {
	Hash        common.Hash
	From        common.Address
	To          *common.Address // nil for contract-creation transactions
	Value       *big.Int
	GasUsed     uint64
	GasPrice    *big.Int
	BlockNumber uint64
	BlockHash   common.Hash
	Timestamp   time.Time
	Status      TxStatus
	Index       uint
	Input       []byte
}

// IsContractCreation reports whether the transaction has no recipient.
func (r TransactionRecord) IsContractCreation() bool {
	return r.To == nil
}

// Succeeded reports whether the transaction executed successfully.
func (r TransactionRecord) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// ValueWei returns the transferred value as a decimal wei string.
func (r TransactionRecord) ValueWei() string {
	if r.Value == nil {
		return "0"
	}
	return r.Value.String()
}

// ValueEther returns the transferred value denominated in ether. The
// conversion is a pure decimal-point shift, so it is exact for any wei value.
func (r TransactionRecord) ValueEther() decimal.Decimal {
	if r.Value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(r.Value, -18)
}

// GasPriceGwei returns the effective gas price denominated in gwei.
func (r TransactionRecord) GasPriceGwei() decimal.Decimal {
	if r.GasPrice == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(r.GasPrice, -9)
}

// FeeWei returns gasUsed * gasPrice in wei.
func (r TransactionRecord) FeeWei() *big.Int {
	if r.GasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(r.GasPrice, new(big.Int).SetUint64(r.GasUsed))
}

// BlockRecord is the canonical representation of a block.
type BlockRecord struct {
	Hash      common.Hash
	Number    uint64
	Timestamp time.Time
	GasUsed   uint64
	GasLimit  uint64
	TxCount   int
}
