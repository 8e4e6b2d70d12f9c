package ethereum

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/trie"

	"github.com/fd1az/chainquery/business/query/domain"
	"github.com/fd1az/chainquery/internal/apperror"
)

var testChainID = big.NewInt(1)

func signTx(t *testing.T, inner types.TxData) (*types.Transaction, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer := types.LatestSignerForChainID(testChainID)
	return types.MustSignNewTx(key, signer, inner), crypto.PubkeyToAddress(key.PublicKey)
}

func newBlock(number, timestamp uint64, txs ...*types.Transaction) *types.Block {
	header := &types.Header{
		Number:     new(big.Int).SetUint64(number),
		Time:       timestamp,
		GasLimit:   30_000_000,
		GasUsed:    21_000 * uint64(len(txs)),
		Difficulty: big.NewInt(0),
	}
	return types.NewBlock(header, &types.Body{Transactions: txs}, nil, trie.NewStackTrie(nil))
}

func TestNormalizer_TransactionRecord(t *testing.T) {
	recipient := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)

	tx, sender := signTx(t, &types.LegacyTx{
		Nonce:    3,
		To:       &recipient,
		Value:    oneEther,
		Gas:      21_000,
		GasPrice: big.NewInt(1_000_000_000),
	})
	block := newBlock(77, 1_700_000_000, tx)
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           21_000,
		EffectiveGasPrice: big.NewInt(900_000_000),
		TransactionIndex:  0,
		BlockNumber:       big.NewInt(77),
		BlockHash:         block.Hash(),
	}

	n := NewNormalizer(1)
	record, err := n.TransactionRecord(tx, receipt, block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.From != sender {
		t.Errorf("expected recovered sender %s, got %s", sender, record.From)
	}
	if record.To == nil || *record.To != recipient {
		t.Errorf("expected recipient %s, got %v", recipient, record.To)
	}
	if got := record.ValueWei(); got != "1000000000000000000" {
		t.Errorf("value must survive exactly, got %s", got)
	}
	if got := record.ValueEther().String(); got != "1" {
		t.Errorf("expected 1 ETH, got %s", got)
	}
	if record.Status != domain.StatusSucceeded {
		t.Errorf("expected status succeeded, got %s", record.Status)
	}
	if record.GasUsed != 21_000 {
		t.Errorf("expected gas used 21000, got %d", record.GasUsed)
	}
	if record.GasPrice.Cmp(big.NewInt(900_000_000)) != 0 {
		t.Errorf("expected the effective gas price from the receipt, got %s", record.GasPrice)
	}
	if record.BlockNumber != 77 {
		t.Errorf("expected block 77, got %d", record.BlockNumber)
	}
	if record.Timestamp != time.Unix(1_700_000_000, 0).UTC() {
		t.Errorf("unexpected timestamp %s", record.Timestamp)
	}
	if record.IsContractCreation() {
		t.Error("transaction with a recipient must not be a contract creation")
	}
}

func TestNormalizer_TransactionRecord_MissingPieces(t *testing.T) {
	recipient := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx, _ := signTx(t, &types.LegacyTx{
		Nonce:    0,
		To:       &recipient,
		Value:    big.NewInt(1),
		Gas:      21_000,
		GasPrice: big.NewInt(1),
	})
	block := newBlock(1, 100, tx)
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(1),
	}

	cases := []struct {
		name    string
		tx      *types.Transaction
		receipt *types.Receipt
		block   *types.Block
	}{
		{"nil transaction", nil, receipt, block},
		{"nil receipt", tx, nil, block},
		{"nil block", tx, receipt, nil},
	}

	n := NewNormalizer(1)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := n.TransactionRecord(tc.tx, tc.receipt, tc.block)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if code := apperror.GetCode(err); code != apperror.CodeIncompleteData {
				t.Errorf("expected code %s, got %s", apperror.CodeIncompleteData, code)
			}
		})
	}
}

func TestNormalizer_TransactionRecord_FailedStatus(t *testing.T) {
	recipient := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx, _ := signTx(t, &types.LegacyTx{
		Nonce:    0,
		To:       &recipient,
		Value:    big.NewInt(5),
		Gas:      50_000,
		GasPrice: big.NewInt(1),
	})
	block := newBlock(9, 100, tx)
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusFailed,
		GasUsed:           50_000,
		EffectiveGasPrice: big.NewInt(1),
		BlockNumber:       big.NewInt(9),
		BlockHash:         block.Hash(),
	}

	record, err := NewNormalizer(1).TransactionRecord(tx, receipt, block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Status != domain.StatusFailed {
		t.Errorf("expected status failed, got %s", record.Status)
	}
	if record.Succeeded() {
		t.Error("a reverted transaction must not report success")
	}
}

func TestNormalizer_TransactionRecord_ContractCreation(t *testing.T) {
	tx, _ := signTx(t, &types.LegacyTx{
		Nonce:    0,
		To:       nil,
		Value:    big.NewInt(0),
		Gas:      1_000_000,
		GasPrice: big.NewInt(1),
		Data:     []byte{0x60, 0x80, 0x60, 0x40},
	})
	block := newBlock(15, 100, tx)
	receipt := &types.Receipt{
		Status:            types.ReceiptStatusSuccessful,
		GasUsed:           700_000,
		EffectiveGasPrice: big.NewInt(1),
		BlockNumber:       big.NewInt(15),
		BlockHash:         block.Hash(),
	}

	record, err := NewNormalizer(1).TransactionRecord(tx, receipt, block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.To != nil {
		t.Errorf("contract creation must keep a nil recipient, got %s", record.To)
	}
	if !record.IsContractCreation() {
		t.Error("expected a contract-creation record")
	}
	if len(record.Input) != 4 {
		t.Errorf("expected the init code carried through, got %d bytes", len(record.Input))
	}
}

func TestNormalizer_TransactionRecord_GasPriceFallback(t *testing.T) {
	recipient := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx, _ := signTx(t, &types.LegacyTx{
		Nonce:    0,
		To:       &recipient,
		Value:    big.NewInt(1),
		Gas:      21_000,
		GasPrice: big.NewInt(7_000_000_000),
	})
	block := newBlock(2, 100, tx)

	// Some endpoints omit effectiveGasPrice on legacy receipts.
	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		GasUsed:     21_000,
		BlockNumber: big.NewInt(2),
		BlockHash:   block.Hash(),
	}

	record, err := NewNormalizer(1).TransactionRecord(tx, receipt, block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.GasPrice.Cmp(big.NewInt(7_000_000_000)) != 0 {
		t.Errorf("expected fallback to the transaction gas price, got %s", record.GasPrice)
	}
	if got := record.GasPriceGwei().String(); got != "7" {
		t.Errorf("expected 7 gwei, got %s", got)
	}
}

func TestNormalizer_BlockRecord(t *testing.T) {
	block := newBlock(321, 1_700_000_123)

	record, err := NewNormalizer(1).BlockRecord(block)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Number != 321 {
		t.Errorf("expected block 321, got %d", record.Number)
	}
	if record.Hash != block.Hash() {
		t.Errorf("expected hash %s, got %s", block.Hash(), record.Hash)
	}
	if record.Timestamp != time.Unix(1_700_000_123, 0).UTC() {
		t.Errorf("unexpected timestamp %s", record.Timestamp)
	}
	if record.TxCount != 0 {
		t.Errorf("expected empty block, got %d transactions", record.TxCount)
	}
}

func TestNormalizer_BlockRecord_NilBlock(t *testing.T) {
	_, err := NewNormalizer(1).BlockRecord(nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := apperror.GetCode(err); code != apperror.CodeIncompleteData {
		t.Errorf("expected code %s, got %s", apperror.CodeIncompleteData, code)
	}
}

func TestNormalizer_Sender(t *testing.T) {
	recipient := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx, sender := signTx(t, &types.LegacyTx{
		Nonce:    0,
		To:       &recipient,
		Value:    big.NewInt(1),
		Gas:      21_000,
		GasPrice: big.NewInt(1),
	})

	got, err := NewNormalizer(1).Sender(tx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != sender {
		t.Errorf("expected sender %s, got %s", sender, got)
	}
}
