package app

import (
	"context"
	"errors"
	"io"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/fd1az/chainquery/internal/apperror"
	"github.com/fd1az/chainquery/internal/logger"
)

func testLogger() logger.LoggerInterface {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

// fakeProvider scripts per-call behavior through function fields and counts
// how often each primitive was hit.
type fakeProvider struct {
	name string

	blockNumberFn func(ctx context.Context) (uint64, error)
	txByHashFn    func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	receiptFn     func(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	blockFn       func(ctx context.Context, number *big.Int) (*types.Block, error)

	calls atomic.Int64
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) BlockNumber(ctx context.Context) (uint64, error) {
	f.calls.Add(1)
	if f.blockNumberFn == nil {
		return 0, errors.New("blockNumberFn not scripted")
	}
	return f.blockNumberFn(ctx)
}

func (f *fakeProvider) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.calls.Add(1)
	if f.txByHashFn == nil {
		return nil, false, errors.New("txByHashFn not scripted")
	}
	return f.txByHashFn(ctx, hash)
}

func (f *fakeProvider) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.calls.Add(1)
	if f.receiptFn == nil {
		return nil, errors.New("receiptFn not scripted")
	}
	return f.receiptFn(ctx, hash)
}

func (f *fakeProvider) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	f.calls.Add(1)
	if f.blockFn == nil {
		return nil, errors.New("blockFn not scripted")
	}
	return f.blockFn(ctx, number)
}

func healthyProvider(name string, height uint64) *fakeProvider {
	return &fakeProvider{
		name: name,
		blockNumberFn: func(ctx context.Context) (uint64, error) {
			return height, nil
		},
	}
}

func failingProvider(name string) *fakeProvider {
	return &fakeProvider{
		name: name,
		blockNumberFn: func(ctx context.Context) (uint64, error) {
			return 0, errors.New("connection refused")
		},
	}
}

func newTestExecutor(t *testing.T, providers []Provider, opts ...PoolOption) (*FailoverExecutor, *Pool) {
	t.Helper()

	pool, err := NewPool(providers, opts...)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	executor, err := NewFailoverExecutor(pool, time.Second, testLogger())
	if err != nil {
		t.Fatalf("NewFailoverExecutor: %v", err)
	}

	return executor, pool
}

func height(ctx context.Context, p Provider) (uint64, error) {
	return p.BlockNumber(ctx)
}

func TestExecute_FirstEndpointSucceeds(t *testing.T) {
	a := healthyProvider("a", 42)
	b := healthyProvider("b", 42)
	executor, pool := newTestExecutor(t, []Provider{a, b})

	got, err := Execute(context.Background(), executor, "block_number", height)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected height 42, got %d", got)
	}
	if a.calls.Load() != 1 {
		t.Errorf("expected 1 call to endpoint a, got %d", a.calls.Load())
	}
	if b.calls.Load() != 0 {
		t.Errorf("expected endpoint b untouched, got %d calls", b.calls.Load())
	}
	if pool.StartIndex() != 0 {
		t.Errorf("expected cursor to stay at 0, got %d", pool.StartIndex())
	}
}

func TestExecute_KthEndpointSucceedsAfterKFailures(t *testing.T) {
	providers := []Provider{
		failingProvider("a"),
		failingProvider("b"),
		healthyProvider("c", 7),
		healthyProvider("d", 7),
	}
	executor, pool := newTestExecutor(t, providers)

	got, err := Execute(context.Background(), executor, "block_number", height)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 7 {
		t.Errorf("expected height 7, got %d", got)
	}

	// Exactly one failed attempt per endpoint before the winner, none after.
	wantCalls := []int64{1, 1, 1, 0}
	for i, p := range providers {
		fp := p.(*fakeProvider)
		if fp.calls.Load() != wantCalls[i] {
			t.Errorf("endpoint %s: expected %d calls, got %d", fp.name, wantCalls[i], fp.calls.Load())
		}
	}

	if pool.StartIndex() != 2 {
		t.Errorf("expected cursor on the succeeding endpoint (2), got %d", pool.StartIndex())
	}
}

func TestExecute_AllEndpointsFail(t *testing.T) {
	providers := []Provider{
		failingProvider("a"),
		failingProvider("b"),
		failingProvider("c"),
	}
	executor, pool := newTestExecutor(t, providers, WithStartIndex(1))

	_, err := Execute(context.Background(), executor, "block_number", height)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := apperror.GetCode(err); code != apperror.CodeAllProvidersUnavailable {
		t.Errorf("expected code %s, got %s", apperror.CodeAllProvidersUnavailable, code)
	}

	// Every endpoint gets exactly one attempt, then the rotation gives up.
	for _, p := range providers {
		fp := p.(*fakeProvider)
		if fp.calls.Load() != 1 {
			t.Errorf("endpoint %s: expected exactly 1 attempt, got %d", fp.name, fp.calls.Load())
		}
	}

	// A fully failed rotation must not move the cursor.
	if pool.StartIndex() != 1 {
		t.Errorf("expected cursor unchanged at 1, got %d", pool.StartIndex())
	}
}

func TestExecute_RotationStartsAtLastGoodIndex(t *testing.T) {
	var order []string
	mk := func(name string, fail bool) *fakeProvider {
		return &fakeProvider{
			name: name,
			blockNumberFn: func(ctx context.Context) (uint64, error) {
				order = append(order, name)
				if fail {
					return 0, errors.New("down")
				}
				return 1, nil
			},
		}
	}

	providers := []Provider{mk("a", true), mk("b", true), mk("c", true), mk("d", false)}
	executor, pool := newTestExecutor(t, providers, WithStartIndex(2))

	if _, err := Execute(context.Background(), executor, "block_number", height); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"c", "d"}
	if len(order) != len(want) {
		t.Fatalf("expected attempt order %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected attempt order %v, got %v", want, order)
		}
	}

	if pool.StartIndex() != 3 {
		t.Errorf("expected cursor on endpoint d (3), got %d", pool.StartIndex())
	}
}

func TestExecute_SlowEndpointTimesOutAndRotationContinues(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := &fakeProvider{
		name: "slow",
		blockNumberFn: func(ctx context.Context) (uint64, error) {
			<-release
			return 0, errors.New("too late")
		},
	}
	fast := healthyProvider("fast", 99)

	pool, err := NewPool([]Provider{slow, fast})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	executor, err := NewFailoverExecutor(pool, 20*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewFailoverExecutor: %v", err)
	}

	began := time.Now()
	got, err := Execute(context.Background(), executor, "block_number", height)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 99 {
		t.Errorf("expected height 99 from the fast endpoint, got %d", got)
	}
	if elapsed := time.Since(began); elapsed < 20*time.Millisecond {
		t.Errorf("expected at least one attempt-timeout wait, finished in %s", elapsed)
	}
	if pool.StartIndex() != 1 {
		t.Errorf("expected cursor on the fast endpoint (1), got %d", pool.StartIndex())
	}
}

func TestExecute_SingleSlowEndpointReportsTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	slow := &fakeProvider{
		name: "slow",
		blockNumberFn: func(ctx context.Context) (uint64, error) {
			<-release
			return 0, nil
		},
	}

	pool, err := NewPool([]Provider{slow})
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	executor, err := NewFailoverExecutor(pool, 10*time.Millisecond, testLogger())
	if err != nil {
		t.Fatalf("NewFailoverExecutor: %v", err)
	}

	_, err = Execute(context.Background(), executor, "block_number", height)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if code := apperror.GetCode(err); code != apperror.CodeAllProvidersUnavailable {
		t.Errorf("expected code %s, got %s", apperror.CodeAllProvidersUnavailable, code)
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *apperror.AppError, got %T", err)
	}
	if cause := appErr.Unwrap(); apperror.GetCode(cause) != apperror.CodeProviderTimeout {
		t.Errorf("expected timeout cause, got %v", cause)
	}
}

func TestExecute_CancelledContextStopsRotation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := &fakeProvider{
		name: "first",
		blockNumberFn: func(ctx context.Context) (uint64, error) {
			cancel()
			return 0, errors.New("down")
		},
	}
	second := healthyProvider("second", 1)

	executor, _ := newTestExecutor(t, []Provider{first, second})

	_, err := Execute(ctx, executor, "block_number", height)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if second.calls.Load() != 0 {
		t.Errorf("expected no attempt after context cancellation, got %d", second.calls.Load())
	}
}

func TestExecute_NilResultIsSuccess(t *testing.T) {
	// A provider reporting legitimate absence must not trigger failover.
	absent := &fakeProvider{
		name: "absent",
		txByHashFn: func(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
			return nil, false, nil
		},
	}
	fallback := failingProvider("fallback")

	executor, _ := newTestExecutor(t, []Provider{absent, fallback})

	tx, err := Execute(context.Background(), executor, "tx_by_hash", func(ctx context.Context, p Provider) (*types.Transaction, error) {
		tx, _, err := p.TransactionByHash(ctx, common.Hash{})
		return tx, err
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tx != nil {
		t.Errorf("expected nil transaction, got %v", tx)
	}
	if fallback.calls.Load() != 0 {
		t.Errorf("expected no failover for a nil result, got %d calls", fallback.calls.Load())
	}
}

func TestNewFailoverExecutor_DefaultTimeout(t *testing.T) {
	pool, err := NewPool(stubProviders(1))
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	executor, err := NewFailoverExecutor(pool, 0, testLogger())
	if err != nil {
		t.Fatalf("NewFailoverExecutor: %v", err)
	}
	if executor.timeout != DefaultAttemptTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultAttemptTimeout, executor.timeout)
	}
}
