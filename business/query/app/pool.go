package app

import (
	"fmt"
	"sync/atomic"
)

// Pool is the default ProviderPool. The rotation cursor is the only mutable
// state; concurrent calls may race on it, which at worst costs one extra
// failed attempt before the next success corrects it.
type Pool struct {
	providers []Provider
	lastGood  atomic.Int64
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithStartIndex seeds the rotation cursor. Out-of-range values are rejected
// at construction.
func WithStartIndex(index int) PoolOption {
	return func(p *Pool) {
		p.lastGood.Store(int64(index))
	}
}

// NewPool creates a pool over an ordered, non-empty provider list.
func NewPool(providers []Provider, opts ...PoolOption) (*Pool, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("pool: at least one provider is required")
	}

	p := &Pool{providers: providers}

	for _, opt := range opts {
		opt(p)
	}

	if idx := p.lastGood.Load(); idx < 0 || idx >= int64(len(providers)) {
		return nil, fmt.Errorf("pool: start index %d out of range [0,%d)", idx, len(providers))
	}

	return p, nil
}

// Providers returns the ordered rotation.
func (p *Pool) Providers() []Provider {
	return p.providers
}

// StartIndex returns the index of the endpoint that last succeeded.
func (p *Pool) StartIndex() int {
	return int(p.lastGood.Load())
}

// RecordSuccess moves the rotation cursor so subsequent calls start at the
// endpoint that just worked.
func (p *Pool) RecordSuccess(index int) {
	if index < 0 || index >= len(p.providers) {
		return
	}
	p.lastGood.Store(int64(index))
}

var _ ProviderPool = (*Pool)(nil)
