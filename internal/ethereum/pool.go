package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"emberscan/internal/metrics"

	eth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Pool fails over across multiple RPC providers with round-robin among the
// currently healthy ones, highest weight first. It satisfies the same raw
// backend surface as a single ethclient, so Client works over either.
type Pool struct {
	providers []*Provider

	mu   sync.Mutex
	next int
}

// NewPool builds a pool; providers are tried highest weight first.
func NewPool(providers []*Provider) *Pool {
	sorted := make([]*Provider, len(providers))
	copy(sorted, providers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Weight > sorted[j].Weight
	})
	return &Pool{providers: sorted}
}

// Providers returns the pool members, for the health endpoint.
func (p *Pool) Providers() []*Provider {
	return p.providers
}

func (p *Pool) pick() (*Provider, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	healthy := make([]*Provider, 0, len(p.providers))
	for _, prov := range p.providers {
		if prov.Healthy() {
			healthy = append(healthy, prov)
		}
	}
	if len(healthy) > 0 {
		selected := healthy[p.next%len(healthy)]
		p.next++
		return selected, nil
	}

	// Everything is open; probe the strongest provider as last resort.
	if len(p.providers) > 0 {
		return p.providers[0], nil
	}
	return nil, errors.New("no providers configured")
}

// do runs call with failover: a failing provider is recorded against its
// breaker and the next one is tried. eth.NotFound is a definitive answer,
// not a provider fault, and is returned as-is.
func (p *Pool) do(ctx context.Context, method string, call func(ctx context.Context, prov *Provider) error) error {
	var lastErr error

	maxAttempts := 2 * len(p.providers)
	if maxAttempts == 0 {
		return errors.New("no providers configured")
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		provider, err := p.pick()
		if err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, provider.Timeout)
		start := time.Now()
		err = call(callCtx, provider)
		cancel()
		metrics.RPCRequestDuration.WithLabelValues(provider.Name, method).Observe(time.Since(start).Seconds())

		if err == nil {
			provider.recordSuccess(method)
			return nil
		}
		if errors.Is(err, eth.NotFound) {
			provider.recordSuccess(method)
			return err
		}

		provider.recordFailure(method)
		lastErr = fmt.Errorf("provider %s: %w", provider.Name, err)

		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}
	}

	return fmt.Errorf("all providers failed, last error: %w", lastErr)
}

func (p *Pool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	var out *types.Header
	err := p.do(ctx, "HeaderByNumber", func(ctx context.Context, prov *Provider) error {
		var err error
		out, err = prov.client.HeaderByNumber(ctx, number)
		return err
	})
	return out, err
}

func (p *Pool) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	var out *types.Block
	err := p.do(ctx, "BlockByNumber", func(ctx context.Context, prov *Provider) error {
		var err error
		out, err = prov.client.BlockByNumber(ctx, number)
		return err
	})
	return out, err
}

func (p *Pool) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var out *types.Transaction
	var pending bool
	err := p.do(ctx, "TransactionByHash", func(ctx context.Context, prov *Provider) error {
		var err error
		out, pending, err = prov.client.TransactionByHash(ctx, hash)
		return err
	})
	return out, pending, err
}

func (p *Pool) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var out *types.Receipt
	err := p.do(ctx, "TransactionReceipt", func(ctx context.Context, prov *Provider) error {
		var err error
		out, err = prov.client.TransactionReceipt(ctx, hash)
		return err
	})
	return out, err
}

func (p *Pool) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var out *big.Int
	err := p.do(ctx, "BalanceAt", func(ctx context.Context, prov *Provider) error {
		var err error
		out, err = prov.client.BalanceAt(ctx, account, blockNumber)
		return err
	})
	return out, err
}

func (p *Pool) ChainID(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := p.do(ctx, "ChainID", func(ctx context.Context, prov *Provider) error {
		var err error
		out, err = prov.client.ChainID(ctx)
		return err
	})
	return out, err
}

func (p *Pool) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var out *big.Int
	err := p.do(ctx, "SuggestGasPrice", func(ctx context.Context, prov *Provider) error {
		var err error
		out, err = prov.client.SuggestGasPrice(ctx)
		return err
	})
	return out, err
}

// Close closes all provider connections.
func (p *Pool) Close() {
	for _, provider := range p.providers {
		provider.Close()
	}
}
