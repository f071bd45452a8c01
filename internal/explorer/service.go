package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	l2cache "emberscan/internal/cache"
	"emberscan/internal/ethereum"
	"emberscan/internal/models"
	"emberscan/internal/querycache"
	"emberscan/pkg/logger"
)

// Service exposes the explorer's data surface: every read goes through the
// query cache, never straight to the node. Derived views and scans compose
// these primitives and never talk to the backend directly either.
type Service struct {
	cache *querycache.Cache
	node  ethereum.NodeClient
	l2    l2cache.Layer2
	log   *logger.Logger
	batch querycache.BatchOptions
}

// NewService wires the explorer over a query cache and a node client.
// l2 may be nil when no second cache tier is configured.
func NewService(qc *querycache.Cache, node ethereum.NodeClient, l2 l2cache.Layer2, log *logger.Logger, batch querycache.BatchOptions) *Service {
	return &Service{
		cache: qc,
		node:  node,
		l2:    l2,
		log:   log,
		batch: batch,
	}
}

// Cache exposes the underlying query cache for the cache-control handlers.
func (s *Service) Cache() *querycache.Cache { return s.cache }

// latestHeightQuery is the chain-tip height, the shortest-lived tier.
func (s *Service) latestHeightQuery() querycache.Query[uint64] {
	return querycache.Query[uint64]{
		Key:   querycache.MakeKey(querycache.DomainLatestHeight),
		Fetch: s.node.LatestHeight,
	}
}

func (s *Service) chainIDQuery() querycache.Query[uint64] {
	return querycache.Query[uint64]{
		Key:   querycache.MakeKey(querycache.DomainChainID),
		Fetch: s.node.ChainID,
	}
}

func (s *Service) gasPriceQuery() querycache.Query[*big.Int] {
	return querycache.Query[*big.Int]{
		Key:   querycache.MakeKey(querycache.DomainGasPrice),
		Fetch: s.node.GasPrice,
	}
}

func (s *Service) blockQuery(number uint64) querycache.Query[*models.Block] {
	key := querycache.MakeKey(querycache.DomainBlock, number)
	return querycache.Query[*models.Block]{
		Key: key,
		Fetch: throughL2(s, key, func(ctx context.Context) (*models.Block, error) {
			return s.node.BlockByNumber(ctx, number)
		}),
	}
}

func (s *Service) transactionQuery(hash string) querycache.Query[*models.Transaction] {
	key := querycache.MakeKey(querycache.DomainTransaction, hash)
	return querycache.Query[*models.Transaction]{
		Key:      key,
		Disabled: hash == "",
		Fetch: throughL2(s, key, func(ctx context.Context) (*models.Transaction, error) {
			return s.node.TransactionByHash(ctx, hash)
		}),
	}
}

func (s *Service) receiptQuery(hash string) querycache.Query[*models.Receipt] {
	key := querycache.MakeKey(querycache.DomainReceipt, hash)
	return querycache.Query[*models.Receipt]{
		Key:      key,
		Disabled: hash == "",
		Fetch: throughL2(s, key, func(ctx context.Context) (*models.Receipt, error) {
			return s.node.TransactionReceipt(ctx, hash)
		}),
	}
}

func (s *Service) balanceQuery(address string) querycache.Query[*big.Int] {
	return querycache.Query[*big.Int]{
		Key:      querycache.MakeKey(querycache.DomainBalance, address),
		Disabled: address == "",
		Fetch: func(ctx context.Context) (*big.Int, error) {
			return s.node.BalanceAt(ctx, address)
		},
	}
}

// LatestHeight returns the cached chain-tip height.
func (s *Service) LatestHeight(ctx context.Context) (uint64, error) {
	return querycache.Fetch(ctx, s.cache, s.latestHeightQuery())
}

// RefreshHeight forces a fresh tip read, bypassing any cached value.
func (s *Service) RefreshHeight(ctx context.Context) (uint64, error) {
	return querycache.Refetch(ctx, s.cache, s.latestHeightQuery())
}

// ChainID returns the cached chain id.
func (s *Service) ChainID(ctx context.Context) (uint64, error) {
	return querycache.Fetch(ctx, s.cache, s.chainIDQuery())
}

// GasPrice returns the cached suggested gas price.
func (s *Service) GasPrice(ctx context.Context) (*big.Int, error) {
	return querycache.Fetch(ctx, s.cache, s.gasPriceQuery())
}

// Block returns one block, from cache when possible.
func (s *Service) Block(ctx context.Context, number uint64) (*models.Block, error) {
	return querycache.Fetch(ctx, s.cache, s.blockQuery(number))
}

// BlockRange returns blocks [from, to] in ascending order. Chunked and
// dispatched with bounded concurrency; each block still resolves through
// the per-block cache key, so re-requesting a window is mostly free.
func (s *Service) BlockRange(ctx context.Context, from, to uint64) ([]*models.Block, error) {
	return querycache.FetchRange(ctx, from, to, s.batch, func(ctx context.Context, n uint64) (*models.Block, error) {
		return s.Block(ctx, n)
	})
}

// Transaction returns one transaction by hash.
func (s *Service) Transaction(ctx context.Context, hash string) (*models.Transaction, error) {
	return querycache.Fetch(ctx, s.cache, s.transactionQuery(hash))
}

// Receipt returns one receipt by transaction hash.
func (s *Service) Receipt(ctx context.Context, hash string) (*models.Receipt, error) {
	return querycache.Fetch(ctx, s.cache, s.receiptQuery(hash))
}

// Receipts fetches receipts for an unordered hash set, chunked with bounded
// concurrency. Individual failures do not fail the batch; callers get the
// partial map plus the per-hash errors.
func (s *Service) Receipts(ctx context.Context, hashes []string) (map[string]*models.Receipt, []querycache.KeyError[string]) {
	return querycache.FetchByKeys(ctx, hashes, s.batch, func(ctx context.Context, hash string) (*models.Receipt, error) {
		return s.Receipt(ctx, hash)
	})
}

// Balance returns the cached balance for one address.
func (s *Service) Balance(ctx context.Context, address string) (*big.Int, error) {
	return querycache.Fetch(ctx, s.cache, s.balanceQuery(address))
}

// Balances fans out one balance query per address. Partial data is exposed
// even when some addresses fail.
func (s *Service) Balances(ctx context.Context, addresses []string) querycache.FanOutResult[string, *big.Int] {
	return querycache.FanOut(ctx, s.cache, addresses, func(addr string) querycache.Query[*big.Int] {
		return s.balanceQuery(addr)
	})
}

// PrefetchBlocks warms the block cache for an expected range.
func (s *Service) PrefetchBlocks(ctx context.Context, from, to uint64) error {
	_, err := s.BlockRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("prefetch blocks %d-%d: %w", from, to, err)
	}
	return nil
}

// InvalidateChainTip evicts every chain-tip-sensitive domain. Called by the
// head watcher when the chain advances.
func (s *Service) InvalidateChainTip() {
	for _, domain := range []string{
		querycache.DomainLatestHeight,
		querycache.DomainGasPrice,
		querycache.DomainBalance,
		querycache.DomainStats,
		querycache.DomainActivity,
		querycache.DomainEventLogs,
	} {
		s.cache.InvalidateDomain(domain)
	}
}

// ResetAll drops the in-memory store and flushes the L2 namespace. Called
// on a detected chain reset.
func (s *Service) ResetAll(ctx context.Context) {
	s.cache.Reset()
	if s.l2 != nil {
		if err := s.l2.Flush(ctx); err != nil && !errors.Is(err, l2cache.ErrCacheDisabled) {
			s.log.Warn("failed to flush layer-2 cache: %v", err)
		}
	}
}

// throughL2 wraps an immutable-domain fetch with the second cache tier:
// read L2 before hitting the node, write through after a successful fetch.
// Any L2 failure degrades to a plain node fetch.
func throughL2[T any](s *Service, key querycache.Key, fetch func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	if s.l2 == nil || !s.cache.Tiers().IsImmutable(key.Domain()) {
		return fetch
	}

	return func(ctx context.Context) (T, error) {
		var zero T
		if raw, err := s.l2.Get(ctx, string(key)); err == nil {
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				return v, nil
			}
		}

		v, err := fetch(ctx)
		if err != nil {
			return zero, err
		}

		if raw, err := json.Marshal(v); err == nil {
			if err := s.l2.Set(ctx, string(key), raw, 0); err != nil && !errors.Is(err, l2cache.ErrCacheDisabled) {
				s.log.Debug("layer-2 write for %s failed: %v", key, err)
			}
		}
		return v, nil
	}
}
