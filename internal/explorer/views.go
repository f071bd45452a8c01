package explorer

import (
	"context"
	"fmt"
	"sync"

	"emberscan/internal/models"
	"emberscan/internal/querycache"
	"emberscan/internal/stats"
)

// JoinedBlocks is the blocks+receipts derived view. The view counts as
// loading until the receipt set for every transaction in the window has
// settled; blocks alone are not a complete view.
type JoinedBlocks struct {
	Blocks        []*models.BlockWithReceipts   `json:"blocks"`
	State         querycache.ViewState          `json:"-"`
	StateName     string                        `json:"state"`
	ReceiptErrors []querycache.KeyError[string] `json:"-"`
	FailedHashes  []string                      `json:"failed_hashes,omitempty"`
}

// BlocksWithReceipts fetches a block range, collects every transaction hash
// across it, fetches receipts for exactly that deduplicated set, and zips a
// hash-to-receipt lookup against the blocks.
func (s *Service) BlocksWithReceipts(ctx context.Context, from, to uint64) (*JoinedBlocks, error) {
	blocks, err := s.BlockRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch block range %d-%d: %w", from, to, err)
	}

	hashes := make([]string, 0)
	for _, b := range blocks {
		for _, tx := range b.Transactions {
			hashes = append(hashes, tx.Hash)
		}
	}

	receipts, failed := s.Receipts(ctx, hashes)

	view := &JoinedBlocks{
		Blocks:        make([]*models.BlockWithReceipts, 0, len(blocks)),
		ReceiptErrors: failed,
	}
	for _, b := range blocks {
		bw := &models.BlockWithReceipts{
			Block:    b,
			Receipts: make(map[string]*models.Receipt, len(b.Transactions)),
		}
		for _, tx := range b.Transactions {
			if r, ok := receipts[tx.Hash]; ok {
				bw.Receipts[tx.Hash] = r
			}
		}
		view.Blocks = append(view.Blocks, bw)
	}

	if len(failed) == 0 {
		view.State = querycache.ViewReady
	} else if len(receipts) > 0 || len(blocks) > 0 {
		view.State = querycache.ViewPartial
	} else {
		view.State = querycache.ViewPending
	}
	view.StateName = view.State.String()
	for _, f := range failed {
		view.FailedHashes = append(view.FailedHashes, f.Key)
	}
	return view, nil
}

// networkHealthQuery caches the health aggregate for a window of the most
// recent blocks under the stats tier.
func (s *Service) networkHealthQuery(window uint64) querycache.Query[*stats.NetworkHealth] {
	return querycache.Query[*stats.NetworkHealth]{
		Key: querycache.MakeKey(querycache.DomainStats, "networkHealth", window),
		Fetch: func(ctx context.Context) (*stats.NetworkHealth, error) {
			joined, err := s.recentWindow(ctx, window)
			if err != nil {
				return nil, err
			}
			return stats.ComputeNetworkHealth(joined.Blocks), nil
		},
	}
}

// gasStatsQuery caches the gas aggregate for the same window parameter.
func (s *Service) gasStatsQuery(window uint64) querycache.Query[*stats.GasStats] {
	return querycache.Query[*stats.GasStats]{
		Key: querycache.MakeKey(querycache.DomainStats, "gasStats", window),
		Fetch: func(ctx context.Context) (*stats.GasStats, error) {
			joined, err := s.recentWindow(ctx, window)
			if err != nil {
				return nil, err
			}
			return stats.ComputeGasStats(joined.Blocks, 5), nil
		},
	}
}

// recentWindow joins the last `window` blocks against their receipts.
func (s *Service) recentWindow(ctx context.Context, window uint64) (*JoinedBlocks, error) {
	tip, err := s.LatestHeight(ctx)
	if err != nil {
		return nil, err
	}
	from := uint64(0)
	if tip+1 > window {
		from = tip + 1 - window
	}
	return s.BlocksWithReceipts(ctx, from, tip)
}

// Dashboard is the aggregate network view: four independent analytic
// queries over the same window parameter merged into one object.
type Dashboard struct {
	Chain  *models.ChainInfo    `json:"chain,omitempty"`
	Health *stats.NetworkHealth `json:"health,omitempty"`
	Gas    *stats.GasStats      `json:"gas,omitempty"`
	State  string               `json:"state"`
	Errors []string             `json:"errors,omitempty"`
}

// NetworkDashboard runs the dashboard's constituent queries in parallel and
// merges whatever settled. One failing constituent degrades the view to
// partial instead of failing it.
func (s *Service) NetworkDashboard(ctx context.Context, window uint64) *Dashboard {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		d      = &Dashboard{}
		inputs []querycache.InputState
		chain  models.ChainInfo
	)

	settle := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			d.Errors = append(d.Errors, fmt.Sprintf("%s: %v", name, err))
			inputs = append(inputs, querycache.InputState{Errored: true})
		} else {
			inputs = append(inputs, querycache.InputState{Resolved: true})
		}
	}

	wg.Add(3)
	go func() {
		defer wg.Done()
		height, err := querycache.Fetch(ctx, s.cache, s.latestHeightQuery())
		if err == nil {
			id, idErr := querycache.Fetch(ctx, s.cache, s.chainIDQuery())
			price, priceErr := querycache.Fetch(ctx, s.cache, s.gasPriceQuery())
			if idErr == nil && priceErr == nil {
				mu.Lock()
				chain = models.ChainInfo{ChainID: id, LatestHeight: height, GasPriceWei: price.String()}
				d.Chain = &chain
				mu.Unlock()
			} else if idErr != nil {
				err = idErr
			} else {
				err = priceErr
			}
		}
		settle("chain", err)
	}()
	go func() {
		defer wg.Done()
		health, err := querycache.Fetch(ctx, s.cache, s.networkHealthQuery(window))
		if err == nil {
			mu.Lock()
			d.Health = health
			mu.Unlock()
		}
		settle("health", err)
	}()
	go func() {
		defer wg.Done()
		gas, err := querycache.Fetch(ctx, s.cache, s.gasStatsQuery(window))
		if err == nil {
			mu.Lock()
			d.Gas = gas
			mu.Unlock()
		}
		settle("gas", err)
	}()
	wg.Wait()
	d.State = querycache.CombineStates(inputs...).String()
	return d
}

// RefetchDashboard re-triggers every dashboard constituent concurrently and
// resolves once all have settled, regardless of individual success. The
// rebuilt view is returned.
func (s *Service) RefetchDashboard(ctx context.Context, window uint64) *Dashboard {
	var wg sync.WaitGroup

	refetch := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	refetch(func() { _, _ = querycache.Refetch(ctx, s.cache, s.latestHeightQuery()) })
	refetch(func() { _, _ = querycache.Refetch(ctx, s.cache, s.gasPriceQuery()) })
	refetch(func() { _, _ = querycache.Refetch(ctx, s.cache, s.networkHealthQuery(window)) })
	refetch(func() { _, _ = querycache.Refetch(ctx, s.cache, s.gasStatsQuery(window)) })

	wg.Wait()
	return s.NetworkDashboard(ctx, window)
}
