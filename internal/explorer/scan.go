package explorer

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"emberscan/internal/decoder"
	"emberscan/internal/metrics"
	"emberscan/internal/models"
	"emberscan/internal/querycache"
)

// ScanOptions bounds a backward scan. The bound is on work performed, not
// wall-clock time: the scan never walks past MaxBlocksToScan blocks below
// the tip, however slow the backend is.
type ScanOptions struct {
	ResultLimit     int
	MaxBlocksToScan uint64
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.ResultLimit <= 0 {
		o.ResultLimit = 25
	}
	if o.MaxBlocksToScan == 0 {
		o.MaxBlocksToScan = 1000
	}
	return o
}

// Match is one scan hit. Log is set for log-level matches and nil for
// transaction-level ones; Index is the tie-break within a block (log index
// or transaction position).
type Match struct {
	BlockNumber uint64              `json:"block_number"`
	Index       uint                `json:"index"`
	Tx          *models.Transaction `json:"tx,omitempty"`
	Receipt     *models.Receipt     `json:"receipt,omitempty"`
	Log         *decoder.DecodedLog `json:"log,omitempty"`
}

// Predicate inspects one transaction with its receipt (nil when the receipt
// fetch failed) and returns any matches it produces. Pure: never fetches.
type Predicate func(block *models.Block, tx *models.Transaction, receipt *models.Receipt) []Match

// scanCursor is the ephemeral state of one scan run. It is never stored in
// the cache; each scan rebuilds it.
type scanCursor struct {
	remaining int
	collected []Match
}

func (c *scanCursor) add(matches []Match) {
	c.collected = append(c.collected, matches...)
	c.remaining -= len(matches)
}

func (c *scanCursor) satisfied() bool { return c.remaining <= 0 }

// Scan walks the chain backward from the tip, at most opts.MaxBlocksToScan
// blocks deep, applying pred to every transaction in the window. Matches
// come back in descending block order, descending Index within a block;
// newest first is the contract every scan consumer relies on. Chunks are
// fetched tip-down; once already-fetched data satisfies the limit no
// further chunk is dispatched, but a chunk in progress is fully consumed.
func (s *Service) Scan(ctx context.Context, kind string, pred Predicate, opts ScanOptions) ([]Match, error) {
	start := time.Now()
	defer func() {
		metrics.ScanDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	opts = opts.withDefaults()

	tip, err := s.LatestHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain tip: %w", err)
	}

	// MaxBlocksToScan counts blocks of work, so the window is the
	// MaxBlocksToScan blocks ending at the tip: [tip+1-max, tip].
	low := uint64(0)
	if tip+1 > opts.MaxBlocksToScan {
		low = tip + 1 - opts.MaxBlocksToScan
	}

	chunk := uint64(s.batch.ChunkSize)
	if chunk == 0 {
		chunk = 10
	}

	cursor := &scanCursor{remaining: opts.ResultLimit}

	end := tip
	for {
		chunkLow := low
		if end+1 > chunk && end+1-chunk > low {
			chunkLow = end + 1 - chunk
		}

		blocks, err := s.BlockRange(ctx, chunkLow, end)
		if err != nil {
			return nil, fmt.Errorf("scan blocks %d-%d: %w", chunkLow, end, err)
		}
		metrics.ScanBlocksScannedTotal.Add(float64(len(blocks)))

		hashes := make([]string, 0)
		for _, b := range blocks {
			for _, tx := range b.Transactions {
				hashes = append(hashes, tx.Hash)
			}
		}
		receipts, _ := s.Receipts(ctx, hashes)

		// Walk the chunk newest-first so early termination keeps the
		// most recent matches.
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]
			for j := range b.Transactions {
				tx := &b.Transactions[j]
				cursor.add(pred(b, tx, receipts[tx.Hash]))
			}
		}

		if cursor.satisfied() || chunkLow == low {
			break
		}
		end = chunkLow - 1
	}

	sort.SliceStable(cursor.collected, func(i, j int) bool {
		a, b := cursor.collected[i], cursor.collected[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber > b.BlockNumber
		}
		return a.Index > b.Index
	})

	if len(cursor.collected) > opts.ResultLimit {
		cursor.collected = cursor.collected[:opts.ResultLimit]
	}
	return cursor.collected, nil
}

// AddressActivity scans backward for transactions touching an address:
// sender, recipient, or any emitted log from that address. Results are
// cached for a short window under the activity tier.
func (s *Service) AddressActivity(ctx context.Context, address string, opts ScanOptions) ([]Match, error) {
	opts = opts.withDefaults()
	addr := strings.ToLower(address)

	return querycache.Fetch(ctx, s.cache, querycache.Query[[]Match]{
		Key:      querycache.MakeKey(querycache.DomainActivity, addr, opts.MaxBlocksToScan, opts.ResultLimit),
		Disabled: addr == "",
		Fetch: func(ctx context.Context) ([]Match, error) {
			return s.Scan(ctx, "activity", func(b *models.Block, tx *models.Transaction, r *models.Receipt) []Match {
				if tx.From == addr || tx.To == addr {
					return []Match{{BlockNumber: b.Number, Index: tx.Index, Tx: tx, Receipt: r}}
				}
				if r != nil {
					for _, l := range r.Logs {
						if l.Address == addr {
							return []Match{{BlockNumber: b.Number, Index: tx.Index, Tx: tx, Receipt: r}}
						}
					}
				}
				return nil
			}, opts)
		},
	})
}

// EventSearch scans backward for logs whose decoded event name contains
// name (case-insensitive), optionally restricted to one emitting address.
// An empty name matches every decodable log.
func (s *Service) EventSearch(ctx context.Context, name, address string, opts ScanOptions) ([]Match, error) {
	opts = opts.withDefaults()
	needle := strings.ToLower(name)
	addr := strings.ToLower(address)

	return querycache.Fetch(ctx, s.cache, querycache.Query[[]Match]{
		Key: querycache.MakeKey(querycache.DomainEventLogs, opts.MaxBlocksToScan, opts.ResultLimit, addr, needle),
		Fetch: func(ctx context.Context) ([]Match, error) {
			return s.Scan(ctx, "events", func(b *models.Block, tx *models.Transaction, r *models.Receipt) []Match {
				if r == nil {
					return nil
				}
				var matches []Match
				for _, l := range r.Logs {
					if addr != "" && l.Address != addr {
						continue
					}
					d := decoder.DecodeLog(l)
					if d.Event == "" {
						continue
					}
					if needle != "" && !strings.Contains(strings.ToLower(d.Event), needle) {
						continue
					}
					dl := d
					matches = append(matches, Match{BlockNumber: b.Number, Index: l.LogIndex, Tx: tx, Receipt: r, Log: &dl})
				}
				return matches
			}, opts)
		},
	})
}
