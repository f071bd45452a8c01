package service

import (
	"context"
	"fmt"
	"time"

	"emberscan/internal/explorer"
	"emberscan/internal/metrics"
	"emberscan/internal/models"
	"emberscan/pkg/logger"
)

// HeadPublisher receives new chain-tip events as they are observed.
type HeadPublisher interface {
	Publish(ev *models.HeadEvent)
}

// HeadWatcher polls the chain tip and drives the cache on every advance:
// tip-coupled domains get invalidated so the next read refetches, and a
// head event goes out on the stream. A tip that moves backward is treated
// as a chain reset and flushes everything, including the second-level cache.
type HeadWatcher struct {
	svc          *explorer.Service
	stream       HeadPublisher
	logger       *logger.Logger
	pollInterval time.Duration
	prefetch     uint64

	lastHeight uint64
	seen       bool
}

func NewHeadWatcher(svc *explorer.Service, stream HeadPublisher, log *logger.Logger, pollInterval time.Duration, prefetchDepth uint64) *HeadWatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &HeadWatcher{
		svc:          svc,
		stream:       stream,
		logger:       log,
		pollInterval: pollInterval,
		prefetch:     prefetchDepth,
	}
}

func (w *HeadWatcher) Start(ctx context.Context) error {
	w.logger.Info("Starting head watcher (poll interval: %v)", w.pollInterval)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Head watcher stopped")
			return nil
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Error("Head poll failed: %v", err)
			}
		}
	}
}

func (w *HeadWatcher) poll(ctx context.Context) error {
	pollCtx, cancel := context.WithTimeout(ctx, w.pollInterval*5)
	defer cancel()

	// Refetch bypasses the cached tip so a stale entry can't hide an advance.
	height, err := w.svc.RefreshHeight(pollCtx)
	if err != nil {
		return fmt.Errorf("failed to get latest height: %w", err)
	}

	metrics.CurrentHead.Set(float64(height))

	switch {
	case !w.seen:
		w.seen = true
		w.lastHeight = height
		w.logger.Info("Head watcher observing from block %d", height)
		return nil
	case height == w.lastHeight:
		return nil
	case height < w.lastHeight:
		return w.onChainReset(pollCtx, height)
	}

	w.onAdvance(pollCtx, height)
	w.lastHeight = height
	return nil
}

func (w *HeadWatcher) onAdvance(ctx context.Context, height uint64) {
	w.svc.InvalidateChainTip()

	block, err := w.svc.Block(ctx, height)
	if err != nil {
		w.logger.Warn("New head %d observed but block fetch failed: %v", height, err)
		return
	}

	ev := &models.HeadEvent{
		Height:     block.Number,
		Hash:       block.Hash,
		ParentHash: block.ParentHash,
		TxCount:    len(block.Transactions),
		Timestamp:  block.Timestamp,
		ObservedAt: time.Now().UTC(),
	}
	if w.stream != nil {
		w.stream.Publish(ev)
	}

	w.logger.WithFields(logger.LevelDebug, "New head", map[string]interface{}{
		"height":   block.Number,
		"hash":     block.Hash,
		"tx_count": len(block.Transactions),
	})

	// Warm the recent-block window so the next dashboard load is cheap.
	if w.prefetch > 0 {
		from := uint64(0)
		if height+1 > w.prefetch {
			from = height + 1 - w.prefetch
		}
		if err := w.svc.PrefetchBlocks(ctx, from, height); err != nil {
			w.logger.Debug("Block prefetch after new head failed: %v", err)
		}
	}
}

func (w *HeadWatcher) onChainReset(ctx context.Context, height uint64) error {
	metrics.ChainResetsTotal.Inc()
	w.logger.Warn("Chain tip moved backward (%d -> %d), flushing caches", w.lastHeight, height)

	w.svc.ResetAll(ctx)
	w.lastHeight = height
	return nil
}
