package stats

import (
	"testing"
	"time"

	"emberscan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func window() []*models.BlockWithReceipts {
	mk := func(number uint64, ts int64, txs ...models.Transaction) *models.BlockWithReceipts {
		bw := &models.BlockWithReceipts{
			Block: &models.Block{
				Number:       number,
				Timestamp:    time.Unix(ts, 0).UTC(),
				GasUsed:      10_000_000,
				GasLimit:     30_000_000,
				Transactions: txs,
			},
			Receipts: make(map[string]*models.Receipt),
		}
		for _, tx := range txs {
			status := uint64(1)
			if tx.Nonce == 99 { // marker for a reverted tx
				status = 0
			}
			bw.Receipts[tx.Hash] = &models.Receipt{TxHash: tx.Hash, Status: status, GasUsed: 21000}
		}
		return bw
	}

	return []*models.BlockWithReceipts{
		// Deliberately unordered: aggregation must sort by block number.
		mk(102, 1024, models.Transaction{Hash: "0xc", From: "0xalice", GasPriceWei: "3000000000"}),
		mk(100, 1000,
			models.Transaction{Hash: "0xa", From: "0xalice", GasPriceWei: "1000000000"},
			models.Transaction{Hash: "0xb", From: "0xbob", GasPriceWei: "2000000000", Nonce: 99},
		),
		mk(101, 1012),
	}
}

func TestComputeNetworkHealth(t *testing.T) {
	h := ComputeNetworkHealth(window())

	assert.Equal(t, uint64(100), h.FromBlock)
	assert.Equal(t, uint64(102), h.ToBlock)
	assert.Equal(t, 3, h.BlockCount)
	assert.Equal(t, 3, h.TxCount)
	assert.InDelta(t, 1.0, h.TxPerBlock, 0.001)

	// 24 seconds across 2 gaps.
	assert.InDelta(t, 12.0, h.AvgBlockTimeSec, 0.001)
	// 10M of 30M per block.
	assert.InDelta(t, 33.333, h.GasUsedPct, 0.01)
	// 2 of 3 receipts succeeded.
	assert.InDelta(t, 66.666, h.SuccessRatePct, 0.01)
}

func TestComputeNetworkHealthEmptyWindow(t *testing.T) {
	h := ComputeNetworkHealth(nil)
	assert.Equal(t, 0, h.BlockCount)
	assert.Zero(t, h.AvgBlockTimeSec)
}

func TestComputeGasStats(t *testing.T) {
	g := ComputeGasStats(window(), 5)

	assert.Equal(t, uint64(100), g.FromBlock)
	assert.Equal(t, uint64(102), g.ToBlock)
	// Three receipts at 21000 each.
	assert.Equal(t, uint64(63000), g.TotalGasUsed)
	assert.Equal(t, "2000000000", g.AvgGasPriceWei)
	assert.Equal(t, "3000000000", g.MaxGasPriceWei)

	require.Len(t, g.TopConsumers, 2)
	assert.Equal(t, "0xalice", g.TopConsumers[0].Address)
	assert.Equal(t, uint64(42000), g.TopConsumers[0].GasUsed)
	assert.Equal(t, 2, g.TopConsumers[0].TxCount)
	assert.Equal(t, "0xbob", g.TopConsumers[1].Address)
}

func TestComputeGasStatsTopNTrim(t *testing.T) {
	g := ComputeGasStats(window(), 1)
	require.Len(t, g.TopConsumers, 1)
	assert.Equal(t, "0xalice", g.TopConsumers[0].Address)
}

func TestComputeGasStatsEmptyWindow(t *testing.T) {
	g := ComputeGasStats(nil, 5)
	assert.Equal(t, "0", g.AvgGasPriceWei)
	assert.Empty(t, g.TopConsumers)
}
