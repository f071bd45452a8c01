package stats

import (
	"math/big"
	"sort"

	"emberscan/internal/models"
)

// NetworkHealth summarizes chain behavior over a block window.
type NetworkHealth struct {
	FromBlock       uint64  `json:"from_block"`
	ToBlock         uint64  `json:"to_block"`
	BlockCount      int     `json:"block_count"`
	AvgBlockTimeSec float64 `json:"avg_block_time_sec"`
	TxCount         int     `json:"tx_count"`
	TxPerBlock      float64 `json:"tx_per_block"`
	GasUsedPct      float64 `json:"gas_used_pct"`
	SuccessRatePct  float64 `json:"success_rate_pct"`
}

// ComputeNetworkHealth derives health figures from an already-fetched
// window of blocks joined with their receipts. Pure: no fetching here.
func ComputeNetworkHealth(window []*models.BlockWithReceipts) *NetworkHealth {
	h := &NetworkHealth{}
	if len(window) == 0 {
		return h
	}

	sorted := sortedByNumber(window)
	h.FromBlock = sorted[0].Block.Number
	h.ToBlock = sorted[len(sorted)-1].Block.Number
	h.BlockCount = len(sorted)

	var gasUsed, gasLimit uint64
	succeeded, receipts := 0, 0
	for _, bw := range sorted {
		h.TxCount += len(bw.Block.Transactions)
		gasUsed += bw.Block.GasUsed
		gasLimit += bw.Block.GasLimit
		for _, r := range bw.Receipts {
			receipts++
			if r.Status == 1 {
				succeeded++
			}
		}
	}

	h.TxPerBlock = float64(h.TxCount) / float64(h.BlockCount)
	if gasLimit > 0 {
		h.GasUsedPct = 100 * float64(gasUsed) / float64(gasLimit)
	}
	if receipts > 0 {
		h.SuccessRatePct = 100 * float64(succeeded) / float64(receipts)
	}
	if len(sorted) > 1 {
		span := sorted[len(sorted)-1].Block.Timestamp.Sub(sorted[0].Block.Timestamp)
		h.AvgBlockTimeSec = span.Seconds() / float64(len(sorted)-1)
	}
	return h
}

// GasConsumer is one address ranked by total gas used in the window.
type GasConsumer struct {
	Address string `json:"address"`
	GasUsed uint64 `json:"gas_used"`
	TxCount int    `json:"tx_count"`
}

// GasStats summarizes gas behavior over a block window.
type GasStats struct {
	FromBlock      uint64        `json:"from_block"`
	ToBlock        uint64        `json:"to_block"`
	TotalGasUsed   uint64        `json:"total_gas_used"`
	AvgGasPriceWei string        `json:"avg_gas_price_wei"`
	MaxGasPriceWei string        `json:"max_gas_price_wei"`
	TopConsumers   []GasConsumer `json:"top_consumers"`
}

// ComputeGasStats derives gas figures and the top gas consumers (by sender
// address) from a joined block window.
func ComputeGasStats(window []*models.BlockWithReceipts, topN int) *GasStats {
	g := &GasStats{AvgGasPriceWei: "0", MaxGasPriceWei: "0"}
	if len(window) == 0 {
		return g
	}
	if topN <= 0 {
		topN = 5
	}

	sorted := sortedByNumber(window)
	g.FromBlock = sorted[0].Block.Number
	g.ToBlock = sorted[len(sorted)-1].Block.Number

	sum := new(big.Int)
	max := new(big.Int)
	priced := 0
	type consumer struct {
		gas uint64
		txs int
	}
	byAddr := make(map[string]*consumer)

	for _, bw := range sorted {
		for _, tx := range bw.Block.Transactions {
			if price, ok := new(big.Int).SetString(tx.GasPriceWei, 10); ok {
				sum.Add(sum, price)
				priced++
				if price.Cmp(max) > 0 {
					max.Set(price)
				}
			}

			gas := tx.Gas
			if r, ok := bw.Receipts[tx.Hash]; ok {
				gas = r.GasUsed
			}
			g.TotalGasUsed += gas

			c := byAddr[tx.From]
			if c == nil {
				c = &consumer{}
				byAddr[tx.From] = c
			}
			c.gas += gas
			c.txs++
		}
	}

	if priced > 0 {
		g.AvgGasPriceWei = new(big.Int).Div(sum, big.NewInt(int64(priced))).String()
	}
	g.MaxGasPriceWei = max.String()

	consumers := make([]GasConsumer, 0, len(byAddr))
	for addr, c := range byAddr {
		consumers = append(consumers, GasConsumer{Address: addr, GasUsed: c.gas, TxCount: c.txs})
	}
	sort.Slice(consumers, func(i, j int) bool {
		if consumers[i].GasUsed != consumers[j].GasUsed {
			return consumers[i].GasUsed > consumers[j].GasUsed
		}
		return consumers[i].Address < consumers[j].Address
	})
	if len(consumers) > topN {
		consumers = consumers[:topN]
	}
	g.TopConsumers = consumers
	return g
}

func sortedByNumber(window []*models.BlockWithReceipts) []*models.BlockWithReceipts {
	out := make([]*models.BlockWithReceipts, 0, len(window))
	for _, bw := range window {
		if bw != nil && bw.Block != nil {
			out = append(out, bw)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Block.Number < out[j].Block.Number })
	return out
}
