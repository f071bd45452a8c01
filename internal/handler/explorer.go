package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"emberscan/internal/ethereum"
	"emberscan/internal/explorer"
	"emberscan/internal/metrics"

	"github.com/gin-gonic/gin"
)

// ExplorerHandler serves the read API: blocks, transactions, addresses,
// dashboards and event search. Everything resolves through the query cache.
type ExplorerHandler struct {
	service *explorer.Service
	scan    explorer.ScanOptions
}

func NewExplorerHandler(service *explorer.Service, scan explorer.ScanOptions) *ExplorerHandler {
	return &ExplorerHandler{service: service, scan: scan}
}

func observe(c *gin.Context, start time.Time, status int) {
	metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), strconv.Itoa(status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()).Observe(time.Since(start).Seconds())
}

func respondError(c *gin.Context, start time.Time, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, ethereum.ErrNotFound) {
		status = http.StatusNotFound
	}
	observe(c, start, status)
	c.JSON(status, gin.H{"error": err.Error()})
}

// GetChainInfo returns the live chain summary: id, tip height, gas price.
func (h *ExplorerHandler) GetChainInfo(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	chainID, err := h.service.ChainID(ctx)
	if err != nil {
		respondError(c, start, err)
		return
	}
	height, err := h.service.LatestHeight(ctx)
	if err != nil {
		respondError(c, start, err)
		return
	}
	gasPrice, err := h.service.GasPrice(ctx)
	if err != nil {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"chain_id":      chainID,
		"latest_height": height,
		"gas_price_wei": gasPrice.String(),
	})
}

// GetBlock returns one block by number, or the tip for "latest".
func (h *ExplorerHandler) GetBlock(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()

	numberStr := c.Param("number")
	var number uint64
	if numberStr == "latest" {
		tip, err := h.service.LatestHeight(ctx)
		if err != nil {
			respondError(c, start, err)
			return
		}
		number = tip
	} else {
		n, err := strconv.ParseUint(numberStr, 10, 64)
		if err != nil {
			observe(c, start, http.StatusBadRequest)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid block number"})
			return
		}
		number = n
	}

	block, err := h.service.Block(ctx, number)
	if err != nil {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, block)
}

// GetBlockRange returns blocks from..to joined with their receipts.
// The range is capped to keep one request from scanning half the chain.
func (h *ExplorerHandler) GetBlockRange(c *gin.Context) {
	start := time.Now()

	from, err := strconv.ParseUint(c.Query("from"), 10, 64)
	if err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' block number"})
		return
	}
	to, err := strconv.ParseUint(c.Query("to"), 10, 64)
	if err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' block number"})
		return
	}
	if to < from || to-from >= 100 {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "range must be ascending and at most 100 blocks"})
		return
	}

	joined, err := h.service.BlocksWithReceipts(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, joined)
}

// GetTransaction returns a transaction with its receipt when available.
func (h *ExplorerHandler) GetTransaction(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	hash := c.Param("hash")

	tx, err := h.service.Transaction(ctx, hash)
	if err != nil {
		respondError(c, start, err)
		return
	}

	// Receipt is best-effort: a freshly mined tx may not have one yet.
	receipt, err := h.service.Receipt(ctx, hash)
	if err != nil && !errors.Is(err, ethereum.ErrNotFound) {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"transaction": tx, "receipt": receipt})
}

// GetAddress returns the address page: current balance plus recent activity
// found by scanning backward from the tip.
func (h *ExplorerHandler) GetAddress(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	address := c.Param("address")

	balance, err := h.service.Balance(ctx, address)
	if err != nil {
		respondError(c, start, err)
		return
	}

	opts := h.scanOptions(c)
	activity, err := h.service.AddressActivity(ctx, address, opts)
	if err != nil {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"address":     address,
		"balance_wei": balance.String(),
		"activity":    activity,
	})
}

// GetBalances resolves balances for a comma-separated address list in one
// fan-out. Partial failures come back alongside the data that did resolve.
func (h *ExplorerHandler) GetBalances(c *gin.Context) {
	start := time.Now()

	addresses := c.QueryArray("address")
	if len(addresses) == 0 {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one 'address' parameter required"})
		return
	}

	res := h.service.Balances(c.Request.Context(), addresses)

	balances := make(map[string]string, len(res.Data))
	for addr, bal := range res.Data {
		balances[addr] = bal.String()
	}
	failed := make(map[string]string)
	for _, e := range res.Errors {
		failed[e.Item] = e.Err.Error()
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"balances": balances, "errors": failed})
}

// GetDashboard returns the composed network dashboard. The view is served
// in whatever state its inputs are in; state tells the client whether data
// is complete, partial, or still loading.
func (h *ExplorerHandler) GetDashboard(c *gin.Context) {
	start := time.Now()

	window := uint64(50)
	if w, err := strconv.ParseUint(c.Query("window"), 10, 64); err == nil && w > 0 && w <= 500 {
		window = w
	}

	d := h.service.NetworkDashboard(c.Request.Context(), window)

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, d)
}

// RefreshDashboard forces every dashboard input to refetch, then returns
// the rebuilt view.
func (h *ExplorerHandler) RefreshDashboard(c *gin.Context) {
	start := time.Now()

	window := uint64(50)
	if w, err := strconv.ParseUint(c.Query("window"), 10, 64); err == nil && w > 0 && w <= 500 {
		window = w
	}

	d := h.service.RefetchDashboard(c.Request.Context(), window)

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, d)
}

// SearchEvents scans recent blocks for decoded event logs matching a name
// and optional emitting contract.
func (h *ExplorerHandler) SearchEvents(c *gin.Context) {
	start := time.Now()

	name := c.Query("name")
	address := c.Query("address")

	matches, err := h.service.EventSearch(c.Request.Context(), name, address, h.scanOptions(c))
	if err != nil {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

func (h *ExplorerHandler) scanOptions(c *gin.Context) explorer.ScanOptions {
	opts := h.scan
	if limitStr := c.Query("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 200 {
			opts.ResultLimit = limit
		}
	}
	if depthStr := c.Query("depth"); depthStr != "" {
		if depth, err := strconv.ParseUint(depthStr, 10, 64); err == nil && depth > 0 && depth <= opts.MaxBlocksToScan {
			opts.MaxBlocksToScan = depth
		}
	}
	return opts
}
