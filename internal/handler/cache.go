package handler

import (
	"net/http"
	"time"

	"emberscan/internal/explorer"
	"emberscan/internal/querycache"

	"github.com/gin-gonic/gin"
)

// CacheHandler exposes operational control over the query cache:
// warming, targeted invalidation, and a full flush.
type CacheHandler struct {
	service *explorer.Service
}

func NewCacheHandler(service *explorer.Service) *CacheHandler {
	return &CacheHandler{service: service}
}

type prefetchRequest struct {
	FromBlock uint64 `json:"from_block" binding:"required"`
	ToBlock   uint64 `json:"to_block" binding:"required"`
}

// Prefetch warms the block cache for a range without blocking the caller
// on individual fetches.
func (h *CacheHandler) Prefetch(c *gin.Context) {
	start := time.Now()

	var req prefetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ToBlock < req.FromBlock || req.ToBlock-req.FromBlock >= 1000 {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "range must be ascending and at most 1000 blocks"})
		return
	}

	if err := h.service.PrefetchBlocks(c.Request.Context(), req.FromBlock, req.ToBlock); err != nil {
		respondError(c, start, err)
		return
	}

	observe(c, start, http.StatusAccepted)
	c.JSON(http.StatusAccepted, gin.H{
		"status": "prefetch scheduled",
		"blocks": req.ToBlock - req.FromBlock + 1,
	})
}

type invalidateRequest struct {
	Key    string `json:"key"`
	Domain string `json:"domain"`
}

// Invalidate marks a single key or a whole domain stale. Entries stay
// readable until the next fetch replaces them.
func (h *CacheHandler) Invalidate(c *gin.Context) {
	start := time.Now()

	var req invalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch {
	case req.Key != "":
		h.service.Cache().Invalidate(querycache.Key(req.Key))
	case req.Domain != "":
		h.service.Cache().InvalidateDomain(req.Domain)
	default:
		observe(c, start, http.StatusBadRequest)
		c.JSON(http.StatusBadRequest, gin.H{"error": "either 'key' or 'domain' is required"})
		return
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"status": "invalidated"})
}

// Reset drops every cached entry, including the second-level cache.
func (h *CacheHandler) Reset(c *gin.Context) {
	start := time.Now()

	h.service.ResetAll(c.Request.Context())

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{"status": "cache reset"})
}

// Stats reports entry counts per domain for quick operational inspection.
func (h *CacheHandler) Stats(c *gin.Context) {
	start := time.Now()

	store := h.service.Cache().Store()
	byDomain := make(map[string]int)
	for _, key := range store.Keys() {
		byDomain[key.Domain()]++
	}

	observe(c, start, http.StatusOK)
	c.JSON(http.StatusOK, gin.H{
		"entries":    store.Len(),
		"by_domain":  byDomain,
		"checked_at": time.Now().UTC(),
	})
}
