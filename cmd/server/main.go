package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emberscan/internal/cache"
	"emberscan/internal/config"
	"emberscan/internal/ethereum"
	"emberscan/internal/explorer"
	"emberscan/internal/handler"
	"emberscan/internal/querycache"
	"emberscan/internal/service"
	"emberscan/internal/stream"
	"emberscan/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:      cfg.Logging.Level,
		JSONFormat: cfg.Logging.Format == "json",
		ToFile:     cfg.Logging.ToFile,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	// Ethereum client with provider pool (if configured) or single provider
	var ethereumClient *ethereum.Client
	if cfg.Ethereum.RPCConfig != "" {
		providers, err := config.LoadProvidersFromYAML(cfg.Ethereum.RPCConfig, cfg.Ethereum.RPCURL)
		if err != nil {
			log.Error("Failed to load providers from config: %v", err)
			os.Exit(1)
		}

		pool := ethereum.NewPool(providers)
		ethereumClient = ethereum.NewClientFromPool(pool)
		log.Info("Initialized provider pool with %d providers", len(providers))
	} else {
		ethereumClient, err = ethereum.NewClient(cfg.Ethereum.RPCURL)
		if err != nil {
			log.Error("Failed to create Ethereum client: %v", err)
			os.Exit(1)
		}
		log.Info("Using single RPC provider (legacy mode)")
	}
	defer ethereumClient.Close()

	// Second-level cache (optional, gracefully degrades if unavailable)
	redisCache, err := cache.NewRedisCache(cfg.Redis.URI, "emberscan", cfg.Redis.Enabled, log)
	if err != nil {
		log.Warn("Redis cache unavailable, continuing with in-memory cache only: %v", err)
		redisCache, _ = cache.NewRedisCache("", "emberscan", false, log)
	}
	defer func() {
		if err := redisCache.Close(); err != nil {
			log.Error("Failed to close Redis cache: %v", err)
		}
	}()

	tiers, err := config.LoadTiersFromYAML(cfg.Cache.TiersConfig)
	if err != nil {
		log.Error("Failed to load tier config: %v", err)
		os.Exit(1)
	}

	queryCache := querycache.NewCache(querycache.NewStore(), tiers, log)

	batch := querycache.BatchOptions{
		ChunkSize:   cfg.Cache.ChunkSize,
		Concurrency: cfg.Cache.FetchConcurrency,
	}
	explorerService := explorer.NewService(queryCache, ethereumClient, redisCache, log, batch)

	// Keep concrete type for handler, use interface for the head watcher
	var streamInstance *stream.Stream
	var headPublisher service.HeadPublisher
	if cfg.Streaming.Enabled {
		streamInstance = stream.NewStream(cfg.Streaming.BufferSize, log)
		headPublisher = streamInstance
		log.Info("Head streaming enabled (buffer: %d)", cfg.Streaming.BufferSize)
	}

	headWatcher := service.NewHeadWatcher(
		explorerService,
		headPublisher,
		log,
		cfg.Heads.PollInterval,
		cfg.Heads.PrefetchDepth,
	)

	scanDefaults := explorer.ScanOptions{
		ResultLimit:     cfg.Scan.ResultLimit,
		MaxBlocksToScan: cfg.Scan.MaxBlocks,
	}
	explorerHandler := handler.NewExplorerHandler(explorerService, scanDefaults)
	cacheHandler := handler.NewCacheHandler(explorerService)

	var streamHandler *handler.StreamHandler
	if cfg.Streaming.Enabled && streamInstance != nil {
		streamHandler = handler.NewStreamHandler(streamInstance)
	}

	router := setupRouter(explorerHandler, cacheHandler, streamHandler, cfg)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := headWatcher.Start(ctx); err != nil {
			log.Error("Head watcher error: %v", err)
		}
	}()

	go func() {
		log.Info("Starting HTTP server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited")
}

func setupRouter(explorerHandler *handler.ExplorerHandler, cacheHandler *handler.CacheHandler, streamHandler *handler.StreamHandler, cfg *config.Config) *gin.Engine {
	router := gin.Default()

	api := router.Group("/api/v1")
	{
		api.GET("/chain", explorerHandler.GetChainInfo)
		api.GET("/blocks", explorerHandler.GetBlockRange)
		api.GET("/blocks/:number", explorerHandler.GetBlock)
		api.GET("/transactions/:hash", explorerHandler.GetTransaction)
		api.GET("/addresses/:address", explorerHandler.GetAddress)
		api.GET("/balances", explorerHandler.GetBalances)
		api.GET("/dashboard", explorerHandler.GetDashboard)
		api.POST("/dashboard/refresh", explorerHandler.RefreshDashboard)
		api.GET("/events", explorerHandler.SearchEvents)

		api.POST("/cache/prefetch", cacheHandler.Prefetch)
		api.POST("/cache/invalidate", cacheHandler.Invalidate)
		api.POST("/cache/reset", cacheHandler.Reset)
		api.GET("/cache/stats", cacheHandler.Stats)
	}

	if cfg.Streaming.Enabled && streamHandler != nil {
		router.GET("/ws/heads", streamHandler.HandleWebSocket)
		router.GET("/sse/heads", streamHandler.HandleSSE)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	return router
}
