// server is the ingress HTTP binary for the hybrid ingestion-and-retrieval
// pipeline: it wires the rate limiter, cache tier, chunker, cost policy,
// vector and graph stores, embedding client, ingestion coordinator and
// hybrid retriever behind the §6 HTTP/JSON API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"conhub-ingest/internal/api"
	"conhub-ingest/internal/cache"
	"conhub-ingest/internal/chunking"
	"conhub-ingest/internal/circuitbreaker"
	"conhub-ingest/internal/config"
	"conhub-ingest/internal/costpolicy"
	"conhub-ingest/internal/deployment"
	"conhub-ingest/internal/embeddings"
	"conhub-ingest/internal/entities"
	"conhub-ingest/internal/ingestion"
	"conhub-ingest/internal/logging"
	"conhub-ingest/internal/ratelimit"
	"conhub-ingest/internal/retrieval"
	"conhub-ingest/internal/retry"
	"conhub-ingest/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP server address override (host:port); defaults to config's server.host:server.port")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.WithComponent("server")

	listenAddr := *addr
	if listenAddr == "" {
		listenAddr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdown := deployment.NewShutdownManager(logger, 30*time.Second)

	// --- C6: vector store ---------------------------------------------
	vectorStore := buildVectorStore(ctx, cfg, logger)
	shutdown.RegisterShutdownFunc("vector_store", 10, func(context.Context) error { return vectorStore.Close() })

	// --- C7: graph store -------------------------------------------------
	graphStore, err := storage.NewSQLGraphStore(cfg.Database.Driver, cfg.Database.BuildDSN(),
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		log.Fatalf("failed to open graph store: %v", err)
	}
	if err := graphStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("failed to bootstrap graph store schema: %v", err)
	}
	shutdown.RegisterShutdownFunc("graph_store", 10, func(context.Context) error { return graphStore.Close() })

	// --- C10: embedding/rerank client ------------------------------------
	embedClient := buildEmbeddingClient(cfg)
	if err := embedClient.HealthCheck(ctx); err != nil {
		logger.Warn("embedding service health check failed at startup, continuing degraded", "error", err)
	}
	if embedClient.Dimension() != cfg.Embedding.Dimension {
		log.Fatalf("embedding client dimension %d does not match configured collection dimension %d", embedClient.Dimension(), cfg.Embedding.Dimension)
	}

	// --- C1: rate limiter --------------------------------------------------
	limiter := ratelimit.NewLimiter(rateLimitConfigFrom(cfg))

	// --- C2: cache tier ------------------------------------------------
	var tier2 cache.Tier2
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		tier2 = cache.NewRedisTier2(redisClient, cfg.Redis.KeyPrefix)
		shutdown.RegisterShutdownFunc("redis_cache", 5, func(context.Context) error { return redisClient.Close() })
	}
	queryCache := cache.New(cache.DefaultConfig(), tier2, logging.WithComponent("cache"))

	// --- C4: cost policy -------------------------------------------------
	costManager := costpolicy.NewManager()
	if path := os.Getenv("CONHUB_COST_POLICY_FILE"); path != "" {
		if err := costpolicy.LoadOverlay(costManager, path); err != nil {
			log.Fatalf("failed to load cost policy overlay: %v", err)
		}
	} else if cfg.CostPolicy.ActivePolicy != "" {
		if err := costManager.SetActive(cfg.CostPolicy.ActivePolicy); err != nil {
			logger.Warn("unknown active cost policy in config, keeping default", "policy", cfg.CostPolicy.ActivePolicy, "error", err)
		}
	}

	// --- C3: chunker -------------------------------------------------------
	profileManager := chunking.NewProfileManager()
	chunkEngine := chunking.NewEngine(profileManager)

	// --- C5: entity extraction/resolution ---------------------------------
	resolver := entities.NewResolver(graphStore)

	// --- C8: ingestion coordinator -----------------------------------------
	coordinator := ingestion.New(ingestion.DefaultConfig(), chunkEngine, costManager, embedClient,
		vectorStore, graphStore, resolver, limiter, logging.WithComponent("ingestion_coordinator"))

	// --- C9: hybrid retriever ----------------------------------------------
	retriever := retrieval.New(vectorStore, graphStore, embedClient, queryCache, logging.WithComponent("hybrid_retriever"))

	// --- ingress API ---------------------------------------------------
	profileName := cfg.Chunking.ActiveProfile
	if profileName == "" {
		profileName = "default"
	}
	ingestHandler := api.NewIngestHandler(coordinator, profileName, "default", []string{".go", ".py", ".js", ".ts", ".md", ".rs", ".java"}, logging.WithComponent("ingest_handler"))
	jobsHandler := api.NewJobsHandler(coordinator, cfg.WebSocket.AllowedOrigins, logging.WithComponent("jobs_handler"))
	queryHandler := api.NewQueryHandler(retriever, logging.WithComponent("query_handler"))
	chunksHandler := api.NewChunksHandler(vectorStore, graphStore, logging.WithComponent("chunks_handler"))
	router := api.NewRouter(ingestHandler, queryHandler, jobsHandler, chunksHandler, logging.WithComponent("api_router"))

	// --- ops surface: health checks, metrics, graceful shutdown ------------
	healthMgr := deployment.NewHealthManager("0.1.0")
	healthMgr.AddChecker(deployment.NewVectorStorageHealthChecker("qdrant", vectorStore.HealthCheck))
	healthMgr.AddChecker(deployment.NewDatabaseHealthChecker("graph_store", func(ctx context.Context) error {
		_, err := graphStore.ChunkIDsByRepository(ctx, "")
		return err
	}))
	healthMgr.AddChecker(deployment.NewMemoryHealthChecker(2048))
	healthMgr.StartPeriodicChecks(ctx, 30*time.Second)

	// monitoringMgr samples system/health gauges on an interval and serves
	// the same MetricsCollector the cache tier (§4.2 T2 failures) and the
	// hybrid retriever (§4.9 degradation flags) record named counters
	// against, so both show up on one /metrics snapshot.
	monitoringMgr := deployment.NewMonitoringManager(logging.WithComponent("monitoring"), healthMgr, 30*time.Second)
	if err := monitoringMgr.Start(ctx); err != nil {
		logger.Warn("monitoring manager failed to start", "error", err)
	}
	shutdown.RegisterShutdownFunc("monitoring", 2, func(context.Context) error { return monitoringMgr.Stop() })

	mux := http.NewServeMux()
	mux.Handle("/health", healthMgr.HTTPHandler())
	mux.Handle("/health/ready", healthMgr.ReadinessHandler())
	mux.Handle("/health/live", healthMgr.LivenessHandler())
	mux.Handle("/metrics", monitoringMgr.HTTPHandler())
	mux.Handle("/", router.Handler())

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           mux,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	shutdown.RegisterShutdownFunc("http_server", 1, func(shutdownCtx context.Context) error {
		return httpServer.Shutdown(shutdownCtx)
	})

	go func() {
		logger.Info("ingestion pipeline listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received, draining")
	shutdown.Shutdown()
}

// buildVectorStore constructs the Qdrant adapter wrapped with a circuit
// breaker and retry policy (§4.6, §5 transactionality), and ensures the
// collection exists at the configured dimension before returning.
func buildVectorStore(ctx context.Context, cfg *config.Config, logger logging.Logger) storage.VectorStore {
	qdrantStore := storage.NewQdrantStore(&cfg.Qdrant)
	if err := qdrantStore.EnsureCollection(ctx, cfg.Embedding.Dimension); err != nil {
		log.Fatalf("failed to ensure vector collection: %v", err)
	}

	var store storage.VectorStore = qdrantStore
	store = storage.NewRetryableVectorStore(store, retry.DefaultConfig())
	store = storage.NewCircuitBreakerVectorStore(store, circuitbreaker.DefaultConfig())
	logger.Info("vector store ready", "collection", cfg.Qdrant.Collection, "dimension", cfg.Embedding.Dimension)
	return store
}

// buildEmbeddingClient constructs the HTTP embedding/rerank client wrapped
// with a circuit breaker and retry policy (§4.10).
func buildEmbeddingClient(cfg *config.Config) embeddings.Client {
	httpClient, err := embeddings.NewHTTPClient(embeddings.HTTPClientConfig{
		BaseURL:        cfg.Embedding.BaseURL,
		Model:          cfg.Embedding.Model,
		Dimension:      cfg.Embedding.Dimension,
		RequestTimeout: cfg.Embedding.RequestTimeout,
		MaxBatchSize:   cfg.Embedding.MaxBatchSize,
		CacheSize:      10000,
		CacheTTL:       time.Hour,
	}, slog.Default())
	if err != nil {
		log.Fatalf("failed to build embedding client: %v", err)
	}

	var client embeddings.Client = httpClient
	client = embeddings.NewRetryableClient(client, retry.DefaultConfig())
	client = embeddings.NewCircuitBreakerClient(client, circuitbreaker.DefaultConfig())
	return client
}

// rateLimitConfigFrom translates the loaded application config into C1's
// own Config shape.
func rateLimitConfigFrom(cfg *config.Config) *ratelimit.Config {
	overrides := make(map[string]ratelimit.BucketConfig, len(cfg.RateLimit.Overrides))
	for sourceType, o := range cfg.RateLimit.Overrides {
		overrides[sourceType] = ratelimit.BucketConfig{
			MaxRequests:    o.MaxRequests,
			Window:         o.Window,
			AutoBackoff:    o.AutoBackoff,
			InitialBackoff: o.InitialBackoff,
			MaxBackoff:     o.MaxBackoff,
		}
	}
	rc := &ratelimit.Config{
		Default: ratelimit.BucketConfig{
			MaxRequests:    cfg.RateLimit.Default.MaxRequests,
			Window:         cfg.RateLimit.Default.Window,
			AutoBackoff:    cfg.RateLimit.Default.AutoBackoff,
			InitialBackoff: cfg.RateLimit.Default.InitialBackoff,
			MaxBackoff:     cfg.RateLimit.Default.MaxBackoff,
		},
		Overrides: overrides,
		KeyPrefix: "conhub:ratelimit:",
	}
	if cfg.Redis.Enabled {
		rc.RedisAddr = cfg.Redis.Addr
		rc.RedisPassword = cfg.Redis.Password
		rc.RedisDB = cfg.Redis.DB
	}
	return rc
}
