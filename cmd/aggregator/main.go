// Command aggregator is the process entrypoint: it wires the State Store,
// Cold-Start Loader, Ingestion Workers, Dirty Signal + Broadcaster,
// Downstream Client Registry, Index Aggregator, and Persistence Adapter
// together, following the teacher's cmd/mdengine/main.go shape (env config
// load, context + signal handling, ordered startup/shutdown).
package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"trading-systemv1/internal/broadcast"
	"trading-systemv1/internal/bybit"
	"trading-systemv1/internal/coldstart"
	"trading-systemv1/internal/config"
	"trading-systemv1/internal/gateway"
	"trading-systemv1/internal/index"
	"trading-systemv1/internal/ingest"
	"trading-systemv1/internal/logger"
	"trading-systemv1/internal/metrics"
	"trading-systemv1/internal/state"
	"trading-systemv1/internal/store"
	redisstore "trading-systemv1/internal/store/redis"
	sqlitestore "trading-systemv1/internal/store/sqlite"
)

func main() {
	log := logger.Init("aggregator", slog.LevelInfo)
	cfg := config.Load()

	log.Info("aggregator: starting",
		slog.String("listenAddr", cfg.ListenAddr),
		slog.String("metricsAddr", cfg.MetricsAddr))

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- State Store ----
	st := state.New()
	sig := broadcast.NewSignal()
	st.SetDirtyMarker(sig)

	// ---- Persistence Adapter: SQLite mirror + Redis (circuit-breaker
	// protected), composed into one model.IndexStore. Without Redis at
	// startup the index aggregator runs in memory only ----
	mirror, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("aggregator: sqlite mirror init failed", slog.Any("err", err))
		os.Exit(1)
	}

	var indexDB *store.DualStore
	redisAddr, redisDB := parseRedisURL(cfg.RedisURL)
	redisIdx, err := redisstore.New(redisstore.Config{Addr: redisAddr, DB: redisDB})
	if err != nil {
		log.Warn("aggregator: redis unavailable at startup, running index in memory only", slog.Any("err", err))
		health.SetRedisConnected(false)
	} else {
		health.SetRedisConnected(true)
		redisIdx.OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
		}
		redisIdx.OnBuffer = func(pending int) {
			prom.RedisBufferedWrites.Set(float64(pending))
		}
	}
	if redisIdx != nil {
		indexDB = store.NewDualStore(redisIdx, mirror, log)
	}

	// ---- Index Aggregator ----
	var idxAgg *index.Aggregator
	if indexDB != nil {
		idxAgg = index.New(st, indexDB, log)
	} else {
		idxAgg = index.New(st, nil, log)
	}
	idxAgg.TickInterval = cfg.IndexPollInterval()
	idxAgg.OnTick = func(froze bool) {
		prom.IndexTicksTotal.Inc()
		if froze {
			prom.IndexRollovers.Inc()
		}
	}
	idxAgg.Seed()

	// ---- Cold-Start Loader ----
	rest := bybit.NewRestClient(cfg.BybitRESTBase)
	rest.MaxRetries = cfg.HTTPRetries
	loader := coldstart.New(rest, log)
	loader.Concurrency = cfg.HTTPConcurrency
	coldStartBegan := time.Now()
	if err := loader.Run(st); err != nil {
		log.Error("aggregator: cold start failed, aborting", slog.Any("err", err))
		os.Exit(1)
	}
	prom.ColdStartDur.Observe(time.Since(coldStartBegan).Seconds())
	health.SetColdStartDone(true)
	log.Info("aggregator: cold start complete", slog.Int("symbols", len(st.KnownSymbols())))

	// ---- Downstream Client Registry ----
	hub := gateway.NewHub()
	handler := gateway.NewHandler(hub, st, log)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: handler}
	go func() {
		log.Info("aggregator: gateway listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("aggregator: gateway server error", slog.Any("err", err))
		}
	}()

	// ---- Dirty Signal + Debounced Broadcaster ----
	caster := broadcast.New(sig, st, hub, log)
	caster.DebounceWindow = cfg.DebounceWindow()
	caster.OnBroadcast = func(clientCount int, elapsed time.Duration) {
		prom.BroadcastDur.Observe(elapsed.Seconds())
		prom.ConnectedClients.Set(float64(clientCount))
		health.SetConnectedClients(clientCount)
		health.SetLastBroadcastAt(time.Now())
	}
	casterCtx, cancelCaster := context.WithCancel(ctx)
	go caster.Run(casterCtx)

	// ---- Ingestion Workers ----
	symbols := st.KnownSymbols()
	topics := ingest.BuildTopics(symbols)
	buckets := ingest.Partition(topics, cfg.MaxTopicsPerConn)
	workers := make([]*ingest.Worker, 0, len(buckets))
	for i, bucket := range buckets {
		w := ingest.NewWorker(i, cfg.BybitWSURL, bucket, st, log)
		w.OnReconnect = func() { prom.WSReconnects.Inc() }
		w.OnDroppedFrame = func() { prom.DroppedFrames.Inc() }
		w.OnTicker = func() { prom.TicksTotal.Inc() }
		w.OnKline = func() { prom.KlinesTotal.Inc() }
		workers = append(workers, w)
	}
	health.SetWorkers(len(workers), len(workers))
	ingestCtx, cancelIngest := context.WithCancel(ctx)
	for _, w := range workers {
		go w.Run(ingestCtx)
	}
	log.Info("aggregator: ingestion workers started", slog.Int("workers", len(workers)), slog.Int("topics", len(topics)))

	idxCtx, cancelIdx := context.WithCancel(ctx)
	go idxAgg.Run(idxCtx)

	log.Info("aggregator: ready")

	<-sigCh
	log.Info("aggregator: shutdown signal received")

	// Ordered shutdown: broadcaster → index aggregator → ingestion workers
	// → persistence adapter close.
	cancelCaster()
	cancelIdx()
	cancelIngest()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	if indexDB != nil {
		indexDB.Close()
	} else {
		mirror.Close()
	}

	log.Info("aggregator: shutdown complete")
}

// parseRedisURL extracts addr and db index from a redis://host:port/db URL,
// defaulting to db 0 on any parse failure.
func parseRedisURL(raw string) (addr string, db int) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "localhost:6379", 0
	}
	addr = u.Host
	db = 0
	if len(u.Path) > 1 {
		if parsed, err := strconv.Atoi(u.Path[1:]); err == nil {
			db = parsed
		}
	}
	return addr, db
}
