// Package metrics exposes Prometheus counters/gauges/histograms and a
// JSON /healthz endpoint, grounded on the teacher's internal/metrics
// package shape (Metrics, HealthStatus, Server) and generalized from
// candle-pipeline counters to this service's ingestion/broadcast/index
// counters.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the aggregator exports.
type Metrics struct {
	TicksTotal       prometheus.Counter
	KlinesTotal      prometheus.Counter
	WSReconnects     prometheus.Counter
	DroppedFrames    prometheus.Counter
	BroadcastDur     prometheus.Histogram
	ConnectedClients prometheus.Gauge
	IndexTicksTotal  prometheus.Counter
	IndexRollovers   prometheus.Counter

	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisBufferedWrites      prometheus.Gauge
	ColdStartDur             prometheus.Histogram
}

// NewMetrics registers and returns every metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_ticks_total",
			Help: "Total ticker updates applied to the state store",
		}),
		KlinesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_klines_total",
			Help: "Total kline updates applied to the state store",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_ws_reconnects_total",
			Help: "Total upstream WebSocket reconnection attempts",
		}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_dropped_frames_total",
			Help: "Malformed or unroutable upstream frames discarded at the parse boundary",
		}),
		BroadcastDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_broadcast_duration_seconds",
			Help:    "Wall-clock time to build, marshal, and fan out one snapshot",
			Buckets: prometheus.DefBuckets,
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_connected_clients",
			Help: "Current number of connected downstream websocket clients",
		}),
		IndexTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_index_ticks_total",
			Help: "Total breadth-index aggregator poll iterations",
		}),
		IndexRollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggregator_index_rollovers_total",
			Help: "Total breadth-index hourly candle rollovers",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_redis_circuit_breaker_state",
			Help: "Persistence adapter circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisBufferedWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aggregator_redis_buffered_writes",
			Help: "Index candles currently buffered in memory awaiting Redis recovery",
		}),
		ColdStartDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregator_cold_start_duration_seconds",
			Help:    "Wall-clock time for the cold-start loader to complete",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
	}

	prometheus.MustRegister(
		m.TicksTotal,
		m.KlinesTotal,
		m.WSReconnects,
		m.DroppedFrames,
		m.BroadcastDur,
		m.ConnectedClients,
		m.IndexTicksTotal,
		m.IndexRollovers,
		m.RedisCircuitBreakerState,
		m.RedisBufferedWrites,
		m.ColdStartDur,
	)

	return m
}

// HealthStatus represents the aggregator's current health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	ColdStartDone   bool      `json:"cold_start_done"`
	WorkersHealthy  int       `json:"workers_healthy"`
	WorkersTotal    int       `json:"workers_total"`
	RedisConnected  bool      `json:"redis_connected"`
	ConnectedClient int       `json:"connected_clients"`
	LastBroadcastAt time.Time `json:"last_broadcast_at"`
	StartedAt       time.Time `json:"started_at"`
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetColdStartDone(v bool) {
	h.mu.Lock()
	h.ColdStartDone = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetWorkers(healthy, total int) {
	h.mu.Lock()
	h.WorkersHealthy, h.WorkersTotal = healthy, total
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetConnectedClients(n int) {
	h.mu.Lock()
	h.ConnectedClient = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBroadcastAt(t time.Time) {
	h.mu.Lock()
	h.LastBroadcastAt = t
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. Degraded (non-200) only when
// cold-start hasn't completed or every ingestion worker is down — a Redis
// outage alone is "degraded" in body content but still 200, since the
// service runs fine in memory-only mode by design.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	httpCode := http.StatusOK
	if !h.ColdStartDone {
		status = "starting"
		httpCode = http.StatusServiceUnavailable
	} else if h.WorkersTotal > 0 && h.WorkersHealthy == 0 {
		status = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.RedisConnected {
		status = "degraded"
	}

	body := struct {
		Status          string `json:"status"`
		Uptime          string `json:"uptime"`
		ColdStartDone   bool   `json:"cold_start_done"`
		WorkersHealthy  int    `json:"workers_healthy"`
		WorkersTotal    int    `json:"workers_total"`
		RedisConnected  bool   `json:"redis_connected"`
		ConnectedClient int    `json:"connected_clients"`
		LastBroadcastAt string `json:"last_broadcast_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		ColdStartDone:   h.ColdStartDone,
		WorkersHealthy:  h.WorkersHealthy,
		WorkersTotal:    h.WorkersTotal,
		RedisConnected:  h.RedisConnected,
		ConnectedClient: h.ConnectedClient,
		LastBroadcastAt: h.LastBroadcastAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
