package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accesstime_operations_total",
			Help: "Total operations processed by operation and result",
		},
		[]string{"operation", "result"},
	)

	CreditedSeconds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accesstime_credited_seconds_total",
			Help: "Total seconds credited to sessions by grants",
		},
	)

	PurchaseVolume = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accesstime_purchase_volume_total",
			Help: "Total token units paid for purchases",
		},
	)

	// UnrecordedPayments counts transfers that settled but whose order
	// failed to commit.
	UnrecordedPayments = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accesstime_unrecorded_payments_total",
			Help: "Payments settled whose order could not be committed",
		},
	)

	AuditPublishErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accesstime_audit_publish_errors_total",
			Help: "Audit events that could not be published",
		},
	)

	// Catalog cache metrics
	CatalogCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accesstime_catalog_cache_hits_total",
			Help: "Catalog cache hits",
		},
	)

	CatalogCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "accesstime_catalog_cache_misses_total",
			Help: "Catalog cache misses",
		},
	)

	// API metrics
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "accesstime_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		OperationsTotal,
		CreditedSeconds,
		PurchaseVolume,
		UnrecordedPayments,
		AuditPublishErrors,
		CatalogCacheHits,
		CatalogCacheMisses,
		APIRequestDuration,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			// Use systemd socket-activated listener
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			// Create and bind listener ourselves
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
