package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the relayer.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// JSON-RPC request metrics
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	// Chain RPC metrics
	chainRPCCallsTotal   *prometheus.CounterVec
	chainRPCCallDuration *prometheus.HistogramVec

	// Oracle metrics
	oracleRequestsTotal *prometheus.CounterVec

	// Account cache metrics
	cacheOperationsTotal *prometheus.CounterVec

	// Signer pool metrics
	signerSelectionsTotal *prometheus.CounterVec
	signerBalance         *prometheus.GaugeVec

	// Validation metrics
	transactionsValidatedTotal *prometheus.CounterVec
	paymentsVerifiedTotal      *prometheus.CounterVec
	usageLimitRejectionsTotal  prometheus.Counter
	rateLimitRejectionsTotal   prometheus.Counter
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_requests_total",
				Help: "Total number of JSON-RPC requests by method and status",
			},
			[]string{"method", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kora_request_duration_seconds",
				Help:    "Duration of JSON-RPC requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"method"},
		),
		chainRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_chain_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status"},
		),
		chainRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kora_chain_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method"},
		),
		oracleRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_oracle_requests_total",
				Help: "Total number of price oracle requests by source and status",
			},
			[]string{"source", "status"},
		),
		cacheOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_account_cache_operations_total",
				Help: "Total number of account cache operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		signerSelectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_signer_selections_total",
				Help: "Total number of signer pool selections by signer name",
			},
			[]string{"signer", "strategy"},
		),
		signerBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kora_signer_balance_lamports",
				Help: "Native balance of each pool signer in lamports",
			},
			[]string{"signer_name", "signer_address"},
		),
		transactionsValidatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_transactions_validated_total",
				Help: "Total number of transactions run through policy validation",
			},
			[]string{"outcome"},
		),
		paymentsVerifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kora_payments_verified_total",
				Help: "Total number of payment verifications by outcome",
			},
			[]string{"outcome"},
		),
		usageLimitRejectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kora_usage_limit_rejections_total",
				Help: "Total number of requests rejected by the per-wallet usage limiter",
			},
		),
		rateLimitRejectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kora_rate_limit_rejections_total",
				Help: "Total number of requests rejected by the global rate limiter",
			},
		),
	}
}

// RecordRequest records a JSON-RPC request with duration.
func (m *Metrics) RecordRequest(method, status string, duration float64) {
	m.requestsTotal.WithLabelValues(method, status).Inc()
	m.requestDuration.WithLabelValues(method).Observe(duration)
}

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status string, duration float64) {
	m.chainRPCCallsTotal.WithLabelValues(method, status).Inc()
	m.chainRPCCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordOracleRequest records a price oracle request.
func (m *Metrics) RecordOracleRequest(source, status string) {
	m.oracleRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordCacheOperation records an account cache operation.
// Outcome is one of "hit", "miss", "bypass", "error".
func (m *Metrics) RecordCacheOperation(operation, outcome string) {
	m.cacheOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSignerSelection records a signer pool selection.
func (m *Metrics) RecordSignerSelection(signer, strategy string) {
	m.signerSelectionsTotal.WithLabelValues(signer, strategy).Inc()
}

// SetSignerBalance publishes a signer's lamport balance.
func (m *Metrics) SetSignerBalance(name, address string, lamports uint64) {
	m.signerBalance.WithLabelValues(name, address).Set(float64(lamports))
}

// DeleteSignerBalance removes a signer's balance gauge, used when a reading
// has gone stale.
func (m *Metrics) DeleteSignerBalance(name, address string) {
	m.signerBalance.DeleteLabelValues(name, address)
}

// RecordValidation records a policy validation outcome ("accepted" or "rejected").
func (m *Metrics) RecordValidation(outcome string) {
	m.transactionsValidatedTotal.WithLabelValues(outcome).Inc()
}

// RecordPaymentVerification records a payment verification outcome.
func (m *Metrics) RecordPaymentVerification(outcome string) {
	m.paymentsVerifiedTotal.WithLabelValues(outcome).Inc()
}

// RecordUsageLimitRejection records a usage-limit rejection.
func (m *Metrics) RecordUsageLimitRejection() {
	m.usageLimitRejectionsTotal.Inc()
}

// RecordRateLimitRejection records a global rate-limit rejection.
func (m *Metrics) RecordRateLimitRejection() {
	m.rateLimitRejectionsTotal.Inc()
}
