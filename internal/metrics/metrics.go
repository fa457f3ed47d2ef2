package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WalletMetrics holds the counters for rate updates and ledger operations.
// A nil *WalletMetrics is valid and records nothing.
type WalletMetrics struct {
	// Rate sources
	SourceFetchTotal    *prometheus.CounterVec
	SourcePairsFetched  *prometheus.GaugeVec
	SourceFetchDuration *prometheus.HistogramVec

	// Rate cache
	RateUpdatesTotal    *prometheus.CounterVec
	LastRefreshTime     prometheus.Gauge
	RateLookupsTotal    *prometheus.CounterVec
	DegradedQuotesTotal *prometheus.CounterVec

	// Ledger
	OperationsTotal  *prometheus.CounterVec
	OperationsAmount *prometheus.CounterVec
	OperationErrors  *prometheus.CounterVec
}

func NewWalletMetrics(reg prometheus.Registerer) *WalletMetrics {
	factory := promauto.With(reg)
	return &WalletMetrics{
		SourceFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_source_fetch_total",
				Help: "Rate source fetches by outcome",
			},
			[]string{"source", "result"},
		),

		SourcePairsFetched: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rate_source_pairs_fetched",
				Help: "Pairs returned by the last successful fetch of a source",
			},
			[]string{"source"},
		),

		SourceFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rate_source_fetch_duration_seconds",
				Help:    "Duration of rate source fetches in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms .. 6.4s
			},
			[]string{"source"},
		),

		RateUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_updates_total",
				Help: "Aggregated rate updates by outcome",
			},
			[]string{"result"},
		),

		LastRefreshTime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rate_snapshot_last_refresh_timestamp_seconds",
				Help: "Unix time of the last written rate snapshot",
			},
		),

		RateLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_lookups_total",
				Help: "Rate cache lookups by outcome",
			},
			[]string{"result"},
		),

		DegradedQuotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rate_degraded_quotes_total",
				Help: "Quotes served from the fallback table",
			},
			[]string{"from", "to"},
		),

		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_operations_total",
				Help: "Wallet operations by action and outcome",
			},
			[]string{"action", "result"},
		),

		OperationsAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_operations_amount_total",
				Help: "Sum of amounts moved by successful operations, in units of the currency",
			},
			[]string{"action", "currency"},
		),

		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_operation_errors_total",
				Help: "Failed wallet operations by error kind",
			},
			[]string{"action", "error_kind"},
		),
	}
}

// RecordSourceFetch records one fetch attempt of a rate source.
func (m *WalletMetrics) RecordSourceFetch(source string, pairs int, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.SourceFetchDuration.WithLabelValues(source).Observe(durationSeconds)
	if err != nil {
		m.SourceFetchTotal.WithLabelValues(source, "error").Inc()
		return
	}
	m.SourceFetchTotal.WithLabelValues(source, "ok").Inc()
	m.SourcePairsFetched.WithLabelValues(source).Set(float64(pairs))
}

func (m *WalletMetrics) RecordUpdate(ok bool, lastRefreshUnix float64) {
	if m == nil {
		return
	}
	if !ok {
		m.RateUpdatesTotal.WithLabelValues("error").Inc()
		return
	}
	m.RateUpdatesTotal.WithLabelValues("ok").Inc()
	m.LastRefreshTime.Set(lastRefreshUnix)
}

// RecordLookup records a cache lookup; result is "live", "fallback" or an error kind.
func (m *WalletMetrics) RecordLookup(result string) {
	if m == nil {
		return
	}
	m.RateLookupsTotal.WithLabelValues(result).Inc()
}

func (m *WalletMetrics) RecordDegraded(from, to string) {
	if m == nil {
		return
	}
	m.DegradedQuotesTotal.WithLabelValues(from, to).Inc()
}

// RecordOperation records a ledger or auth action. errorKind is empty on success.
func (m *WalletMetrics) RecordOperation(action, currency string, amount float64, errorKind string) {
	if m == nil {
		return
	}
	if errorKind != "" {
		m.OperationsTotal.WithLabelValues(action, "error").Inc()
		m.OperationErrors.WithLabelValues(action, errorKind).Inc()
		return
	}
	m.OperationsTotal.WithLabelValues(action, "ok").Inc()
	if currency != "" && amount > 0 {
		m.OperationsAmount.WithLabelValues(action, currency).Add(amount)
	}
}
