package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for RegretMarket.
type Metrics struct {
	// --- Operations ---
	OpsApplied   *prometheus.CounterVec
	OpsRejected  *prometheus.CounterVec
	OpDuration   *prometheus.HistogramVec
	StateHashDur prometheus.Histogram
	Sequence     prometheus.Gauge

	// --- Risk ---
	FeesAccrued      *prometheus.CounterVec
	FundingAccrued   *prometheus.CounterVec
	Rebalances       *prometheus.CounterVec
	Liquidations     *prometheus.CounterVec
	BadDebt          *prometheus.CounterVec
	OpenPositions    *prometheus.GaugeVec
	HealthRatio      *prometheus.HistogramVec
	InsuranceReserve *prometheus.GaugeVec

	// --- Keeper ---
	KeeperSweeps  prometheus.Counter
	KeeperActions *prometheus.CounterVec

	// --- Oracle & ingestion ---
	PriceUpdates   *prometheus.CounterVec
	IngestMessages *prometheus.CounterVec
	PublishErrors  prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec
	DedupLRUSize          prometheus.Gauge
	DedupLRUEvictions     prometheus.Counter
	DedupTier2Duration    prometheus.Histogram

	// --- Persistence ---
	PersistEventsWritten prometheus.Counter
	PersistBatchSize     prometheus.Histogram
	PersistBatchDur      prometheus.Histogram
	PersistErrors        *prometheus.CounterVec
	PersistLastSequence  prometheus.Gauge

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	opBuckets := []float64{
		0.00005, 0.0001, 0.00025, 0.0005, 0.001, 0.0025,
		0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		// Operations
		OpsApplied: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_ops_applied_total",
			Help: "Operations committed",
		}, []string{"op"}),

		OpsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_ops_rejected_total",
			Help: "Operations rejected, by error code",
		}, []string{"op", "code"}),

		OpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regret_op_duration_seconds",
			Help:    "Time to load, apply and commit one operation",
			Buckets: opBuckets,
		}, []string{"op"}),

		StateHashDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regret_state_hash_duration_seconds",
			Help:    "Time to chain one event hash",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005},
		}),

		Sequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "regret_sequence",
			Help: "Current global event sequence",
		}),

		// Risk
		FeesAccrued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_fees_accrued_usd",
			Help: "Fees accrued, USD units",
		}, []string{"market", "recipient"}),

		FundingAccrued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_funding_accrued_usd",
			Help: "Funding accrued on positions, USD units",
		}, []string{"market", "direction"}),

		Rebalances: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_rebalances_total",
			Help: "Positions rebalanced into a new cycle",
		}, []string{"market"}),

		Liquidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_liquidations_total",
			Help: "Positions liquidated",
		}, []string{"market", "outcome"}),

		BadDebt: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_bad_debt_usd",
			Help: "Liquidation deficit not covered by the insurance reserve",
		}, []string{"market"}),

		OpenPositions: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regret_open_positions",
			Help: "Open positions per market",
		}, []string{"market"}),

		HealthRatio: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regret_position_health_bps",
			Help:    "Health ratio observed by keeper checks",
			Buckets: []float64{5000, 10000, 12500, 15000, 20000, 30000, 50000, 100000},
		}, []string{"market"}),

		InsuranceReserve: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regret_insurance_reserve_usd",
			Help: "Vault insurance reserve, USD units",
		}, []string{"token_mint"}),

		// Keeper
		KeeperSweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "regret_keeper_sweeps_total",
			Help: "Keeper passes over all markets",
		}),

		KeeperActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_keeper_actions_total",
			Help: "Keeper decisions",
		}, []string{"action"}),

		// Oracle & ingestion
		PriceUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_price_updates_total",
			Help: "Oracle observations received",
		}, []string{"feed", "result"}),

		IngestMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_ingest_messages_total",
			Help: "NATS messages handled",
		}, []string{"subject", "result"}),

		PublishErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "regret_publish_errors_total",
			Help: "Outbound event publish failures",
		}),

		// Channel & backpressure
		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regret_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regret_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "regret_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		// Idempotency
		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_idempotency_duplicates_total",
			Help: "Duplicate requests caught (lru/postgres)",
		}, []string{"op", "tier"}),

		DedupLRUSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "regret_dedup_lru_size",
			Help: "Current LRU occupancy",
		}),

		DedupLRUEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "regret_dedup_lru_evictions_total",
			Help: "LRU evictions",
		}),

		DedupTier2Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regret_dedup_tier2_duration_seconds",
			Help:    "Postgres dedup lookup latency",
			Buckets: opBuckets,
		}),

		// Persistence
		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "regret_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regret_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "regret_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "regret_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		// Query API
		QueryRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "regret_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "regret_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
