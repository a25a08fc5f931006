package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type EntryRejectedReason string

var (
	EntryMempoolFull EntryRejectedReason = "mempool_full"
	EntryInvalid     EntryRejectedReason = "invalid"
)

type SearchOutcome string

var (
	SearchSolved    SearchOutcome = "solved"
	SearchCancelled SearchOutcome = "cancelled"
	SearchExhausted SearchOutcome = "exhausted"
)

type nodePromMetrics struct {
	nodeUpUnixSeconds  prometheus.Gauge
	mempoolSize        prometheus.Gauge
	blockHeight        prometheus.Gauge
	blockTime          prometheus.Histogram
	blockSizeBytes     prometheus.Histogram
	entriesInBlock     prometheus.Histogram
	ingressEntryCount  prometheus.Counter
	rejectedEntryCount *prometheus.CounterVec
	proofAttempts      prometheus.Counter
	proofSearches      *prometheus.CounterVec
	proofDuration      prometheus.Histogram
	validationFailures prometheus.Counter
	panicCount         prometheus.Counter
	systemCPUPercent   prometheus.Gauge
	systemMemPercent   prometheus.Gauge
}

func newNodePromMetrics() *nodePromMetrics {
	return &nodePromMetrics{
		nodeUpUnixSeconds: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdchain_node_up_timestamp_unix_seconds",
				Help: "Unix timestamp of the node",
			},
		),
		mempoolSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdchain_node_mempool_size",
				Help: "The total pending entries waiting for the next block",
			},
		),
		blockHeight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdchain_node_block_height",
				Help: "The current chain length",
			},
		),
		blockTime: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name: "sdchain_node_block_time",
				Help: "Duration in second between two consecutive appended blocks",
			},
		),
		blockSizeBytes: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sdchain_node_block_size_bytes",
				Help:    "The canonical block size in bytes",
				Buckets: prometheus.ExponentialBuckets(128, 4, 8),
			},
		),
		entriesInBlock: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sdchain_node_entries_in_block",
				Help:    "Number of entries committed per block",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		ingressEntryCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sdchain_node_ingress_entry_count",
				Help: "The total number of entries accepted into the mempool",
			},
		),
		rejectedEntryCount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdchain_node_rejected_entry_count",
				Help: "The total number of rejected entries",
			},
			[]string{"reason"},
		),
		proofAttempts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sdchain_pow_attempts_total",
				Help: "Candidate proofs hashed by the proof-of-work engine",
			},
		),
		proofSearches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sdchain_pow_searches_total",
				Help: "Proof searches by outcome",
			},
			[]string{"outcome"},
		),
		proofDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sdchain_pow_search_duration_seconds",
				Help:    "Wall clock time of a proof search",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		validationFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sdchain_chain_validation_failures_total",
				Help: "Chain validations that found a broken block",
			},
		),
		panicCount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sdchain_node_panic_count",
				Help: "Panics recovered in background goroutines",
			},
		),
		systemCPUPercent: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdchain_system_cpu_percent",
				Help: "Host CPU utilisation sampled by the node",
			},
		),
		systemMemPercent: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sdchain_system_memory_used_percent",
				Help: "Host memory utilisation sampled by the node",
			},
		),
	}
}

// Registered on import so callers never observe a nil collector.
var nodeMetrics = newNodePromMetrics()

// InitMetrics stamps the node start time.
func InitMetrics() {
	nodeMetrics.nodeUpUnixSeconds.SetToCurrentTime()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SetMempoolSize(size int) {
	nodeMetrics.mempoolSize.Set(float64(size))
}

func SetBlockHeight(blockHeight uint64) {
	nodeMetrics.blockHeight.Set(float64(blockHeight))
}

func RecordBlockTime(duration time.Duration) {
	nodeMetrics.blockTime.Observe(duration.Seconds())
}

func RecordBlockSizeBytes(sizeBytes int) {
	nodeMetrics.blockSizeBytes.Observe(float64(sizeBytes))
}

func RecordEntriesInBlock(count int) {
	nodeMetrics.entriesInBlock.Observe(float64(count))
}

func IncreaseIngressEntryCount() {
	nodeMetrics.ingressEntryCount.Inc()
}

func RecordRejectedEntry(reason EntryRejectedReason) {
	nodeMetrics.rejectedEntryCount.With(prometheus.Labels{
		"reason": string(reason),
	}).Inc()
}

func AddProofAttempts(n uint64) {
	nodeMetrics.proofAttempts.Add(float64(n))
}

func RecordProofSearch(outcome SearchOutcome, duration time.Duration) {
	nodeMetrics.proofSearches.With(prometheus.Labels{
		"outcome": string(outcome),
	}).Inc()
	nodeMetrics.proofDuration.Observe(duration.Seconds())
}

func IncreaseValidationFailures() {
	nodeMetrics.validationFailures.Inc()
}

func IncreasePanicCount() {
	nodeMetrics.panicCount.Inc()
}
