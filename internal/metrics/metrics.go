package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Intake metrics
	// ============================================
	OrdersCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_orders_committed_total",
		Help: "Total number of accepted order commitments",
	})

	OrdersRevealed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_orders_revealed_total",
		Help: "Total number of accepted order reveals",
	})

	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_orders_cancelled_total",
		Help: "Total number of cancelled commitments",
	})

	IntakeRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_intake_rejected_total",
			Help: "Total number of rejected intake operations",
		},
		[]string{"operation", "reason"},
	)

	// ============================================
	// Epoch / matching metrics
	// ============================================
	EpochsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_epochs_completed_total",
		Help: "Total number of completed matching epochs",
	})

	EpochDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "darkpool_epoch_duration_seconds",
		Help:    "Duration of one matching epoch",
		Buckets: prometheus.DefBuckets,
	})

	MatchesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_matches_executed_total",
		Help: "Total number of executed matches",
	})

	RevealsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_reveals_dropped_total",
			Help: "Total number of reveals dropped during epoch processing",
		},
		[]string{"reason"},
	)

	OrdersSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_orders_swept_total",
		Help: "Total number of stale revealed orders swept from the book",
	})

	BookDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "darkpool_book_depth",
			Help: "Resting order count per book side",
		},
		[]string{"side"},
	)

	SettlementFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_settlement_failures_total",
			Help: "Total number of settlement collaborator failures",
		},
		[]string{"kind"},
	)

	// ============================================
	// Channel ledger metrics
	// ============================================
	ChannelsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_channels_opened_total",
		Help: "Total number of opened channels",
	})

	ChannelUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "darkpool_channel_updates_total",
		Help: "Total number of accepted channel updates",
	})

	ChannelsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_channels_closed_total",
			Help: "Total number of closed channels",
		},
		[]string{"mode"}, // cooperative | emergency
	)

	ChannelRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_channel_rejections_total",
			Help: "Total number of rejected channel operations",
		},
		[]string{"operation", "reason"},
	)

	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "darkpool_active_channels",
		Help: "Number of currently active channels",
	})

	// ============================================
	// NATS metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "darkpool_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	NATSEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_nats_events_published_total",
			Help: "Total number of NATS events published",
		},
		[]string{"subject"},
	)

	NATSPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "darkpool_nats_publish_failures_total",
			Help: "Total number of failed NATS publishes",
		},
		[]string{"subject"},
	)
)
