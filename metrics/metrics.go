package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed The total number of processed messages (counter)
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processed_total",
			Help:      "The total number of processed messages",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingFailed total number of message processing failures (counter)
	MessagesProcessingFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "messages",
			Name:      "processing_failed_total",
			Help:      "The total number of message processing failures",
		},
		[]string{"topic", "handler"},
	)

	// MessagesProcessingDuration The total time spent processing messages (summary with quantiles 0.5, 0.9, and 0.99)
	MessagesProcessingDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "messages",
			Name:       "processing_duration_seconds",
			Help:       "The total time spent processing messages",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"topic", "handler"},
	)

	// ClaimsTotal counts claim attempts by result kind ("ok" or an error kind)
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketing",
			Name:      "claims_total",
			Help:      "The total number of ticket claim attempts",
		},
		[]string{"result"},
	)

	// CapacityRejections counts claims rejected by the capacity check, per stage ("pre" or "post")
	CapacityRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketing",
			Name:      "capacity_rejections_total",
			Help:      "The total number of claims rejected because of capacity limits",
		},
		[]string{"stage"},
	)

	ClaimDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ticketing",
			Name:      "claim_duration_seconds",
			Help:      "Time spent processing a claim",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// PurchaseOrdersReconciled counts reconciled purchase orders by outcome
	PurchaseOrdersReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketing",
			Name:      "purchase_orders_reconciled_total",
			Help:      "The total number of purchase orders processed by reconciliation",
		},
		[]string{"outcome"},
	)

	PaymentLinksCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ticketing",
			Name:      "payment_links_created_total",
			Help:      "The total number of payment links created",
		},
		[]string{"platform"},
	)
)
