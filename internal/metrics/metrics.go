package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// CommissionEventsTotal result 取值 created / duplicate
	CommissionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_events_total",
			Help: "Commission distributions by trigger type and result",
		},
		[]string{"trigger_type", "result"},
	)

	CommissionCreditedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "commission_credited_amount_total",
			Help: "Sum of commission amounts credited to wallets",
		},
		[]string{"level"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_ledger_entries_total",
			Help: "Wallet ledger entries appended by reason",
		},
		[]string{"reason"},
	)

	WithdrawalTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawal_transitions_total",
			Help: "Withdrawal request status transitions",
		},
		[]string{"to"},
	)

	ReconciliationMismatchTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wallet_reconciliation_mismatch_total",
			Help: "Wallets whose cached balance diverged from the ledger sum",
		},
	)
)
