package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Operations counts engine operations by name and outcome.
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_operations_total",
			Help: "Engine operations by name and outcome",
		},
		[]string{"operation", "status"},
	)

	// DomainErrors counts rejections by error kind.
	DomainErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "loan_domain_errors_total",
			Help: "Domain-level rejections by operation and error kind",
		},
		[]string{"operation", "kind"},
	)

	// PaymentsApplied counts settled installments.
	PaymentsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "loan_payments_applied_total",
			Help: "Payments successfully applied",
		},
	)
)
