/*

Prometheus instrumentation for the vault engine and the orchestration API.
Exported at /metrics by the web server.

*/

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yvm_deposits_total",
		Help: "Number of deposit operations by outcome.",
	}, []string{"outcome"})

	WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yvm_withdrawals_total",
		Help: "Number of withdrawal operations by outcome.",
	}, []string{"outcome"})

	StrategyExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yvm_strategy_executions_total",
		Help: "Number of agent strategy executions by action and outcome.",
	}, []string{"action", "outcome"})

	DistributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yvm_distributions_total",
		Help: "Number of yield distribution attempts by outcome.",
	}, []string{"outcome"})

	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "yvm_fees_collected_base_units",
		Help: "Cumulative platform fees settled, in base units.",
	})

	ShareValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yvm_share_value",
		Help: "Current share value in underlying units (display precision).",
	})

	VaultTotalValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "yvm_vault_total_value_base_units",
		Help: "Current vault NAV (idle plus deployed), in base units.",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "yvm_http_requests_total",
		Help: "Number of HTTP requests by path and status code.",
	}, []string{"path", "status"})
)

// Outcome labels shared by the counters above.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
