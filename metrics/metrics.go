package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OrdersSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aitrade_orders_submitted_total",
			Help: "Total number of orders submitted (by context).",
		},
		[]string{"context"},
	)

	OrdersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aitrade_orders_rejected_total",
			Help: "Total number of orders the gateway rejected (by context).",
		},
		[]string{"context"},
	)

	RiskRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aitrade_risk_rejections_total",
			Help: "Entry intents rejected by the risk controller (by reason).",
		},
		[]string{"reason"},
	)

	TicksSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aitrade_ticks_skipped_total",
			Help: "Ticks abandoned because market data was unavailable.",
		},
	)

	GridLevelsResting = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aitrade_grid_levels_resting",
			Help: "Grid levels currently resting on the book.",
		},
	)

	GridHedges = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "aitrade_grid_hedges_total",
			Help: "Hedge orders placed after grid level fills.",
		},
	)

	EquityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aitrade_equity",
			Help: "Current account equity reported by the gateway.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		OrdersSubmitted,
		OrdersRejected,
		RiskRejections,
		TicksSkipped,
		GridLevelsResting,
		GridHedges,
		EquityGauge,
	)
}
