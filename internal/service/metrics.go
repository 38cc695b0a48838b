package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики reconciliation engine.
var (
	// reconcileRunsTotal — количество tenant-wide reconciliation-проходов.
	reconcileRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_reconcile_runs_total",
			Help: "Количество tenant-wide reconciliation-проходов по триггеру и результату",
		},
		[]string{"trigger", "result"},
	)

	// reconcileAnomaliesTotal — количество обнаруженных аномалий по видам.
	reconcileAnomaliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_reconcile_anomalies_total",
			Help: "Количество обнаруженных аномалий по видам",
		},
		[]string{"kind"},
	)

	// reconcileRepairsTotal — исходы repair-операций по действиям.
	reconcileRepairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mm_reconcile_repairs_total",
			Help: "Исходы repair-операций по действию и результату",
		},
		[]string{"action", "result"},
	)

	// reconcileDuration — длительность tenant-wide прохода.
	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mm_reconcile_duration_seconds",
			Help:    "Длительность tenant-wide reconciliation-прохода",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)
