package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты для label result.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultSkipped  = "skipped"
	ResultRejected = "rejected"
	ResultCanceled = "cancelled"
)

var (
	// InvocationsTotal — завершённые invocation по протоколу, роли и результату.
	InvocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbook_invocations_total",
		Help: "Total playbook invocations by protocol, role and result",
	}, []string{"protocol", "role", "result"})

	// StepsTotal — выполненные шаги по виду действия и результату.
	StepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "playbook_steps_total",
		Help: "Total playbook steps by action kind and result",
	}, []string{"kind", "result"})

	// StepDuration — длительность шагов (включая guard).
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "playbook_step_duration_seconds",
		Help:    "Playbook step duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"kind"})

	// ProcessesRunning — фоновые процессы, ещё не завершившиеся.
	ProcessesRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playbook_processes_running",
		Help: "Number of launched step processes that have not exited yet",
	})
)
