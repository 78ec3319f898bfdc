// Package metrics provides Prometheus metrics for the mesh: sandbox
// execution, proof verification, task queueing, reputation, telemetry,
// and peer health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Sandbox Execution ──────────────────────────────────────────────────────

var ExecutionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "ailee",
	Name:      "execution_latency_seconds",
	Help:      "Sandboxed module execution duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"module_hash"})

var ExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "executions_total",
	Help:      "Total sandboxed executions by outcome.",
}, []string{"overflow"})

var ModuleCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "module_cache_size",
	Help:      "Number of modules currently resident in the sandbox cache.",
})

var ModuleCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "module_cache_evictions_total",
	Help:      "Total module cache evictions.",
})

// ─── Proof System ───────────────────────────────────────────────────────────

var ProofsGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "proofs_generated_total",
	Help:      "Total execution proofs generated.",
})

var ProofsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "proofs_verified_total",
	Help:      "Total proof verifications by result.",
}, []string{"result"})

var QuorumSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ailee",
	Name:      "quorum_size",
	Help:      "Number of matching proofs collected before quorum decision.",
	Buckets:   []float64{1, 2, 3, 5, 7, 10},
})

// ─── Tasks / Queue ──────────────────────────────────────────────────────────

var TasksCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "tasks_completed_total",
	Help:      "Total completed tasks.",
}, []string{"type"})

var TasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "tasks_failed_total",
	Help:      "Total failed tasks.",
}, []string{"type", "reason"})

var TasksActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "tasks_active",
	Help:      "Number of currently executing tasks.",
})

var TaskAssignLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ailee",
	Name:      "task_assign_latency_seconds",
	Help:      "Time from task queued to execution start.",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
})

var QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "queue_depth",
	Help:      "Queue depth per priority class.",
}, []string{"priority"})

var BackPressureLevel = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "back_pressure_level",
	Help:      "Current back-pressure level (0=none,1=soft,2=medium,3=hard).",
})

// ─── Reward / Reputation ────────────────────────────────────────────────────

var RewardsAccrued = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "rewards_accrued_total",
	Help:      "Total reward units accrued by this node.",
})

var ReputationScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "reputation_score",
	Help:      "Current reputation score per node.",
}, []string{"node_id"})

// ─── Telemetry / Energy ─────────────────────────────────────────────────────

var ThermalReadC = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "thermal_read_celsius",
	Help:      "Current measured thermal reading in Celsius.",
})

var BatteryPct = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "battery_pct",
	Help:      "Current battery charge percentage.",
})

var ActiveTasks = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "telemetry_active_tasks",
	Help:      "Active task count as seen by the telemetry monitor.",
})

var SafeModeActive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "safe_mode_active",
	Help:      "Whether this node is currently in safe mode (1) or not (0).",
})

// ─── Peers / Mesh ───────────────────────────────────────────────────────────

var PeersKnown = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "peers_known_total",
	Help:      "Number of known peers in the mesh.",
})

var PeersAlive = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "peers_alive_total",
	Help:      "Number of alive peers.",
})

var HeartbeatLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ailee",
	Name:      "heartbeat_latency_seconds",
	Help:      "Heartbeat round-trip latency to the mesh bus.",
	Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
})

// ─── Self-Protection ────────────────────────────────────────────────────────

var CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "circuit_breaker_state",
	Help:      "Circuit breaker state per name (0=closed,1=half_open,2=open).",
}, []string{"name"})

var QuarantinedNodes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "quarantined_nodes",
	Help:      "Number of nodes currently quarantined.",
})

var AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "anomalies_detected_total",
	Help:      "Total anomalies detected by type.",
}, []string{"type"})

// ─── Orchestrator ───────────────────────────────────────────────────────────

var AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "orchestrator_assignments_total",
	Help:      "Total orchestrator assignment attempts by outcome.",
}, []string{"outcome"})

var AssignmentsPerNode = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "orchestrator_assignments_per_node_total",
	Help:      "Total successful assignments per chosen node.",
}, []string{"node_id"})

var AssignmentScore = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ailee",
	Name:      "orchestrator_assignment_score",
	Help:      "Weighted score of the winning candidate per assignment.",
	Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
})

// ─── Federated Learning ─────────────────────────────────────────────────────

var TrainingRoundsCompleted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ailee",
	Name:      "training_rounds_completed_total",
	Help:      "Total federated training rounds aggregated.",
})

var TrainingLoss = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "ailee",
	Name:      "training_loss",
	Help:      "Aggregated training loss per job.",
}, []string{"job_id"})

// NewRegistry returns a new, empty Prometheus registry. The collectors
// in this package are registered through promauto with the default
// registry, not with the registry returned here.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}
