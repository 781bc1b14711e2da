package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_history_heartbeat_total",
		Help: "TTL pass-assertions sent to the registry",
	}, []string{"result"})

	HeartbeatConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_history_heartbeat_consecutive_failures",
		Help: "Pass-assertions failed in a row since the last success",
	})

	RegistryOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_history_registry_operations_total",
		Help: "Registry agent calls by operation and result",
	}, []string{"operation", "result"})

	LifecycleState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "order_history_lifecycle_state",
		Help: "Current registration lifecycle state (0=unregistered 1=registered 2=serving 3=draining 4=terminated 5=failed)",
	})
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
