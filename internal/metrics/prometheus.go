package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollectors holds all prometheus metric collectors for one endpoint.
type PrometheusCollectors struct {
	CallsOK        prometheus.CounterFunc
	CallsBad       prometheus.CounterFunc
	PendingCalls   prometheus.GaugeFunc
	Connected      prometheus.GaugeFunc
	ServantsActive prometheus.GaugeFunc
	ProxiesActive  prometheus.GaugeFunc
	HeartbeatSkips prometheus.GaugeFunc
	SiloFaults     prometheus.CounterFunc
}

// register safely registers c, or returns the already-registered collector
// of the same name (useful when InitPrometheus is called more than once per
// process, e.g. across table-driven tests).
func register(c prometheus.Collector) prometheus.Collector {
	if err := prometheus.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		return c
	}
	return c
}

// InitPrometheus wires namespace-scoped collectors directly to the live
// values in c, so there is no separate sync step to forget to call.
func InitPrometheus(namespace string, c *Collector) *PrometheusCollectors {
	pc := &PrometheusCollectors{}

	pc.CallsOK = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_ok_total",
		Help:      "Total number of calls that returned successfully",
	}, func() float64 { return float64(c.CallsOK.Load()) })).(prometheus.CounterFunc)

	pc.CallsBad = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "calls_failed_total",
		Help:      "Total number of calls that returned an exception",
	}, func() float64 { return float64(c.CallsBad.Load()) })).(prometheus.CounterFunc)

	pc.PendingCalls = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_calls",
		Help:      "Number of calls currently awaiting a response",
	}, func() float64 { return float64(c.GetPending()) })).(prometheus.GaugeFunc)

	pc.Connected = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected",
		Help:      "Endpoint connection status (1 = connected, 0 = not connected)",
	}, func() float64 {
		if c.IsConnected() {
			return 1
		}
		return 0
	})).(prometheus.GaugeFunc)

	pc.ServantsActive = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "servants_active",
		Help:      "Number of servants registered on this endpoint",
	}, func() float64 { return float64(c.ServantsActive.Load()) })).(prometheus.GaugeFunc)

	pc.ProxiesActive = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "proxies_active",
		Help:      "Number of proxies registered on this endpoint",
	}, func() float64 { return float64(c.ProxiesActive.Load()) })).(prometheus.GaugeFunc)

	pc.HeartbeatSkips = register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_skips",
		Help:      "Consecutive heartbeat probes without a successful reply",
	}, func() float64 { return float64(c.HeartbeatSkips.Load()) })).(prometheus.GaugeFunc)

	pc.SiloFaults = register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "silo_faults_total",
		Help:      "Total number of faults detected by the out-of-process silo",
	}, func() float64 { return float64(c.SiloFaults.Load()) })).(prometheus.CounterFunc)

	return pc
}
