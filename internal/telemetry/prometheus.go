package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var metricHelp = map[string]string{
	MeatTemperatureMetric:  "Meat probe temperature in Celsius",
	GrillTemperatureMetric: "Grill temperature in Celsius",
	ProbeStatusMetric:      "Probe connectivity status (1=online, 0=offline)",
}

// PrometheusSink backs the MetricsSink contract with gauge vectors on a
// private registry, keeping tests and multiple instances isolated from
// the default global one.
type PrometheusSink struct {
	registry *prometheus.Registry

	mu     sync.Mutex
	gauges map[string]*prometheus.GaugeVec
}

func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

func (s *PrometheusSink) SetGauge(name string, labels Labels, value float64) {
	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: name,
			Help: metricHelp[name],
		}, []string{"device_address", "probe_name"})
		s.registry.MustRegister(vec)
		s.gauges[name] = vec
	}
	s.mu.Unlock()

	vec.WithLabelValues(labels.DeviceAddress, labels.ProbeName).Set(value)
}

// Gatherer exposes the private registry for the /metrics handler.
func (s *PrometheusSink) Gatherer() prometheus.Gatherer {
	return s.registry
}
