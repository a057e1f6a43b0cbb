package telemetry

// Metric names exposed for the probes.
const (
	MeatTemperatureMetric  = "grillgauge_meat_temperature_celsius"
	GrillTemperatureMetric = "grillgauge_grill_temperature_celsius"
	ProbeStatusMetric      = "grillgauge_probe_status"
)

// Labels identify the probe a gauge value belongs to.
type Labels struct {
	DeviceAddress string
	ProbeName     string
}

// MetricsSink receives gauge updates derived from cache state. It is
// injected into the cache so tests and disabled-metrics runs can swap
// it out.
type MetricsSink interface {
	SetGauge(name string, labels Labels, value float64)
}

// NoopSink discards every update.
type NoopSink struct{}

func (NoopSink) SetGauge(string, Labels, float64) {}
