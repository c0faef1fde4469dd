package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// for now we will tightly couple to the prometheus collector type
	prometheus.Collector
}

type Metrics struct {
	SamplesDrawn  Observer
	SampleErrors  Observer
	BuildLatency  Observer
	RunLatency    Observer
	StreamClients Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.SamplesDrawn,
		m.SampleErrors,
		m.BuildLatency,
		m.RunLatency,
		m.StreamClients,
	}
}
