package hooks

import (
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// metricdataSink collects exported metric names for assertions.
type metricdataSink struct {
	data metricdata.ResourceMetrics
}

func (s *metricdataSink) metricNames() map[string]bool {
	names := make(map[string]bool)
	for _, scope := range s.data.ScopeMetrics {
		for _, m := range scope.Metrics {
			names[m.Name] = true
		}
	}
	return names
}
