// Package metrics records pipeline, handler and HTTP metrics.
//
// Labels are passed as alternating name/value pairs, e.g.
//
//	c.IncrementCounter("pipeline_failures", "code", "FORBIDDEN_OPERATOR", "stage", "sanitize")
//
// A metric keeps the label names it was first recorded with.
package metrics

import (
	"time"
)

// Collector is the sink every component records into.
type Collector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)

	// StartTimer begins a measurement that is recorded into the
	// histogram name when stopped.
	StartTimer(name string) Timer
}

// Timer is a running measurement.
type Timer interface {
	// Stop returns the elapsed seconds.
	Stop() float64
}

// NoOpCollector discards everything. It is used when metrics are disabled
// and by the seed command.
type NoOpCollector struct{}

var _ Collector = (*NoOpCollector)(nil)

// NewNoOpCollector returns a collector that records nothing.
func NewNoOpCollector() Collector {
	return &NoOpCollector{}
}

func (n *NoOpCollector) IncrementCounter(string, ...string) {}
func (n *NoOpCollector) RecordHistogram(string, float64, ...string) {}
func (n *NoOpCollector) RecordGauge(string, float64, ...string) {}

// StartTimer still measures so callers that log the elapsed time keep
// working with metrics off.
func (n *NoOpCollector) StartTimer(string) Timer {
	return stopwatch(time.Now())
}

type stopwatch time.Time

func (s stopwatch) Stop() float64 {
	return time.Since(time.Time(s)).Seconds()
}
