// Package telemetry publishes plant metrics to a statsd agent, adapted from
// the teacher's internal/datadog: same dogstatsd.New/Gauge shape, but bound
// to a *Telemetry instance carried via internal/root rather than a
// package-level client, and extended with Count/Timing for the tick-loop
// and actuation-error counters this plant emits that the teacher's
// temperature-only dashboard never needed.
package telemetry

import (
	"github.com/DataDog/datadog-go/statsd"
)

// Telemetry wraps a statsd client bound at construction time.
type Telemetry struct {
	client *statsd.Client
	tags   []string
}

// New dials addr (host:port of a dogstatsd-compatible agent) and returns a
// Telemetry tagging every metric with namespace "rwchcd." plus tags.
func New(addr string, tags ...string) (*Telemetry, error) {
	client, err := statsd.New(addr)
	if err != nil {
		return nil, err
	}
	client.Namespace = "rwchcd."
	client.Tags = tags
	return &Telemetry{client: client, tags: tags}, nil
}

// Gauge reports an instantaneous value, e.g. a circuit's target water temp.
func (t *Telemetry) Gauge(name string, value float64, tags ...string) {
	if t == nil || t.client == nil {
		return
	}
	_ = t.client.Gauge(name, value, append(t.tags, tags...), 1)
}

// Count increments a counter, e.g. an actuation or aggregation error.
func (t *Telemetry) Count(name string, value int64, tags ...string) {
	if t == nil || t.client == nil {
		return
	}
	_ = t.client.Count(name, value, append(t.tags, tags...), 1)
}

// Timing reports a duration in milliseconds, e.g. one tick's wall time.
func (t *Telemetry) Timing(name string, ms float64, tags ...string) {
	if t == nil || t.client == nil {
		return
	}
	_ = t.client.Timing(name, ms, append(t.tags, tags...), 1)
}

// Close flushes and releases the underlying client.
func (t *Telemetry) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}
