// Package metrics defines the sinks that record control cycle outcomes.
// Sinks like PromSink and InfluxSink live in infra/metrics and register
// themselves in the factory. NewMetricsSink returns a MultiSink when several
// sinks are configured, and StartEventCollector in infra/metrics feeds them
// from the event bus.
package metrics
