// Package metrics defines the sinks recording optimization activity. Sinks
// like PromSink and InfluxSink (in infra/metrics) record optimization
// outcomes, series fallbacks and schedule changes, and can be combined with
// NewMultiSink. NewMetricsSink builds the configured list and returns a
// MultiSink when more than one sink is live.
package metrics
