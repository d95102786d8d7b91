// Package metrics defines the sink interfaces that external observability
// backends implement. A sink must record assignment transitions and may
// implement any of the optional recorders; MultiSink forwards each event to
// every sink that understands it. Sinks are built from configuration through
// a factory registry populated by infra/metrics.
package metrics
