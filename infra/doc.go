// Package infra holds the adapters behind the core interfaces: stores, the
// MQTT gateway, push delivery, the Redis presence mirror, event relays, the
// audit trail and metrics sinks. Core packages never import them.
package infra
