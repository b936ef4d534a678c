// Package channel holds the implementations of domain.Channel, the shared
// key-value tree two peers coordinate through.
//
// Backends
//
//   - memory    In-process tree with per-path subscriptions; tests and demos
//   - natskv    NATS JetStream key-value bucket
//   - consulkv  Consul KV with blocking queries
//
// All backends accept "/"-joined paths, implement Create as an atomic
// create-if-absent, emit the current state first on every subscription and
// report transport failures as domain.ChannelError.
package channel
