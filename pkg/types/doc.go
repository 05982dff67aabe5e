/*
Package types defines the data structures shared across the Task Computer:
the Subtask Descriptor, the Task Header, reply envelopes, resource deltas,
progress snapshots, and worker results.

These types are intentionally thin. SourceCode and ExtraData are opaque to
everything except the payload executed inside a worker; the core never
inspects them beyond passing them through.
*/
package types
