/*
Package storage provides BoltDB-backed persistence for the Stats Counter.

Only the four lifetime tallies (computed, errored, timed out, requested)
are durable; everything else the Task Computer tracks — the registry,
live workers, waiting_ttl — is reconstructed from the task server on
restart and is deliberately never written here.
*/
package storage
