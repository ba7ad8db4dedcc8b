// Package unique implements the dedup guard for handlers marked unique.
//
// Before an envelope for a unique handler is published, the guard derives
// a key from the handler target and the canonical JSON of the argument
// mapping (sorted keys, so argument order does not matter) and records it
// in a [Cache]. A push whose key is already present is dropped with a
// notice. The worker deletes the key once the delivery reaches a terminal
// outcome; retries keep it.
//
// When the cache implements [Adder] the check and the record are a single
// atomic operation (Redis SET NX, a mutex for [MemoryCache]). Other caches
// fall back to check-then-set, which lets two near-simultaneous pushes both
// observe absence and both publish.
package unique
