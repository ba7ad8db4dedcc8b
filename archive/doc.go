// Package archive keeps messages whose attempts are exhausted.
//
// A [Listener] is registered as an extension on the consumer. When the
// attempt limiter gives up on a message and the config the message was
// pushed with has StoreFailedJobs set, the listener inserts a [Record]
// into a [Store]. The [Service] lists, requeues and purges records
// selected by a [Filter]; requeue deletes a record only after its
// republish succeeded.
//
// Store implementations live under the store/ directory: memory,
// postgres, redis and pebble.
package archive
