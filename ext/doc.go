// Package ext defines the observer system for ferry.
//
// Extensions are notified of lifecycle events and can react to them,
// recording metrics, writing debug logs or archiving failed messages.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type Counter struct{ ok int }
//
//	func (c *Counter) Name() string { return "counter" }
//
//	func (c *Counter) OnMessageSucceeded(ctx context.Context, env *job.Envelope, elapsed time.Duration) error {
//	    c.ok++
//	    return nil
//	}
//
// # Processor Hooks
//
//   - [MessageSeen]: a message was received
//   - [MessageInvalid]: the message could not be decoded or resolved
//   - [MessageStarted]: the handler is about to run
//   - [MessageException]: the handler returned an error or panicked
//   - [MessageSucceeded], [MessageRejected], [MessageFailed]: the verdict
//
// # Retry Hooks
//
//   - [MessageRetried]: a copy was published with attempts incremented
//   - [AttemptsExhausted]: the attempt limit was reached
//
// # Loop Hooks
//
//   - [LoopInterrupted]: a consumer budget was exhausted
//   - [Shutdown]: the consumer is returning
//
// A [Registry] is scoped to one processor, so tests attach their own
// observers without global state. Hook errors are logged and dropped,
// except for [AttemptsExhausted] whose errors reach the consumer.
package ext
