// Package worker turns broker deliveries into handler invocations and
// broker verdicts.
//
// A [Processor] decodes a message, runs the resolved handler through the
// middleware chain, and maps the outcome to a [Result]. Result hooks then
// get a chance to alter the verdict before the delivery is finalized:
//
//   - [AttemptLimiter] converts Requeue into "republish a copy with an
//     incremented attempt count, reject the current delivery", or into a
//     terminal Reject once the attempt limit is reached.
//   - [UniqueRelease] removes the dedup marker of unique handlers after
//     terminal processing.
//
// A [Consumer] runs the single-threaded receive loop, gated by [Limits]
// (job count and runtime budgets) and the context.
//
//	p := worker.NewProcessor(handlers, extensions)
//	c := worker.NewConsumer(br, cfg, p,
//		worker.WithResultHooks(worker.NewAttemptLimiter(handlers, extensions)),
//		worker.WithLimits(worker.NewLimits(worker.WithMaxJobs(100))),
//	)
//	err := c.Run(ctx)
package worker
