// Package ferry provides a retry-aware job-processing control plane that
// sits between a message broker and application-supplied job handlers.
//
// Producers push a job envelope naming a handler and its arguments. A
// consumer loop receives envelopes from the broker, dispatches them to the
// registered handler and turns the handler's outcome into a broker verdict:
// acknowledge, reject, or retry. Retries are bounded by an attempt limit,
// unique jobs are deduplicated through a shared cache, and jobs that exhaust
// their attempts can be archived for later requeue or purge.
//
// # Quick Start
//
//	eng := engine.New(engine.WithArchive(pgStore))
//	err := eng.SetConfig(queue.Config{
//	    Name:            "default",
//	    URL:             "redis://localhost:6379/0",
//	    StoreFailedJobs: true,
//	})
//
//	eng.Register("mailer", sendWelcome, job.WithMaxAttempts(5))
//	_, err = eng.Push(ctx, job.NewTarget("mailer", "execute"), map[string]any{"user": 42})
//
//	consumer, err := eng.NewConsumer("default")
//	err = consumer.Run(ctx)
//
// # Architecture
//
// Each concern lives in its own package: job (envelope and handler
// registry), broker (narrow transport interface and adapters), unique
// (dedup guard), queue (named configurations), worker (dispatcher,
// governors and the consumption loop) and archive (failed-job storage and
// bulk operations). The engine package wires them together.
//
// Archive records are identified by TypeIDs: type-prefixed, K-sortable,
// UUIDv7-based identifiers.
package ferry
