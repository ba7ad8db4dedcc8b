// Package engine wires the ferry subsystems together and provides the
// application-level API for pushing work, running consumers and managing
// failed jobs.
//
// # Building an Engine
//
//	eng := engine.New(
//	    engine.WithArchive(store),
//	    engine.WithLogger(logger),
//	)
//	err := eng.SetConfig(queue.Config{
//	    Name:            "default",
//	    URL:             "redis://localhost:6379/0",
//	    StoreFailedJobs: true,
//	    UniqueCache:     &queue.UniqueCache{Engine: "memory"},
//	})
//
// # Registering Handlers
//
//	eng.Register("send-email", handler, job.WithMaxAttempts(5))
//
//	// Typed
//	engine.RegisterDefinition(eng, SendEmail)
//
// # Pushing Work
//
//	eng.Push(ctx, job.NewTarget("send-email", "execute"), map[string]any{"to": "a@b.c"})
//
//	// With options
//	eng.Push(ctx, target, data, engine.WithConfig("bulk"), engine.WithPriority(3))
//
//	// Typed
//	engine.Enqueue(ctx, eng, SendEmail, EmailInput{To: "user@example.com"})
//
// # Consuming
//
//	c, err := eng.NewConsumer("default",
//	    engine.WithMaxAttempts(3),
//	    engine.WithLimits(worker.NewLimits(worker.WithMaxJobs(100))),
//	)
//	err = c.Run(ctx)
//
// # Failed Jobs
//
//	svc, err := eng.Archive()
//	report, err := svc.Requeue(ctx, archive.Filter{Type: "send-email"}, nil)
package engine
