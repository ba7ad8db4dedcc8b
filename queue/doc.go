// Package queue holds the queue configurations a process works with and
// the broker clients, dedup guards and rate limiters bound to them.
//
// A [Config] is registered once under a unique name. Registering the same
// name twice, or a config without a broker URL, fails immediately:
//
//	reg := queue.NewRegistry(queue.WithLogger("audit", auditLogger))
//	err := reg.SetConfig(queue.Config{
//	    Name:            "default",
//	    URL:             "redis://localhost:6379/0",
//	    Queue:           "default",
//	    Logger:          "audit",
//	    UniqueCache:     &queue.UniqueCache{Engine: "redis://localhost:6379/1"},
//	    StoreFailedJobs: true,
//	})
//
// The broker client for a config is dialled on first use and cached.
// The URL scheme selects the adapter: memory://, redis:// or amqp://.
// [Registry.Drop] removes a config and closes its cached client.
//
// # Rate Limiting
//
// RateLimit and RateBurst configure a token-bucket limiter
// (golang.org/x/time/rate) that the worker waits on before each receive.
package queue
