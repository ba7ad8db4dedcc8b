// Package middleware wraps handler invocation.
//
// [Chain] composes middleware so the first one given runs outermost. The
// worker always builds its chain as Recover, Tracing, Metrics, Logging,
// followed by any middleware the application adds:
//
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// [Recover] is the fault boundary: a panicking handler becomes an error
// wrapping [ferry.ErrHandlerFault], which the worker treats like any other
// returned error.
//
// A middleware that does not call next short-circuits the handler; its
// result becomes the handler's result:
//
//	func dropStale(ctx context.Context, env *job.Envelope, next middleware.Handler) (job.Result, error) {
//	    if env.Argument("stale", false) == true {
//	        return job.Reject, nil
//	    }
//	    return next(ctx)
//	}
package middleware
