package job

import "context"

// Result is what a handler reports about an envelope.
// The zero value means the envelope was processed successfully.
type Result string

const (
	// Ack acknowledges the message.
	Ack Result = "ack"
	// Reject drops the message without retrying it.
	Reject Result = "reject"
	// Requeue asks for another attempt.
	Requeue Result = "requeue"
)

// Handler processes a decoded envelope. A returned error is a handler
// fault and is treated as a request to retry.
type Handler interface {
	Handle(ctx context.Context, env *Envelope) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, env *Envelope) (Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, env *Envelope) (Result, error) {
	return f(ctx, env)
}

// Descriptor carries the per-handler settings the worker and the producer
// consult.
type Descriptor struct {
	// MaxAttempts bounds the number of attempts. Zero defers to the
	// worker default.
	MaxAttempts int

	// Unique enables the dedup guard for pushes of this handler.
	Unique bool
}

// Describer is implemented by handlers that declare their own descriptor.
// Options passed at registration are applied on top of it.
type Describer interface {
	Describe() Descriptor
}

// Option configures a handler descriptor at registration.
type Option func(*Descriptor)

// WithMaxAttempts sets the maximum number of attempts for the handler.
func WithMaxAttempts(n int) Option {
	return func(d *Descriptor) {
		d.MaxAttempts = n
	}
}

// WithUnique marks the handler as unique: identical pushes are dropped
// while one is still on the queue.
func WithUnique() Option {
	return func(d *Descriptor) {
		d.Unique = true
	}
}
