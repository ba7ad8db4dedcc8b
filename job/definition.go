package job

import (
	"context"
	"encoding/json"
	"fmt"
)

// Definition is a typed handler. The argument mapping of the envelope is
// decoded into T before Handler runs.
type Definition[T any] struct {
	// Name is the handler type name.
	Name string

	// Handler processes the decoded arguments.
	Handler func(ctx context.Context, args T) error

	// Opts is applied to the descriptor at registration.
	Opts []Option
}

// NewDefinition creates a typed handler definition.
func NewDefinition[T any](name string, handler func(ctx context.Context, args T) error, opts ...Option) *Definition[T] {
	return &Definition[T]{
		Name:    name,
		Handler: handler,
		Opts:    opts,
	}
}

// Target returns the target the definition registers under.
func (d *Definition[T]) Target() Target {
	return NewTarget(d.Name, DefaultEntry)
}

// RegisterDefinition registers a typed definition. The handler is wrapped
// in a closure that decodes the argument mapping into T.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	h := HandlerFunc(func(ctx context.Context, env *Envelope) (Result, error) {
		var args T
		raw, err := json.Marshal(env.Arguments())
		if err != nil {
			return "", fmt.Errorf("encode arguments for %q: %w", def.Name, err)
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return "", fmt.Errorf("decode arguments for %q: %w", def.Name, err)
		}
		if err := def.Handler(ctx, args); err != nil {
			return "", err
		}
		return Ack, nil
	})
	r.RegisterEntry(def.Target(), h, def.Opts...)
}
