package archive

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/id"
)

// Filter selects records. Set fields compose with AND; an empty filter
// matches everything.
type Filter struct {
	IDs    []id.FailedJobID
	Type   string
	Queue  string
	Config string

	// Where is an optional CEL expression over id, type, entry, queue,
	// config, priority, exception, data and created_ms.
	Where string
}

// MatchFields reports whether r satisfies every set field except Where.
func (f Filter) MatchFields(r *Record) bool {
	if len(f.IDs) > 0 {
		found := false
		for _, want := range f.IDs {
			if want == r.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Queue != "" && r.Queue != f.Queue {
		return false
	}
	if f.Config != "" && r.Config != f.Config {
		return false
	}
	return true
}

// Predicate is a compiled Where expression.
type Predicate struct {
	prog cel.Program
}

// Compile compiles the Where expression. It returns a nil predicate
// when Where is empty.
func (f Filter) Compile() (*Predicate, error) {
	expr := strings.TrimSpace(f.Where)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("type", cel.StringType),
		cel.Variable("entry", cel.StringType),
		cel.Variable("queue", cel.StringType),
		cel.Variable("config", cel.StringType),
		// -1 when the record has no priority.
		cel.Variable("priority", cel.IntType),
		cel.Variable("exception", cel.StringType),
		cel.Variable("data", cel.DynType),
		cel.Variable("created_ms", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("ferry/archive: cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("%w: %w", ferry.ErrInvalidFilter, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must be boolean, got %s", ferry.ErrInvalidFilter, out)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ferry.ErrInvalidFilter, err)
	}
	return &Predicate{prog: prog}, nil
}

// Match evaluates the predicate against r. A nil predicate matches.
func (p *Predicate) Match(r *Record) (bool, error) {
	if p == nil {
		return true, nil
	}

	var data any
	_ = json.Unmarshal([]byte(r.Data), &data)
	priority := int64(-1)
	if r.Priority != nil {
		priority = int64(*r.Priority)
	}

	out, _, err := p.prog.Eval(map[string]any{
		"id":         r.ID.String(),
		"type":       r.Type,
		"entry":      r.Entry,
		"queue":      r.Queue,
		"config":     r.Config,
		"priority":   priority,
		"exception":  r.Exception,
		"data":       data,
		"created_ms": r.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return false, fmt.Errorf("ferry/archive: evaluate filter on %s: %w", r.ID, err)
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}
