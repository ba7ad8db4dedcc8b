package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/ferry"
)

// DefaultEntry is the entry point used when a target names only a type.
const DefaultEntry = "execute"

// AttemptsProperty is the broker message property carrying the attempt count.
const AttemptsProperty = "attempts"

// ExceptionProperty is the broker message property carrying the detail of
// the last handler fault.
const ExceptionProperty = "jobException"

// Target identifies a handler by type name and entry point.
// It encodes on the wire as a two-element array.
type Target struct {
	Type  string
	Entry string
}

// NewTarget returns a target for typ. An empty entry selects DefaultEntry.
func NewTarget(typ, entry string) Target {
	if entry == "" {
		entry = DefaultEntry
	}
	return Target{Type: typ, Entry: entry}
}

// String returns "type::entry".
func (t Target) String() string {
	return t.Type + "::" + t.Entry
}

// MarshalJSON encodes the target as [type, entry].
func (t Target) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{t.Type, t.Entry})
}

// UnmarshalJSON requires exactly two non-empty strings.
func (t *Target) UnmarshalJSON(data []byte) error {
	var parts []string
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: class: %w", ferry.ErrMalformedEnvelope, err)
	}
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%w: class must be a [type, entry] pair", ferry.ErrMalformedEnvelope)
	}
	t.Type, t.Entry = parts[0], parts[1]
	return nil
}

// RequeueOptions records where an envelope was published so that a retry
// or an archive requeue can publish it to the same place.
type RequeueOptions struct {
	Config   string `json:"config"`
	Priority *int   `json:"priority"`
	Queue    string `json:"queue"`
}

// Envelope is a decoded unit of work.
type Envelope struct {
	Target Target

	// Data is the argument mapping. Numbers decode as json.Number.
	Data map[string]any

	// Args is the legacy positional form. Only Args[0] is meaningful.
	Args []any

	RequeueOptions *RequeueOptions

	// Attempts is read from the message property, never from the body.
	Attempts int
}

type wireEnvelope struct {
	Class          *Target         `json:"class"`
	Data           *map[string]any `json:"data,omitempty"`
	Args           []any           `json:"args,omitempty"`
	RequeueOptions *RequeueOptions `json:"requeueOptions,omitempty"`
}

// Decode parses a raw message body into an Envelope. It returns an error
// wrapping ferry.ErrMalformedEnvelope when the class is not a
// [type, entry] pair or when neither data nor a legacy argument is present.
func Decode(raw []byte) (*Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var w wireEnvelope
	if err := dec.Decode(&w); err != nil {
		if errors.Is(err, ferry.ErrMalformedEnvelope) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ferry.ErrMalformedEnvelope, err)
	}
	if w.Class == nil {
		return nil, fmt.Errorf("%w: missing class", ferry.ErrMalformedEnvelope)
	}

	env := &Envelope{
		Target:         *w.Class,
		Args:           w.Args,
		RequeueOptions: w.RequeueOptions,
	}
	if w.Data != nil {
		env.Data = *w.Data
	}
	if env.Data == nil && legacyArgument(env.Args) == nil {
		return nil, fmt.Errorf("%w: missing data", ferry.ErrMalformedEnvelope)
	}
	return env, nil
}

// Encode serializes an Envelope. Map keys are written in sorted order so
// the output is stable for hashing and comparison.
func Encode(env *Envelope) ([]byte, error) {
	if env.Target.Type == "" || env.Target.Entry == "" {
		return nil, fmt.Errorf("%w: empty target", ferry.ErrMalformedEnvelope)
	}
	if env.Data == nil && legacyArgument(env.Args) == nil {
		return nil, fmt.Errorf("%w: missing data", ferry.ErrMalformedEnvelope)
	}

	target := env.Target
	w := wireEnvelope{
		Class:          &target,
		Args:           env.Args,
		RequeueOptions: env.RequeueOptions,
	}
	if env.Data != nil {
		data := env.Data
		w.Data = &data
	}
	return json.Marshal(w)
}

// Arguments returns the whole argument mapping, read from data or from the
// legacy args form. It never returns nil.
func (e *Envelope) Arguments() map[string]any {
	if e.Data != nil {
		return e.Data
	}
	if m := legacyArgument(e.Args); m != nil {
		return m
	}
	return map[string]any{}
}

// Argument returns the value stored under key, or def when it is absent.
// Dot-separated keys descend into nested mappings.
func (e *Envelope) Argument(key string, def any) any {
	var cur any = e.Arguments()
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return def
		}
		v, ok := m[part]
		if !ok {
			return def
		}
		cur = v
	}
	return cur
}

// Clone returns a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	c := *e
	if e.Data != nil {
		c.Data = cloneMap(e.Data)
	}
	if e.Args != nil {
		c.Args = make([]any, len(e.Args))
		for i, a := range e.Args {
			c.Args[i] = cloneValue(a)
		}
	}
	if e.RequeueOptions != nil {
		ro := *e.RequeueOptions
		if ro.Priority != nil {
			p := *ro.Priority
			ro.Priority = &p
		}
		c.RequeueOptions = &ro
	}
	return &c
}

func legacyArgument(args []any) map[string]any {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]any)
	return m
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
