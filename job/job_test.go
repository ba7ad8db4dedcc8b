package job_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/job"
)

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{nope`},
		{"missing class", `{"data":{"a":1}}`},
		{"class one element", `{"class":["mailer"],"data":{}}`},
		{"class three elements", `{"class":["a","b","c"],"data":{}}`},
		{"class not strings", `{"class":[1,2],"data":{}}`},
		{"class empty entry", `{"class":["mailer",""],"data":{}}`},
		{"missing data", `{"class":["mailer","execute"]}`},
		{"null data", `{"class":["mailer","execute"],"data":null}`},
		{"args without mapping", `{"class":["mailer","execute"],"args":["x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := job.Decode([]byte(tt.raw))
			if !errors.Is(err, ferry.ErrMalformedEnvelope) {
				t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
			}
		})
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	canonical := []string{
		`{"class":["mailer","execute"],"data":{"id":7,"to":"a@b.c"}}`,
		`{"class":["mailer","welcome"],"data":{},"requeueOptions":{"config":"default","priority":null,"queue":"mail"}}`,
		`{"class":["report","build"],"data":{"nested":{"a":[1,2.5,"x"],"b":true}},"args":[{"nested":{"a":[1,2.5,"x"],"b":true}}],"requeueOptions":{"config":"c","priority":3,"queue":"q"}}`,
		`{"class":["legacy","execute"],"args":[{"k":"v"}]}`,
	}

	for _, raw := range canonical {
		t.Run(raw, func(t *testing.T) {
			env, err := job.Decode([]byte(raw))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			out, err := job.Encode(env)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if string(out) != raw {
				t.Fatalf("encode(decode(x)) = %s, want %s", out, raw)
			}

			again, err := job.Decode(out)
			if err != nil {
				t.Fatalf("Decode again: %v", err)
			}
			if !reflect.DeepEqual(env, again) {
				t.Fatalf("decode(encode(e)) = %+v, want %+v", again, env)
			}
		})
	}
}

func TestEncode_SortedKeys(t *testing.T) {
	a := &job.Envelope{Target: job.NewTarget("t", ""), Data: map[string]any{"b": "2", "a": "1"}}
	b := &job.Envelope{Target: job.NewTarget("t", ""), Data: map[string]any{"a": "1", "b": "2"}}

	ea, _ := job.Encode(a)
	eb, _ := job.Encode(b)
	if string(ea) != string(eb) {
		t.Fatalf("encodings differ: %s vs %s", ea, eb)
	}
}

func TestEncode_Malformed(t *testing.T) {
	_, err := job.Encode(&job.Envelope{Target: job.Target{Type: "x"}, Data: map[string]any{}})
	if !errors.Is(err, ferry.ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope for empty entry, got %v", err)
	}
	_, err = job.Encode(&job.Envelope{Target: job.NewTarget("x", "")})
	if !errors.Is(err, ferry.ErrMalformedEnvelope) {
		t.Fatalf("expected ErrMalformedEnvelope for missing data, got %v", err)
	}
}

func TestArgument(t *testing.T) {
	modern, err := job.Decode([]byte(`{"class":["m","execute"],"data":{"to":"x","opts":{"lang":"en"},"n":3}}`))
	if err != nil {
		t.Fatal(err)
	}
	legacy, err := job.Decode([]byte(`{"class":["m","execute"],"args":[{"to":"x","opts":{"lang":"en"},"n":3}]}`))
	if err != nil {
		t.Fatal(err)
	}

	for name, env := range map[string]*job.Envelope{"modern": modern, "legacy": legacy} {
		t.Run(name, func(t *testing.T) {
			if got := env.Argument("to", nil); got != "x" {
				t.Errorf("to = %v, want x", got)
			}
			if got := env.Argument("opts.lang", nil); got != "en" {
				t.Errorf("opts.lang = %v, want en", got)
			}
			if got := env.Argument("n", nil); got != json.Number("3") {
				t.Errorf("n = %#v, want json.Number(3)", got)
			}
			if got := env.Argument("missing", "def"); got != "def" {
				t.Errorf("missing = %v, want def", got)
			}
			if got := env.Argument("to.deeper", "def"); got != "def" {
				t.Errorf("to.deeper = %v, want def", got)
			}
			if got := len(env.Arguments()); got != 3 {
				t.Errorf("len(Arguments) = %d, want 3", got)
			}
		})
	}
}

func TestTarget_JSON(t *testing.T) {
	b, err := json.Marshal(job.NewTarget("mailer", ""))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `["mailer","execute"]` {
		t.Fatalf("got %s", b)
	}
	if s := job.NewTarget("mailer", "welcome").String(); s != "mailer::welcome" {
		t.Fatalf("String() = %q", s)
	}
}

func TestEnvelope_Clone(t *testing.T) {
	p := 2
	env := &job.Envelope{
		Target:         job.NewTarget("m", ""),
		Data:           map[string]any{"nested": map[string]any{"a": "1"}},
		RequeueOptions: &job.RequeueOptions{Config: "c", Priority: &p, Queue: "q"},
		Attempts:       4,
	}
	c := env.Clone()
	c.Data["nested"].(map[string]any)["a"] = "2"
	*c.RequeueOptions.Priority = 9

	if env.Data["nested"].(map[string]any)["a"] != "1" {
		t.Error("clone shares nested data with original")
	}
	if *env.RequeueOptions.Priority != 2 {
		t.Error("clone shares priority with original")
	}
	if c.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", c.Attempts)
	}
}
