package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/ferry"
	"github.com/xraph/ferry/id"
	"github.com/xraph/ferry/job"
)

// Record is a message that exhausted its attempts, kept for inspection,
// requeue or purge. Records are never updated.
type Record struct {
	ID        id.FailedJobID `json:"id"`
	Type      string         `json:"type"`
	Entry     string         `json:"entry"`
	Data      string         `json:"data"`
	Config    string         `json:"config"`
	Priority  *int           `json:"priority,omitempty"`
	Queue     string         `json:"queue"`
	Exception string         `json:"exception,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewRecord builds a record from an envelope. config and queue are used
// when the envelope carries no requeue options.
func NewRecord(env *job.Envelope, config, queue, exception string) (*Record, error) {
	data := env.Data
	if data == nil {
		data = env.Arguments()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("ferry/archive: encode data: %w", err)
	}

	r := &Record{
		ID:        id.NewFailedJobID(),
		Type:      env.Target.Type,
		Entry:     env.Target.Entry,
		Data:      string(raw),
		Config:    config,
		Queue:     queue,
		Exception: exception,
		CreatedAt: time.Now().UTC(),
	}
	if ro := env.RequeueOptions; ro != nil {
		if ro.Config != "" {
			r.Config = ro.Config
		}
		if ro.Queue != "" {
			r.Queue = ro.Queue
		}
		if ro.Priority != nil {
			p := *ro.Priority
			r.Priority = &p
		}
	}
	return r, nil
}

// Target returns the handler the record was addressed to.
func (r *Record) Target() job.Target {
	return job.NewTarget(r.Type, r.Entry)
}

// Arguments decodes Data. Numbers decode as json.Number.
func (r *Record) Arguments() (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Data)))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: record %s: %w", ferry.ErrMalformedEnvelope, r.ID, err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
