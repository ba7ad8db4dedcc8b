package archive

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/ferry/id"
)

// Publisher pushes a record back onto its queue with its original
// target, data, config, priority and queue.
type Publisher interface {
	Republish(ctx context.Context, r *Record) error
}

// Confirm is asked before a bulk operation touches found records. A nil
// Confirm proceeds without asking.
type Confirm func(found int) bool

// RequeueReport summarizes a Requeue call.
type RequeueReport struct {
	Found     int
	Succeeded int
	Failed    int
	Aborted   bool
}

// PurgeReport summarizes a Purge call.
type PurgeReport struct {
	Found   int
	Deleted int64
	Aborted bool
}

// Service provides the administrative operations over a Store.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for per-record requeue progress and failures.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service. publisher may be nil when Requeue is not
// used.
func NewService(store Store, publisher Publisher, opts ...ServiceOption) *Service {
	s := &Service{store: store, publisher: publisher, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// List returns the records matching f, oldest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Record, error) {
	pred, err := f.Compile()
	if err != nil {
		return nil, err
	}
	recs, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("ferry/archive: find: %w", err)
	}
	if pred == nil {
		return recs, nil
	}

	out := recs[:0]
	for _, r := range recs {
		ok, err := pred.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Count returns the number of records matching f.
func (s *Service) Count(ctx context.Context, f Filter) (int, error) {
	recs, err := s.List(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Requeue republishes every record matching f and deletes each one whose
// republish succeeded. A failing record is counted and logged; it never
// stops the batch.
func (s *Service) Requeue(ctx context.Context, f Filter, confirm Confirm) (RequeueReport, error) {
	recs, err := s.List(ctx, f)
	if err != nil {
		return RequeueReport{}, err
	}
	report := RequeueReport{Found: len(recs)}
	if len(recs) == 0 {
		return report, nil
	}
	if confirm != nil && !confirm(len(recs)) {
		report.Aborted = true
		return report, nil
	}

	for _, r := range recs {
		s.logger.Debug("requeueing failed job", slog.String("failed_job_id", r.ID.String()))
		if err := s.requeueOne(ctx, r); err != nil {
			report.Failed++
			s.logger.Error("could not requeue failed job",
				slog.String("failed_job_id", r.ID.String()),
				slog.String("target", r.Target().String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Succeeded++
	}
	return report, nil
}

func (s *Service) requeueOne(ctx context.Context, r *Record) error {
	if s.publisher == nil {
		return fmt.Errorf("ferry/archive: no publisher configured")
	}
	if err := s.publisher.Republish(ctx, r); err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, r.ID); err != nil {
		return fmt.Errorf("ferry/archive: delete after requeue: %w", err)
	}
	return nil
}

// Purge deletes every record matching f.
func (s *Service) Purge(ctx context.Context, f Filter, confirm Confirm) (PurgeReport, error) {
	recs, err := s.List(ctx, f)
	if err != nil {
		return PurgeReport{}, err
	}
	report := PurgeReport{Found: len(recs)}
	if len(recs) == 0 {
		return report, nil
	}
	if confirm != nil && !confirm(len(recs)) {
		report.Aborted = true
		return report, nil
	}

	ids := make([]id.FailedJobID, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	n, err := s.store.Delete(ctx, ids...)
	if err != nil {
		return report, fmt.Errorf("ferry/archive: delete: %w", err)
	}
	report.Deleted = n
	return report, nil
}
