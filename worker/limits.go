package worker

import (
	"time"
)

// Interrupt reasons reported through ext.LoopInterrupted.
const (
	ReasonMaxRuntime    = "maxRuntime"
	ReasonMaxIterations = "maxIterations"
)

// Limits is the consumption-loop governor. It stops the loop once a job
// count or runtime budget is spent. The zero budgets are real budgets:
// a dimension is unlimited only when its option is not given.
type Limits struct {
	maxJobs    int
	maxRuntime time.Duration
	hasJobs    bool
	hasRuntime bool

	now   func() time.Time
	start time.Time

	iterations int
}

// LimitsOption configures Limits.
type LimitsOption func(*Limits)

// WithMaxJobs stops the loop after n counted messages.
func WithMaxJobs(n int) LimitsOption {
	return func(l *Limits) {
		l.maxJobs = n
		l.hasJobs = true
	}
}

// WithMaxRuntime stops the loop once d has elapsed since NewLimits.
func WithMaxRuntime(d time.Duration) LimitsOption {
	return func(l *Limits) {
		l.maxRuntime = d
		l.hasRuntime = true
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LimitsOption {
	return func(l *Limits) { l.now = now }
}

// NewLimits creates Limits and captures the start time.
func NewLimits(opts ...LimitsOption) *Limits {
	l := &Limits{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.start = l.now()
	return l
}

// Unlimited returns Limits with no budget in either dimension.
func Unlimited() *Limits { return NewLimits() }

// Iterations returns the number of counted messages.
func (l *Limits) Iterations() int { return l.iterations }

// Elapsed returns the time since the limits were created.
func (l *Limits) Elapsed() time.Duration { return l.now().Sub(l.start) }

// OnPreReceive runs before each receive. It returns the interrupt reason
// and true when a budget is spent.
func (l *Limits) OnPreReceive() (string, bool) {
	if l.hasJobs && l.iterations >= l.maxJobs {
		return ReasonMaxIterations, true
	}
	return l.checkRuntime()
}

// OnPostMessage runs after each processed message. Only terminal results
// and retries without an attempt limit are counted; bounded retries and
// plain broker requeues are not.
func (l *Limits) OnPostMessage(res Result) (string, bool) {
	if !res.Terminal() && (res.Retry == nil || res.Bounded()) {
		return "", false
	}
	l.iterations++
	if l.hasJobs && l.iterations >= l.maxJobs {
		return ReasonMaxIterations, true
	}
	return l.checkRuntime()
}

func (l *Limits) checkRuntime() (string, bool) {
	if l.hasRuntime && l.Elapsed() >= l.maxRuntime {
		return ReasonMaxRuntime, true
	}
	return "", false
}
