package apiclient

import (
	"context"
	"time"

	"github.com/kuitang/knowledge-e2e/internal/errs"
	"github.com/kuitang/knowledge-e2e/internal/model"
	"github.com/kuitang/knowledge-e2e/internal/obs"
)

const (
	DefaultJobMaxAttempts  = 30
	DefaultJobInterval     = 2 * time.Second
	DefaultPollMaxAttempts = 30
	DefaultPollInterval    = time.Second
)

// PollOptions bounds a fixed-interval polling loop. There is no backoff and no jitter.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
	// OnAttempt runs after every fetch with the 1-based fetch number.
	OnAttempt func(attempt int)
}

// PollOption adjusts PollOptions.
type PollOption func(*PollOptions)

// WithMaxAttempts sets the attempt budget.
func WithMaxAttempts(n int) PollOption {
	return func(o *PollOptions) { o.MaxAttempts = n }
}

// WithInterval sets the fixed sleep between attempts.
func WithInterval(d time.Duration) PollOption {
	return func(o *PollOptions) { o.Interval = d }
}

// WithOnAttempt registers a per-fetch hook.
func WithOnAttempt(fn func(attempt int)) PollOption {
	return func(o *PollOptions) { o.OnAttempt = fn }
}

func resolvePollOptions(maxAttempts int, interval time.Duration, opts []PollOption) PollOptions {
	o := PollOptions{MaxAttempts: maxAttempts, Interval: interval}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WaitForJobCompletion polls GET /api/jobs/{id} while the job reports "running".
// It returns the first record with any other status. Only running polls count against
// MaxAttempts, so a job that never leaves running is fetched exactly MaxAttempts times
// and the call fails with errs.Timeout after MaxAttempts full intervals.
func (c *Client) WaitForJobCompletion(ctx context.Context, jobID string, opts ...PollOption) (*model.Job, error) {
	o := resolvePollOptions(DefaultJobMaxAttempts, DefaultJobInterval, opts)
	logger := obs.From(ctx).With("pkg", "apiclient", "job_id", jobID)

	fetches := 0
	for attempts := 0; attempts < o.MaxAttempts; {
		job, err := c.GetJob(ctx, jobID)
		fetches++
		if o.OnAttempt != nil {
			o.OnAttempt(fetches)
		}
		if err != nil {
			return nil, err
		}
		if job.Status != model.JobRunning {
			logger.Debug("job_finished", "status", job.Status, "polls", fetches)
			return job, nil
		}

		attempts++
		if err := sleepContext(ctx, o.Interval); err != nil {
			return nil, err
		}
	}

	logger.Info("job_poll_exhausted", "polls", fetches)
	return nil, errs.Newf(errs.Timeout, "job %s did not complete within timeout", jobID)
}

// PollUntilCondition calls produce until satisfied accepts its result, sleeping a fixed
// interval after every rejected result. A producer error aborts the poll and is returned as is.
// After MaxAttempts rejected results it fails with errs.ConditionNotMet.
func PollUntilCondition[T any](ctx context.Context, produce func(context.Context) (T, error), satisfied func(T) bool, opts ...PollOption) (T, error) {
	o := resolvePollOptions(DefaultPollMaxAttempts, DefaultPollInterval, opts)

	var zero T
	for attempt := 1; attempt <= o.MaxAttempts; attempt++ {
		result, err := produce(ctx)
		if o.OnAttempt != nil {
			o.OnAttempt(attempt)
		}
		if err != nil {
			return zero, err
		}
		if satisfied(result) {
			return result, nil
		}
		if err := sleepContext(ctx, o.Interval); err != nil {
			return zero, err
		}
	}
	return zero, errs.New(errs.ConditionNotMet, "condition not met within timeout")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
