package transport

import "time"

// Policy controls retry behavior for outbound HTTP calls. A zero attempt
// count means a single try with no retries.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RetryStatuses map[int]bool
}

// defaultRetryStatuses are the transient HTTP statuses worth retrying.
// Anything else in the 4xx range is an application error and must surface
// immediately.
func defaultRetryStatuses() map[int]bool {
	return map[int]bool{
		429: true,
		500: true,
		502: true,
		503: true,
		504: true,
	}
}

// PushPolicy is the short policy for push-style notifications where
// timeliness beats completeness.
func PushPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		RetryStatuses: defaultRetryStatuses(),
	}
}

// ReplyPolicy is the persistent policy for reply and content-download
// calls against the channel platform.
func ReplyPolicy() Policy {
	return Policy{
		MaxAttempts:   5,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		RetryStatuses: defaultRetryStatuses(),
	}
}

// BackendPolicy is the policy for worker backend calls. Those calls run
// generation pipelines measured in minutes, so one retry is all a user
// will sit through.
func BackendPolicy() Policy {
	return Policy{
		MaxAttempts:   2,
		BaseDelay:     2 * time.Second,
		MaxDelay:      20 * time.Second,
		RetryStatuses: defaultRetryStatuses(),
	}
}

// Backoff returns the delay before the given retry. attempt is zero-based:
// Backoff(0) is the wait after the first failure.
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Retryable reports whether an HTTP status should be retried under this policy.
func (p Policy) Retryable(status int) bool {
	return p.RetryStatuses[status]
}
