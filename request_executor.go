package backendbridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opengovern/backend-bridge/internal/logger"
)

// RetryPolicy bounds retries of transient failures. The delay before retry k
// (k starting at 1) is BaseDelay * 2^(k-1), capped at MaxDelay.
type RetryPolicy struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxDelay:   DefaultMaxDelay,
	}
}

// Backoff returns the delay before retry k.
func (p RetryPolicy) Backoff(retry int) time.Duration {
	if retry < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
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

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Attempt performs exactly one transport attempt. attempt starts at 1.
type Attempt func(ctx context.Context, attempt int) (*NormalizedResponse, *NormalizedError)

// RequestExecutor handles retry logic, backoff, and consulting the RateLimiter.
type RequestExecutor struct {
	policy  RetryPolicy
	sleep   SleepFunc
	limiter *RateLimiter
	log     *zap.Logger
}

func NewRequestExecutor(policy RetryPolicy, sleep SleepFunc, limiter *RateLimiter, log *zap.Logger) *RequestExecutor {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if sleep == nil {
		sleep = ContextSleep
	}
	if limiter == nil {
		limiter = NewRateLimiter()
	}
	if log == nil {
		log = logger.Named("executor")
	}
	return &RequestExecutor{policy: policy, sleep: sleep, limiter: limiter, log: log}
}

// ExecuteWithRetry runs op until it succeeds, fails permanently or retries are
// exhausted. Attempts are strictly sequential. It returns the first success or the
// error of the final attempt, plus the number of attempts made.
func (re *RequestExecutor) ExecuteWithRetry(ctx context.Context, backend string, op Attempt) (*NormalizedResponse, int, *NormalizedError) {
	var lastErr *NormalizedError

	for attempt := 1; ; attempt++ {
		wait := re.policy.Backoff(attempt - 1)
		if cooldown := re.limiter.delayBeforeNextRequest(backend); cooldown > wait {
			if re.policy.MaxDelay > 0 && cooldown > re.policy.MaxDelay {
				cooldown = re.policy.MaxDelay
			}
			re.log.Debug("backend asked to back off", logger.Backend(backend), logger.Duration(cooldown))
			wait = cooldown
		}
		if wait > 0 {
			if err := re.sleep(ctx, wait); err != nil && lastErr != nil {
				re.log.Debug("retry abandoned", logger.Backend(backend), logger.Attempt(attempt), logger.Err(err))
				return nil, attempt - 1, lastErr
			}
		}

		resp, nerr := op(ctx, attempt)
		if nerr == nil {
			if attempt > 1 {
				re.log.Debug("request succeeded after retries", logger.Backend(backend), logger.Attempt(attempt))
			}
			return resp, attempt, nil
		}
		lastErr = nerr

		if !nerr.Transient() {
			return nil, attempt, nerr
		}
		if attempt > re.policy.MaxRetries {
			re.log.Debug("max retries reached",
				logger.Backend(backend), logger.Attempt(attempt), logger.ErrorKind(string(nerr.Kind)))
			return nil, attempt, nerr
		}
		re.log.Debug("transient failure, retrying",
			logger.Backend(backend),
			logger.Attempt(attempt),
			logger.ErrorKind(string(nerr.Kind)),
			logger.Status(nerr.Status),
			logger.Duration(re.policy.Backoff(attempt)),
		)
	}
}
