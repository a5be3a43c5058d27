package modeladapter

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/germanamz/tabletalk/pkg/chats/chat"
	"github.com/germanamz/tabletalk/pkg/chats/message"
	"github.com/germanamz/tabletalk/pkg/modeladapter/usage"
	"github.com/germanamz/tabletalk/pkg/tools/toolbox"
)

var _ Completer = (*RateLimitedCompleter)(nil)

// RateLimitOpts configures a RateLimitedCompleter. Zero limits disable the
// corresponding throttle.
type RateLimitOpts struct {
	RPM        int           // Requests per minute.
	InputTPM   int           // Input tokens per minute.
	OutputTPM  int           // Output tokens per minute.
	MaxRetries int           // Retries on 429 (default 3).
	BaseDelay  time.Duration // Initial backoff delay (default 1s).
}

// RateLimitedCompleter wraps a Completer with proactive request and token
// throttling, plus retry with exponential backoff and jitter on 429.
//
// Requests are throttled with a token bucket of RPM capacity. Token usage
// reported by the inner completer is charged to per-direction buckets after
// each call; the next call waits until that debt is repaid.
type RateLimitedCompleter struct {
	inner      Completer
	requests   *rate.Limiter
	inputTPM   *rate.Limiter
	outputTPM  *rate.Limiter
	maxRetries int
	baseDelay  time.Duration

	completeMu      sync.Mutex
	fallbackTracker usage.Tracker

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	randFunc  func() float64
}

// NewRateLimitedCompleter wraps inner with rate limiting.
func NewRateLimitedCompleter(inner Completer, opts RateLimitOpts) *RateLimitedCompleter {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}

	return &RateLimitedCompleter{
		inner:      inner,
		requests:   perMinute(opts.RPM),
		inputTPM:   perMinute(opts.InputTPM),
		outputTPM:  perMinute(opts.OutputTPM),
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		nowFunc:    time.Now,
		sleepFunc:  contextSleep,
		randFunc:   rand.Float64,
	}
}

func perMinute(n int) *rate.Limiter {
	if n <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
}

// SetNowFunc overrides the clock (for testing).
func (r *RateLimitedCompleter) SetNowFunc(fn func() time.Time) { r.nowFunc = fn }

// SetSleepFunc overrides the sleep function (for testing).
func (r *RateLimitedCompleter) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	r.sleepFunc = fn
}

// SetRandFunc overrides the jitter source (for testing).
func (r *RateLimitedCompleter) SetRandFunc(fn func() float64) { r.randFunc = fn }

func contextSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// reserve takes n tokens from lim, sleeping until they are available. A
// zero n only waits for outstanding debt.
func (r *RateLimitedCompleter) reserve(ctx context.Context, lim *rate.Limiter, n int) error {
	if lim == nil {
		return nil
	}

	now := r.nowFunc()
	res := lim.ReserveN(now, n)
	if !res.OK() {
		return errors.New("modeladapter: rate limit reservation exceeds burst")
	}

	d := res.DelayFrom(now)
	if d <= 0 {
		return nil
	}

	if err := r.sleepFunc(ctx, d); err != nil {
		res.CancelAt(now)
		return err
	}
	return nil
}

// charge records n consumed tokens on lim. Amounts above the bucket size are
// split so the whole amount turns into debt.
func (r *RateLimitedCompleter) charge(lim *rate.Limiter, n int) {
	if lim == nil {
		return
	}

	now := r.nowFunc()
	for n > 0 {
		k := min(n, lim.Burst())
		lim.ReserveN(now, k)
		n -= k
	}
}

func (r *RateLimitedCompleter) waitForCapacity(ctx context.Context) error {
	if err := r.reserve(ctx, r.inputTPM, 0); err != nil {
		return err
	}
	if err := r.reserve(ctx, r.outputTPM, 0); err != nil {
		return err
	}
	return r.reserve(ctx, r.requests, 1)
}

// jitter scales d by a random factor in [0.75, 1.25).
func (r *RateLimitedCompleter) jitter(d time.Duration) time.Duration {
	factor := 0.75 + r.randFunc()*0.5 //nolint:mnd // ±25%
	return time.Duration(float64(d) * factor)
}

func (r *RateLimitedCompleter) completeOnce(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	r.completeMu.Lock()
	defer r.completeMu.Unlock()

	ur, tracked := r.inner.(UsageReporter)

	var before usage.TokenCount
	if tracked {
		before = ur.UsageTracker().Total()
	}

	msg, err := r.inner.Complete(ctx, c, tools)
	if err == nil && tracked {
		after := ur.UsageTracker().Total()
		r.charge(r.inputTPM, after.InputTokens-before.InputTokens)
		r.charge(r.outputTPM, after.OutputTokens-before.OutputTokens)
	}

	return msg, err
}

// Complete implements Completer.
func (r *RateLimitedCompleter) Complete(ctx context.Context, c *chat.Chat, tools []toolbox.Tool) (message.Message, error) {
	var lastErr error
	for attempt := range r.maxRetries + 1 {
		if err := r.waitForCapacity(ctx); err != nil {
			return message.Message{}, err
		}

		msg, err := r.completeOnce(ctx, c, tools)
		if err == nil {
			if err := r.adaptFromServerInfo(ctx); err != nil {
				return message.Message{}, err
			}
			return msg, nil
		}

		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return message.Message{}, err
		}
		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		backoff := r.jitter(max(
			r.baseDelay*time.Duration(math.Pow(2, float64(attempt))), //nolint:mnd // exponential backoff
			rle.RetryAfter,
		))
		if err := r.sleepFunc(ctx, backoff); err != nil {
			return message.Message{}, err
		}
	}

	return message.Message{}, lastErr
}

// adaptFromServerInfo sleeps until the provider's reset time when the inner
// completer reports that requests or tokens are nearly exhausted.
func (r *RateLimitedCompleter) adaptFromServerInfo(ctx context.Context) error {
	reporter, ok := r.inner.(RateLimitInfoReporter)
	if !ok {
		return nil
	}

	info := reporter.LastRateLimitInfo()
	if info == nil {
		return nil
	}

	now := r.nowFunc()
	var until time.Time

	if info.RemainingRequests <= 1 && info.RequestsReset.After(now) {
		until = info.RequestsReset
	}
	if info.RemainingTokens <= 1 && info.TokensReset.After(now) && info.TokensReset.After(until) {
		until = info.TokensReset
	}

	if until.IsZero() {
		return nil
	}

	return r.sleepFunc(ctx, until.Sub(now))
}

// UsageTracker forwards to the inner completer when it reports usage.
func (r *RateLimitedCompleter) UsageTracker() *usage.Tracker {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.UsageTracker()
	}
	return &r.fallbackTracker
}

// ModelMaxTokens forwards to the inner completer when it reports usage.
func (r *RateLimitedCompleter) ModelMaxTokens() int {
	if ur, ok := r.inner.(UsageReporter); ok {
		return ur.ModelMaxTokens()
	}
	return 0
}
