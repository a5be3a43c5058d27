package modeladapter

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo is the provider's view of remaining capacity, parsed from
// response headers.
type RateLimitInfo struct {
	RemainingRequests int
	RemainingTokens   int
	RequestsReset     time.Time
	TokensReset       time.Time
}

// RateLimitInfoReporter exposes the last observed RateLimitInfo.
type RateLimitInfoReporter interface {
	LastRateLimitInfo() *RateLimitInfo
}

// RateLimitHeaderParser extracts rate limit info from response headers. It
// receives the current time so relative reset values can be resolved.
type RateLimitHeaderParser func(h http.Header, now time.Time) *RateLimitInfo

type rateLimitHeaders struct {
	remainingRequests string
	remainingTokens   string
	resetRequests     string
	resetTokens       string
}

var (
	anthropicHeaders = rateLimitHeaders{
		remainingRequests: "anthropic-ratelimit-requests-remaining",
		remainingTokens:   "anthropic-ratelimit-tokens-remaining",
		resetRequests:     "anthropic-ratelimit-requests-reset",
		resetTokens:       "anthropic-ratelimit-tokens-reset",
	}
	openAIHeaders = rateLimitHeaders{
		remainingRequests: "x-ratelimit-remaining-requests",
		remainingTokens:   "x-ratelimit-remaining-tokens",
		resetRequests:     "x-ratelimit-reset-requests",
		resetTokens:       "x-ratelimit-reset-tokens",
	}
)

// ParseAnthropicRateLimitHeaders parses anthropic-ratelimit-* headers.
func ParseAnthropicRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return anthropicHeaders.parse(h, now)
}

// ParseOpenAIRateLimitHeaders parses x-ratelimit-* headers.
func ParseOpenAIRateLimitHeaders(h http.Header, now time.Time) *RateLimitInfo {
	return openAIHeaders.parse(h, now)
}

// parse returns nil when neither remaining header is present.
func (names rateLimitHeaders) parse(h http.Header, now time.Time) *RateLimitInfo {
	reqRemaining := h.Get(names.remainingRequests)
	tokRemaining := h.Get(names.remainingTokens)
	if reqRemaining == "" && tokRemaining == "" {
		return nil
	}

	info := &RateLimitInfo{
		RequestsReset: parseResetTime(h.Get(names.resetRequests), now),
		TokensReset:   parseResetTime(h.Get(names.resetTokens), now),
	}
	if v, err := strconv.Atoi(reqRemaining); err == nil {
		info.RemainingRequests = v
	}
	if v, err := strconv.Atoi(tokRemaining); err == nil {
		info.RemainingTokens = v
	}

	return info
}

// parseResetTime accepts RFC 3339 timestamps or durations relative to now
// ("6s", "1m30s").
func parseResetTime(val string, now time.Time) time.Time {
	if val == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t
	}
	if d, err := time.ParseDuration(val); err == nil {
		return now.Add(d)
	}
	return time.Time{}
}
