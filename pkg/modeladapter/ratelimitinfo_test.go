package modeladapter_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/tabletalk/pkg/modeladapter"
)

func TestRateLimitHeaderParsers(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	reset := now.Add(45 * time.Second)

	tests := []struct {
		name    string
		parse   modeladapter.RateLimitHeaderParser
		headers map[string]string
		want    *modeladapter.RateLimitInfo
	}{
		{
			name:  "anthropic all headers",
			parse: modeladapter.ParseAnthropicRateLimitHeaders,
			headers: map[string]string{
				"anthropic-ratelimit-requests-remaining": "5",
				"anthropic-ratelimit-tokens-remaining":   "1000",
				"anthropic-ratelimit-requests-reset":     reset.Format(time.RFC3339),
				"anthropic-ratelimit-tokens-reset":       reset.Format(time.RFC3339),
			},
			want: &modeladapter.RateLimitInfo{
				RemainingRequests: 5,
				RemainingTokens:   1000,
				RequestsReset:     reset,
				TokensReset:       reset,
			},
		},
		{
			name:  "anthropic partial",
			parse: modeladapter.ParseAnthropicRateLimitHeaders,
			headers: map[string]string{
				"anthropic-ratelimit-requests-remaining": "3",
			},
			want: &modeladapter.RateLimitInfo{RemainingRequests: 3},
		},
		{
			name:  "openai duration reset",
			parse: modeladapter.ParseOpenAIRateLimitHeaders,
			headers: map[string]string{
				"x-ratelimit-remaining-requests": "0",
				"x-ratelimit-remaining-tokens":   "12",
				"x-ratelimit-reset-requests":     "1m30s",
				"x-ratelimit-reset-tokens":       "6s",
			},
			want: &modeladapter.RateLimitInfo{
				RemainingRequests: 0,
				RemainingTokens:   12,
				RequestsReset:     now.Add(90 * time.Second),
				TokensReset:       now.Add(6 * time.Second),
			},
		},
		{
			name:  "openai garbage reset",
			parse: modeladapter.ParseOpenAIRateLimitHeaders,
			headers: map[string]string{
				"x-ratelimit-remaining-tokens": "7",
				"x-ratelimit-reset-tokens":     "soon",
			},
			want: &modeladapter.RateLimitInfo{RemainingTokens: 7},
		},
		{
			name:  "no headers",
			parse: modeladapter.ParseOpenAIRateLimitHeaders,
		},
		{
			name:  "wrong vendor",
			parse: modeladapter.ParseAnthropicRateLimitHeaders,
			headers: map[string]string{
				"x-ratelimit-remaining-requests": "4",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tt.headers {
				h.Set(k, v)
			}

			got := tt.parse(h, now)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
