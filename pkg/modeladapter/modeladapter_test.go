package modeladapter_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/germanamz/tabletalk/pkg/chats/chat"
	"github.com/germanamz/tabletalk/pkg/modeladapter"
)

var _ modeladapter.Completer = (*modeladapter.ModelAdapter)(nil)

func TestModelAdapter_StubComplete(t *testing.T) {
	var a modeladapter.ModelAdapter

	_, err := a.Complete(context.Background(), chat.New(), nil)
	assert.EqualError(t, err, "modeladapter: Complete not implemented")
}

func TestNewRequest_Auth(t *testing.T) {
	tests := []struct {
		name   string
		auth   modeladapter.Auth
		header string
		want   string
	}{
		{name: "bearer default", auth: modeladapter.Auth{Key: "sk-test"}, header: "Authorization", want: "Bearer sk-test"},
		{name: "custom header", auth: modeladapter.Auth{Key: "sk-test", Header: "x-api-key"}, header: "x-api-key", want: "sk-test"},
		{name: "custom header with scheme", auth: modeladapter.Auth{Key: "k", Header: "x-api-key", Scheme: "Token"}, header: "x-api-key", want: "Token k"},
		{name: "authorization custom scheme", auth: modeladapter.Auth{Key: "k", Scheme: "Basic"}, header: "Authorization", want: "Basic k"},
		{name: "no key", auth: modeladapter.Auth{}, header: "Authorization", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := modeladapter.New("https://api.example.com", tt.auth, nil)

			req, err := a.NewRequest(context.Background(), http.MethodGet, "/v1/chat", nil)
			require.NoError(t, err)
			assert.Equal(t, "https://api.example.com/v1/chat", req.URL.String())
			assert.Equal(t, tt.want, req.Header.Get(tt.header))
		})
	}
}

func TestNewRequest_ExtraHeaders(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)
	a.Headers = map[string]string{"anthropic-version": "2023-06-01"}

	req, err := a.NewRequest(context.Background(), http.MethodPost, "/v1/messages", nil)
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestPostJSON_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var got map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "gpt-4o", got["model"])

		w.Header().Set("x-ratelimit-remaining-requests", "42")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "cmpl-1"})
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{Key: "sk-test"}, srv.Client())
	a.HeaderParser = modeladapter.ParseOpenAIRateLimitHeaders

	var dest struct {
		ID string `json:"id"`
	}
	err := a.PostJSON(context.Background(), "/v1/chat", map[string]string{"model": "gpt-4o"}, &dest)
	require.NoError(t, err)
	assert.Equal(t, "cmpl-1", dest.ID)

	info := a.LastRateLimitInfo()
	require.NotNil(t, info)
	assert.Equal(t, 42, info.RemainingRequests)
}

func TestPostJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]string{}, nil)

	var se *modeladapter.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Contains(t, se.Body, "invalid api key")
	assert.ErrorContains(t, err, "unexpected status 401")
}

func TestPostJSON_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	a := modeladapter.New(srv.URL, modeladapter.Auth{}, srv.Client())

	err := a.PostJSON(context.Background(), "/v1/chat", map[string]string{}, nil)

	var rle *modeladapter.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 7*time.Second, rle.RetryAfter)
	assert.Equal(t, "slow down", rle.Body)
}

func TestPostJSON_MarshalError(t *testing.T) {
	a := modeladapter.New("https://api.example.com", modeladapter.Auth{}, nil)

	err := a.PostJSON(context.Background(), "/v1/chat", make(chan int), nil)
	assert.ErrorContains(t, err, "marshal payload")
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter(""))
	assert.Equal(t, 3*time.Second, modeladapter.ParseRetryAfter("3"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("later"))
	assert.Equal(t, time.Duration(0), modeladapter.ParseRetryAfter("Mon, 02 Jan 2006 15:04:05 GMT"))

	future := time.Now().Add(time.Hour).UTC().Format(http.TimeFormat)
	d := modeladapter.ParseRetryAfter(future)
	assert.Greater(t, d, 58*time.Minute)
}
