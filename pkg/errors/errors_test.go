package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		status    int
		retryable bool
	}{
		{"rate limit text", errors.New("apify: rate limit exceeded (429)"), KindRateLimited, http.StatusTooManyRequests, false},
		{"unauthorized", errors.New("apify: unauthorized (401)"), KindUnauthorized, http.StatusUnauthorized, false},
		{"not found", errors.New("apify: actor not found (404)"), KindNotFound, http.StatusNotFound, false},
		{"timeout", errors.New("request timeout after 60s"), KindTimeout, http.StatusRequestTimeout, true},
		{"deadline", fmt.Errorf("waiting: %w", context.DeadlineExceeded), KindTimeout, http.StatusRequestTimeout, true},
		{"deadline text", errors.New("context deadline exceeded"), KindTimeout, http.StatusRequestTimeout, true},
		{"network", errors.New("network unreachable"), KindNetwork, http.StatusServiceUnavailable, true},
		{"connection", errors.New("connection reset by peer"), KindNetwork, http.StatusServiceUnavailable, true},
		{"server error", errors.New("apify: server error (503)"), KindUnknown, http.StatusInternalServerError, true},
		{"unknown", errors.New("something odd"), KindUnknown, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := Classify(tt.err)
			require.NotNil(t, e)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.status, e.StatusHint)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, tt.err.Error(), e.Message)
			assert.False(t, e.OccurredAt.IsZero())
		})
	}
}

func TestClassifyPassesTypedErrorsThrough(t *testing.T) {
	original := InvalidInput("URL is required")
	wrapped := fmt.Errorf("validate: %w", original)

	assert.Same(t, original, Classify(wrapped))
	assert.Nil(t, Classify(nil))
}

func TestConstructors(t *testing.T) {
	assert.Equal(t, "INVALID_URL", InvalidInput("bad").Code)
	assert.Equal(t, http.StatusBadRequest, InvalidInput("bad").StatusHint)

	rl := RateLimited("Minute limit of 10 requests exceeded")
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", rl.Code)
	assert.Equal(t, http.StatusTooManyRequests, rl.StatusHint)
	assert.False(t, rl.Retryable)

	assert.Equal(t, KindNoData, NoData().Kind)
	assert.Equal(t, http.StatusNotImplemented, PlatformNotSupported("youtube").StatusHint)
	assert.Contains(t, PlatformNotSupported("youtube").Message, "youtube")

	unknown := New(Kind("bogus"), "x")
	assert.Equal(t, KindUnknown, unknown.Kind)
	assert.Equal(t, "UNKNOWN_ERROR", unknown.Code)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("502 bad gateway")))
	assert.False(t, IsRetryable(errors.New("not found")))
	assert.False(t, IsRetryable(nil))
}
