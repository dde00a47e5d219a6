package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", 500, true},
		{"bad gateway", 502, true},
		{"gateway timeout", 504, true},
		{"rate limited", 429, true},
		{"not found", 404, false},
		{"unauthorized", 401, false},
		{"bad request", 400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewAPIError(tt.status, "body")
			assert.Equal(t, tt.retryable, IsRetryable(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestAPIErrorBodyExcerpt(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}

	err := NewAPIError(500, string(long))
	body, ok := err.Details["body"].(string)
	require.True(t, ok)
	assert.Len(t, body, 500)
}

func TestWrapPreservesType(t *testing.T) {
	inner := New(ErrorTypeAuthentication, "token exchange failed")
	outer := Wrap(inner, ErrorTypeInternal, "job aborted")

	assert.True(t, IsType(outer, ErrorTypeInternal))
	assert.ErrorIs(t, outer, inner)
	assert.Contains(t, outer.Error(), "token exchange failed")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "nothing"))
}

func TestIsRetryablePlainError(t *testing.T) {
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, ErrorTypeSink, TypeOf(New(ErrorTypeSink, "upload failed")))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeAPI, "boom").WithDetail("connector", "shopify")
	assert.Equal(t, "shopify", err.Details["connector"])
}
