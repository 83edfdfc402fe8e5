package llm

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"agentforge/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusInternalServerError, domain.ErrProviderError},
		{http.StatusBadGateway, domain.ErrProviderError},
		{http.StatusBadRequest, domain.ErrProviderError},
		{http.StatusNotFound, domain.ErrProviderError},
	}
	for _, tt := range tests {
		err := mapHTTPError(tt.status, []byte("detail"))
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Contains(t, err.Error(), "detail")
	}
}

func TestMapTransportErrorDeadline(t *testing.T) {
	err := mapTransportError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMapTransportErrorURLTimeout(t *testing.T) {
	urlErr := &url.Error{
		Op:  "Post",
		URL: "https://api.example.com",
		Err: timeoutErr{},
	}
	err := mapTransportError(urlErr)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestMapTransportErrorOther(t *testing.T) {
	base := errors.New("connection refused")
	err := mapTransportError(base)
	assert.NotErrorIs(t, err, domain.ErrTimeout)
	assert.ErrorIs(t, err, base)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
