package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormatting(t *testing.T) {
	err := NewDomainError("Registry.Get", ErrToolNotFound, "web_fetch")
	assert.Equal(t, "Registry.Get: web_fetch: tool not found", err.Error())
	assert.ErrorIs(t, err, ErrToolNotFound)

	bare := NewDomainError("store.Load", ErrAgentNotFound, "")
	assert.Equal(t, "store.Load: agent not found", bare.Error())
}

func TestWrapOp(t *testing.T) {
	assert.NoError(t, WrapOp("anything", nil))

	err := WrapOp("FileStore.Save", ErrAgentDuplicate)
	assert.ErrorIs(t, err, ErrAgentDuplicate)
	assert.Equal(t, "FileStore.Save: agent already exists", err.Error())
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{ErrToolNotFound, CodeToolNotFound},
		{ErrMaxIterations, CodeMaxIterations},
		{NewDomainError("op", ErrRateLimit, "429"), CodeRateLimit},
		{fmt.Errorf("outer: %w", ErrStreamProtocol), CodeStreamProtocol},
		{fmt.Errorf("outer: %w", NewDomainError("op", ErrAuthInvalid, "")), CodeAuthInvalid},
		{errors.New("something else"), CodeUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCodeOf(tt.err), "%v", tt.err)
	}
}

func TestDomainErrorCode(t *testing.T) {
	assert.Equal(t, CodeProviderError, NewDomainError("op", ErrProviderError, "").Code())
	assert.Equal(t, CodeUnknown, NewDomainError("op", errors.New("odd"), "").Code())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(ErrContextOverflow))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
	assert.False(t, IsRetryableError(nil))
}

func TestIsTurnFatal(t *testing.T) {
	for _, err := range []error{
		ErrStreamProtocol, ErrTimeout, ErrProviderError,
		ErrRateLimit, ErrAuthInvalid, ErrContextOverflow,
	} {
		assert.True(t, IsTurnFatal(err), "%v", err)
		assert.True(t, IsTurnFatal(NewDomainError("op", err, "wrapped")), "wrapped %v", err)
	}

	assert.False(t, IsTurnFatal(ErrToolNotFound))
	assert.False(t, IsTurnFatal(ErrMaxIterations))
	assert.False(t, IsTurnFatal(nil))
}
