package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypedErrors_UnwrapToSentinels(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
		fatal    bool
	}{
		{"signing", &SigningError{Scheme: "bcrypt", Err: cause}, ErrSigning, true},
		{"auth", &AuthenticationError{StatusCode: 401, Message: "invalid client"}, ErrAuthentication, true},
		{"fetch", &FetchError{Page: 2, StatusCode: 500}, ErrFetch, true},
		{"proxy", &ProxyError{Operation: "sync", Err: cause}, ErrProxy, true},
		{"detail batch", &DetailBatchError{Batch: 2, Batches: 3, Size: 300, StatusCode: 500}, ErrDetailBatch, false},
		{"persistence", &PersistenceError{Channel: ChannelNaver, OrderID: "1", Err: cause}, ErrPersistence, false},
		{"mapping", &MappingError{Reason: "missing productOrderId"}, ErrMapping, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestTypedErrors_KeepCause(t *testing.T) {
	err := &FetchError{Page: 1, Err: context.DeadlineExceeded}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "page 1")

	var authErr *AuthenticationError
	wrapped := errors.Join(errors.New("outer"), &AuthenticationError{Message: "expired"})
	assert.True(t, errors.As(wrapped, &authErr))
	assert.Equal(t, "expired", authErr.Message)
}
