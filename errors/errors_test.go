package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gocqrs/eventing"
)

func TestUserError(t *testing.T) {
	err := NewUserError("funds not available")
	assert.True(t, IsUserError(err))
	assert.False(t, IsTechnical(err))
	assert.Equal(t, "[USER_ERROR] funds not available", err.Error())
	assert.True(t, stdErrors.Is(err, ErrUserError))

	payload := UserPayload(err)
	require.NotNil(t, payload)
	assert.Equal(t, "funds not available", payload.Message)

	coded := NewUserErrorWithCode("E42", "check invalid", map[string]string{"check": "1170"})
	payload = UserPayload(coded)
	assert.Equal(t, "E42", payload.Code)
	assert.Equal(t, "1170", payload.Params["check"])

	assert.Nil(t, UserPayload(NewTechnicalError("db down", nil)))
}

func TestWrapUserError(t *testing.T) {
	plain := stdErrors.New("insufficient funds")
	wrapped := WrapUserError(plain)
	assert.True(t, IsUserError(wrapped))
	assert.True(t, stdErrors.Is(wrapped, plain))
	assert.Equal(t, "insufficient funds", UserPayload(wrapped).Message)

	// 已分类的错误保持原错误码
	technical := NewTechnicalError("db down", plain)
	assert.Equal(t, ErrCodeTechnical, GetErrorCode(WrapUserError(technical)))

	assert.Nil(t, WrapUserError(nil))
}

func TestNormalize(t *testing.T) {
	assert.Nil(t, Normalize(nil))

	conflict := eventing.NewConcurrencyError("Account", "a1", 0, 1)
	err := Normalize(fmt.Errorf("commit: %w", conflict))
	assert.True(t, IsConcurrency(err))
	var target *eventing.ConcurrencyError
	require.True(t, stdErrors.As(err, &target))
	assert.Equal(t, uint64(1), target.ActualSequence)

	limit := &eventing.BatchLimitError{Limit: "events per commit", Max: 25, Actual: 26}
	assert.True(t, IsValidation(Normalize(limit)))

	storeErr := eventing.NewStoreError(eventing.ErrCodeDeserializePayload, "bad payload", nil)
	err = Normalize(storeErr)
	assert.True(t, IsTechnical(err))
	assert.Contains(t, err.Error(), "bad payload")

	assert.True(t, IsTechnical(Normalize(stdErrors.New("socket closed"))))

	user := NewUserError("nope")
	assert.Same(t, user, Normalize(user))
}

func TestValidationAndDetails(t *testing.T) {
	err := NewValidationError("aggregate id %q is invalid", "")
	assert.True(t, IsValidation(err))
	assert.Equal(t, `aggregate id "" is invalid`, err.Message())
	assert.NotEmpty(t, err.Stack())

	detailed := err.WithDetails(map[string]any{"field": "aggregate_id"})
	assert.Equal(t, "aggregate_id", detailed.Details()["field"])
	assert.Empty(t, err.Details())
}

func TestErrorCodeHelpers(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetErrorCode(nil))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(stdErrors.New("plain")))
	assert.False(t, IsErrorCode(nil, ErrCodeTechnical))

	wrapped := fmt.Errorf("outer: %w", NewConcurrencyError("conflict", nil))
	assert.True(t, IsConcurrency(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrCodeConcurrency))
	assert.False(t, IsNotFound(wrapped))
}

func TestWrap(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Wrap(ctx, nil, ErrCodeTechnical, "x"))
	assert.Nil(t, WrapWithLog(ctx, nil, ErrCodeTechnical, "x"))

	cause := stdErrors.New("boom")
	err := Wrap(ctx, cause, ErrCodeTechnical, "load failed")
	assert.True(t, IsTechnical(err))
	assert.True(t, stdErrors.Is(err, cause))

	err = WrapWithLog(ctx, cause, ErrCodeValidation, "hook failed")
	assert.True(t, IsValidation(err))
}
