package entity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReasonOf(t *testing.T) {
	engineErr := errors.New("opencv: cannot open file")

	assert.Equal(t, ReasonNone, ReasonOf(nil))
	assert.Equal(t, ReasonEngineFailed, ReasonOf(engineErr))
	assert.Equal(t, ReasonTimeout, ReasonOf(fmt.Errorf("detect: %w", context.DeadlineExceeded)))
	assert.Equal(t, ReasonCancelled, ReasonOf(context.Canceled))
	assert.Equal(t, ReasonUnsupportedType, ReasonOf(fmt.Errorf("accept: %w", ErrUnsupportedType)))
	assert.Equal(t, ReasonEngineUnavailable,
		ReasonOf(fmt.Errorf("dispatch: %w", NewDetectionError(ReasonEngineUnavailable, engineErr))))
}

func TestDetectionErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewDetectionError(ReasonEngineFailed, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "engine_failed: boom", err.Error())
	assert.Equal(t, "timeout", NewDetectionError(ReasonTimeout, nil).Error())
}

func TestReasonRetryable(t *testing.T) {
	assert.True(t, ReasonEngineFailed.Retryable())
	assert.True(t, ReasonTimeout.Retryable())
	assert.False(t, ReasonEngineUnavailable.Retryable())
	assert.False(t, ReasonOutputMissing.Retryable())
	assert.False(t, ReasonCancelled.Retryable())
}
