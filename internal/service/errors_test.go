package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors(t *testing.T) {
	sentinels := []error{ErrJobNotFound, ErrJobConflict, ErrInvalidJobRequest, ErrEngineUnavailable}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.False(t, errors.Is(a, b), "%v should not match %v", a, b)
		}
	}
}

func TestJobServiceError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *JobServiceError
		expected string
	}{
		{
			name: "with underlying error",
			err: &JobServiceError{
				Operation: "submit_job",
				Message:   "failed to start job",
				Err:       errors.New("pool closed"),
			},
			expected: "job service submit_job failed: failed to start job: pool closed",
		},
		{
			name: "without underlying error",
			err: &JobServiceError{
				Operation: "create_service",
				Message:   "engine cannot be nil",
			},
			expected: "job service create_service failed: engine cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNewJobServiceError(t *testing.T) {
	inner := errors.New("boom")

	tests := []struct {
		name         string
		err          error
		expectedErr  error
		expectedType bool
	}{
		{name: "nil error", err: nil, expectedErr: nil},
		{name: "not found sentinel", err: fmt.Errorf("lookup: %w", ErrJobNotFound), expectedErr: ErrJobNotFound},
		{name: "conflict sentinel", err: ErrJobConflict, expectedErr: ErrJobConflict},
		{name: "other error is wrapped", err: inner, expectedType: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewJobServiceError("op", "message", tt.err)

			if !tt.expectedType {
				assert.Equal(t, tt.expectedErr, got)
				return
			}

			var serviceErr *JobServiceError
			assert.True(t, errors.As(got, &serviceErr))
			assert.Equal(t, "op", serviceErr.Operation)
			assert.ErrorIs(t, got, inner)
		})
	}
}
