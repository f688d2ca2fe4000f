package entity

import (
	"context"
	"errors"
	"fmt"
)

type DetectionOutcome string

const (
	OutcomeSucceeded DetectionOutcome = "SUCCEEDED"
	OutcomeFailed    DetectionOutcome = "FAILED"
	OutcomeNoOutput  DetectionOutcome = "NO_OUTPUT"
)

type ReasonCode string

const (
	ReasonNone              ReasonCode = ""
	ReasonEngineFailed      ReasonCode = "engine_failed"
	ReasonEngineUnavailable ReasonCode = "engine_unavailable"
	ReasonTimeout           ReasonCode = "timeout"
	ReasonCancelled         ReasonCode = "cancelled"
	ReasonInputUnreadable   ReasonCode = "input_unreadable"
	ReasonOutputMissing     ReasonCode = "output_missing"
	ReasonOutputEmpty       ReasonCode = "output_empty"
	ReasonUnsupportedType   ReasonCode = "unsupported_type"
	ReasonInternal          ReasonCode = "internal"
)

// Retryable reports whether running the same input again may succeed.
func (r ReasonCode) Retryable() bool {
	switch r {
	case ReasonEngineFailed, ReasonTimeout, ReasonInternal:
		return true
	}
	return false
}

// DetectionResult is what the engine boundary reports for one run.
type DetectionResult struct {
	Outcome    DetectionOutcome `json:"outcome"`
	Reason     ReasonCode       `json:"reason,omitempty"`
	Message    string           `json:"message,omitempty"`
	OutputSize int64            `json:"output_size,omitempty"`
}

func (r DetectionResult) Succeeded() bool {
	return r.Outcome == OutcomeSucceeded
}

// DetectionError is an engine failure tagged with a reason code.
type DetectionError struct {
	Code ReasonCode
	Err  error
}

func NewDetectionError(code ReasonCode, err error) *DetectionError {
	return &DetectionError{Code: code, Err: err}
}

func (e *DetectionError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *DetectionError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the reason code from err. Context errors map to timeout/cancelled,
// anything unrecognised maps to engine_failed.
func ReasonOf(err error) ReasonCode {
	if err == nil {
		return ReasonNone
	}
	var de *DetectionError
	if errors.As(err, &de) {
		return de.Code
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	case errors.Is(err, ErrUnsupportedType):
		return ReasonUnsupportedType
	}
	return ReasonEngineFailed
}
