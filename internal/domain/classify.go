package domain

import (
	"errors"
	"strings"
)

// FailureClass partitions step failures into those worth retrying and those
// that must fail the step immediately.
type FailureClass int

const (
	FailureTransient FailureClass = iota
	FailurePermanent
)

// ClassifyError maps a dispatch error to a failure class, preferring the
// sentinel taxonomy over message sniffing.
func ClassifyError(err error) FailureClass {
	if err == nil {
		return FailurePermanent
	}
	switch {
	case errors.Is(err, ErrUpstreamRateLimit), errors.Is(err, ErrUpstreamTimeout), errors.Is(err, ErrTransport):
		return FailureTransient
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInternal), errors.Is(err, ErrNotFound):
		return FailurePermanent
	}
	return ClassifyFailure(err.Error())
}

// ClassifyFailure maps an error marker string from a specialist response to a
// failure class. Markers follow the dispatch contract: rate-limit and
// transport/timeout failures are transient; validation and unknown failures
// are permanent.
func ClassifyFailure(msg string) FailureClass {
	s := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case strings.Contains(s, "rate limit"),
		strings.Contains(s, "rate-limit"),
		strings.Contains(s, "throttl"),
		strings.Contains(s, "too many requests"):
		return FailureTransient
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "transport"),
		strings.Contains(s, "connection refused"),
		strings.Contains(s, "connection reset"),
		strings.Contains(s, "unavailable"):
		return FailureTransient
	}
	return FailurePermanent
}

// FailureCode maps a job error message to a stable error code for metrics and
// API responses.
func FailureCode(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	if s == "" {
		return "INTERNAL"
	}
	switch {
	case strings.Contains(s, "rate limit"), strings.Contains(s, "throttl"):
		return "UPSTREAM_RATE_LIMIT"
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return "UPSTREAM_TIMEOUT"
	case strings.Contains(s, "not found"):
		return "NOT_FOUND"
	case strings.Contains(s, "unknown kind"), strings.Contains(s, "invalid argument"):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
