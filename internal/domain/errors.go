package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrWSDisconnect = errors.New("websocket disconnected")
	ErrLockHeld     = errors.New("lock already held")
)

// ValidationError reports bad caller input. It is always raised before any
// network or storage call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// Invalid is shorthand for constructing a *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UpstreamError is returned when the exchange answers with a non-success
// status. Body holds the raw response.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream: %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is maps well-known statuses onto the package sentinels.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == 404
	case ErrUnauthorized:
		return e.StatusCode == 401 || e.StatusCode == 403
	case ErrRateLimited:
		return e.StatusCode == 429
	}
	return false
}

// TransportError wraps a network or timeout failure talking to the exchange.
// The request may or may not have reached the exchange.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports a response body that does not match the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode: %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// CorruptRecordError reports a stored record that failed strict decoding.
type CorruptRecordError struct {
	Key       string
	Attribute string
	Reason    string
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("corrupt record %s: attribute %q: %s", e.Key, e.Attribute, e.Reason)
}

// PartialExecutionError is returned when the exchange accepted an order but a
// later step (usually persistence) failed. The money-moving side effect has
// happened.
type PartialExecutionError struct {
	OrderID         string
	ExchangeOrderID string
	Stage           string
	Err             error
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial execution: order %s (exchange %s) failed at %s: %v",
		e.OrderID, e.ExchangeOrderID, e.Stage, e.Err)
}

func (e *PartialExecutionError) Unwrap() error { return e.Err }

// SideEffectPossible reports whether err leaves open the possibility that the
// exchange acted on the request. Validation failures, upstream rejections and
// rate-limit denials happen before any side effect and return false.
func SideEffectPossible(err error) bool {
	if err == nil {
		return false
	}
	var partial *PartialExecutionError
	if errors.As(err, &partial) {
		return true
	}
	var transport *TransportError
	if errors.As(err, &transport) {
		return true
	}
	var decode *DecodeError
	// A 2xx body we could not read still means the exchange took the request.
	return errors.As(err, &decode)
}
