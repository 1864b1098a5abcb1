package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "request", "read", "decode")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FailureKind classifies why a provider call produced no usable series.
type FailureKind string

const (
	// FailureTransport covers connection errors, timeouts and non-200 responses.
	FailureTransport FailureKind = "transport"
	// FailureSoftMiss means the provider answered but without the expected payload key.
	FailureSoftMiss FailureKind = "soft_miss"
	// FailureMalformed means the payload was present but could not be parsed.
	FailureMalformed FailureKind = "malformed"
)

// ProviderError is returned by every gateway call that yields no series.
type ProviderError struct {
	Provider string
	Class    AssetClass
	Symbol   string
	Kind     FailureKind
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s %s %s: %s: %v", e.Provider, e.Class, e.Symbol, e.Kind, e.Err)
}

// IsRetriable reports whether a later call may succeed. Soft misses are
// usually rate limits, so they count as retriable too.
func (e *ProviderError) IsRetriable() bool {
	return e.Kind != FailureMalformed
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// InputError is a malformed request parameter. The transport maps it to a
// client error; it never triggers the synthetic fallback.
type InputError struct {
	Param string
	Value string
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Param, e.Value, e.Err)
}

func (e *InputError) IsRetriable() bool {
	return false
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError wraps one of the input sentinels with the offending parameter.
func NewInputError(param, value string, err error) *InputError {
	return &InputError{Param: param, Value: value, Err: err}
}

// IsInputError reports whether err was caused by a malformed request.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

var (
	// ErrInvalidSymbol is returned when a symbol is not supported or malformed. Not retriable.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidWindow is returned for non-numeric, non-positive or oversized day/hour windows.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrInvalidParam is returned for any other unparsable query parameter
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrMissingPayload is returned when a provider response lacks the expected envelope key
	ErrMissingPayload = errors.New("payload key missing")

	// ErrEmptySeries is returned when a provider answered with zero points
	ErrEmptySeries = errors.New("empty series")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrConnectionClosed is returned when a message targets a closed stream connection
	ErrConnectionClosed = errors.New("connection closed")
)
