// Package errors provides the error taxonomy shared by the chat client, the
// conversation store and the relay.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrRemote           = errors.New("remote chat request failed")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidResponse  = errors.New("invalid response format")
	ErrNoContent        = errors.New("no content in response")

	// ErrBusy is returned when a send or regeneration is already in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrBlocked is returned when a send is attempted before the current error was dismissed.
	ErrBlocked = errors.New("dismiss the current error before sending")
)

// StoreUnavailableError represents a persistence store that could not be
// opened, read or written.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store unavailable during %s", e.Op)
	}
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error {
	return e.Err
}

// Is allows comparison with sentinel errors
func (e *StoreUnavailableError) Is(target error) bool {
	if target == ErrStoreUnavailable {
		return true
	}
	_, ok := target.(*StoreUnavailableError)
	return ok
}

// NewStoreUnavailableError creates a new StoreUnavailableError
func NewStoreUnavailableError(op string, err error) *StoreUnavailableError {
	return &StoreUnavailableError{Op: op, Err: err}
}

// RemoteError represents a failed exchange with the relay or the upstream
// chat API. Message is always human readable and is what ends up in the
// transcript.
type RemoteError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Is allows comparison with sentinel errors
func (e *RemoteError) Is(target error) bool {
	if target == ErrRemote {
		return true
	}
	_, ok := target.(*RemoteError)
	return ok
}

// NewRemoteError creates a new RemoteError for a non-success HTTP status
func NewRemoteError(statusCode int, endpoint, message string) *RemoteError {
	return &RemoteError{
		StatusCode: statusCode,
		Endpoint:   endpoint,
		Message:    message,
	}
}

// NewNetworkError creates a RemoteError for a transport-level failure
func NewNetworkError(endpoint string, err error) *RemoteError {
	return &RemoteError{
		Endpoint: endpoint,
		Message:  err.Error(),
		Err:      err,
	}
}

// NewMalformedResponseError creates a RemoteError for an unusable success body
func NewMalformedResponseError(endpoint, message string) *RemoteError {
	return &RemoteError{
		Endpoint: endpoint,
		Message:  message,
		Err:      ErrInvalidResponse,
	}
}

// ValidationError represents input rejected before any network call
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Is allows comparison with sentinel errors
func (e *ValidationError) Is(target error) bool {
	if target == ErrValidation {
		return true
	}
	_, ok := target.(*ValidationError)
	return ok
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsStoreUnavailable reports whether err is a store failure
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsRemoteError reports whether err is a remote chat failure
func IsRemoteError(err error) bool {
	return errors.Is(err, ErrRemote)
}

// IsValidationError reports whether err is a validation failure
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// UserMessage returns the text shown to the user for err. For remote errors
// this is the extracted server message without any wrapping prefix.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}
	return err.Error()
}
