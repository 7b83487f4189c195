package completion

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks
var (
	ErrConfiguration  = errors.New("configuration error")
	ErrTransport      = errors.New("transport error")
	ErrMalformedChunk = errors.New("malformed chunk")
)

// ConfigurationError means the client cannot be used as configured,
// typically because the API credential is missing. No request is sent.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// UserMessage returns the text shown to the user
func (e *ConfigurationError) UserMessage() string {
	return e.Message
}

func NewConfigurationError(message string, err error) *ConfigurationError {
	return &ConfigurationError{Message: message, Err: err}
}

// TransportError covers network failures and non-2xx upstream responses.
type TransportError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("transport error [%d] at %s: %s", e.StatusCode, e.Endpoint, msg)
	}
	if e.Endpoint != "" {
		return fmt.Sprintf("transport error at %s: %s", e.Endpoint, msg)
	}
	return fmt.Sprintf("transport error: %s", msg)
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) UserMessage() string {
	if e.StatusCode > 0 {
		if e.Message != "" {
			return fmt.Sprintf("Error connecting to the API (%d): %s", e.StatusCode, e.Message)
		}
		return fmt.Sprintf("Error connecting to the API (%d)", e.StatusCode)
	}
	if e.Message != "" {
		return fmt.Sprintf("Error connecting to the API: %s", e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("Error connecting to the API: %v", e.Err)
	}
	return "Error connecting to the API"
}

// MalformedChunkError marks a data line whose payload is not valid JSON.
// The stream recovers from it and keeps going.
type MalformedChunkError struct {
	Line string
	Err  error
}

func (e *MalformedChunkError) Error() string {
	return fmt.Sprintf("malformed chunk %.80q: %v", e.Line, e.Err)
}

func (e *MalformedChunkError) Is(target error) bool {
	return target == ErrMalformedChunk
}

func (e *MalformedChunkError) Unwrap() error {
	return e.Err
}

// UserMessage renders any error as an inline message for the chat view
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var userErr interface{ UserMessage() string }
	if errors.As(err, &userErr) {
		return userErr.UserMessage()
	}
	return fmt.Sprintf("An error occurred: %v", err)
}
