package queue

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of failure recorded on an item.
type ErrorCode string

const (
	CodeMissingRoutingDecision    ErrorCode = "missing-routing-decision"
	CodeMissingOutputPath         ErrorCode = "missing-output-path"
	CodeUnsupportedExtension      ErrorCode = "unsupported-extension" // Warning only; never enqueued.
	CodeProcessorInvocationFailed ErrorCode = "processor-invocation-failed"
	CodeHandlerException          ErrorCode = "handler-exception"
	CodeMaxAttemptsExceeded       ErrorCode = "max-attempts-exceeded"
	CodeOutputCollision           ErrorCode = "output-collision"
)

// Sentinel errors returned by queue operations.
var (
	ErrClosed            = errors.New("queue is closed")
	ErrAlreadySubmitted  = errors.New("item already submitted")
	ErrInvalidTransition = errors.New("invalid item state transition")
)

// ErrorRecord is the failure attached to an item. Recoverable records are
// eligible for retry while attempts remain; anything else is terminal on
// first occurrence.
type ErrorRecord struct {
	Code        ErrorCode         `json:"code"`
	Message     string            `json:"message"`
	Recoverable bool              `json:"recoverable"`
	Context     map[string]string `json:"context,omitempty"`
}

// NewError builds an ErrorRecord.
func NewError(code ErrorCode, message string, recoverable bool) *ErrorRecord {
	return &ErrorRecord{Code: code, Message: message, Recoverable: recoverable}
}

// Errorf builds a non-recoverable ErrorRecord with a formatted message.
func Errorf(code ErrorCode, format string, args ...interface{}) *ErrorRecord {
	return NewError(code, fmt.Sprintf(format, args...), false)
}

// With returns the record with key=value added to its context.
func (e *ErrorRecord) With(key, value string) *ErrorRecord {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func (e *ErrorRecord) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}
