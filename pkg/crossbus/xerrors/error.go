// Package xerrors implements CrossBus's single uniform error type: a coded,
// retryable, cause-chaining error that is the only kind of error allowed to
// cross the bus's public API.
package xerrors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// Error is the one error type crossing the CrossBus public API.
type Error struct {
	Code        Code
	Message     string
	Details     map[string]interface{}
	Retryable   bool
	Remediation string
	Cause       error
	Timestamp   time.Time
}

// From builds an Error from a code and optional details, applying the
// code's default message/retryable/remediation.
func From(code Code, details map[string]interface{}) *Error {
	d := lookup(code)
	return &Error{
		Code:        code,
		Message:     d.message,
		Details:     details,
		Retryable:   d.retryable,
		Remediation: d.remediation,
		Timestamp:   time.Now(),
	}
}

// Wrap builds an Error around a cause, preserving the cause chain the way
// github.com/pkg/errors.Wrap does, while still carrying a closed-enum code.
func Wrap(code Code, cause error, details map[string]interface{}) *Error {
	e := From(code, details)
	if cause != nil {
		e.Cause = errors.Wrap(cause, e.Message)
	}
	return e
}

// WithRetryable overrides the default retryability for this one instance.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithMessage overrides the default human message for this one instance.
func (e *Error) WithMessage(message string) *Error {
	e.Message = message
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap lets errors.Is/errors.As from both the standard library and
// github.com/pkg/errors see through the cause chain.
func (e *Error) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return errors.Cause(e.Cause)
}

// jsonRecord is the JSON-safe shape an Error serializes to.
type jsonRecord struct {
	Code        Code                   `json:"code"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Retryable   bool                   `json:"retryable"`
	Remediation string                 `json:"remediation,omitempty"`
	Cause       string                 `json:"cause,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

func (e *Error) MarshalJSON() ([]byte, error) {
	rec := jsonRecord{
		Code:        e.Code,
		Message:     e.Message,
		Details:     e.Details,
		Retryable:   e.Retryable,
		Remediation: e.Remediation,
		Timestamp:   e.Timestamp,
	}
	if e.Cause != nil {
		rec.Cause = e.Cause.Error()
	}
	return json.Marshal(rec)
}

// Is reports whether target is an *Error with the same Code, letting
// errors.Is(err, xerrors.From(CodeDestroyed, nil)) work for callers that
// only care about the code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return other.Code == e.Code
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Code == code
}
