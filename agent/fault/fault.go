/*
Package fault is the error taxonomy of the agent. Errors are split by who is
to blame: the counterparty (ProtocolError), the sender's rights
(AuthorizationError), or our local infrastructure (InfrastructureError). Every
kind maps to a stable Code which admin callers get in error results.
*/
package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable error code for the admin callers.
type Code string

const (
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeNotFound              Code = "NOT_FOUND"
	CodeConnectionNotReady    Code = "CONNECTION_NOT_READY"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeUnavailable           Code = "UNAVAILABLE"
	CodeDuplicateRegistration Code = "DUPLICATE_REGISTRATION"
	CodeInternal              Code = "INTERNAL_ERROR"
)

// Retry hints of the problem reports.
const (
	RetryNone = "none"
	RetryMe   = "me"
	RetryYou  = "you"
	RetryBoth = "both"
)

// ProtocolError is an error caused by the counterparty's message. These are
// turned to problem reports at the handler boundary.
type ProtocolError struct {
	Code       Code
	Explain    string // human readable text for the problem report
	WhoRetries string
	Err        error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return e.Explain + ": " + e.Err.Error()
	}
	return e.Explain
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Invalid returns protocol error for the invalid request.
func Invalid(format string, a ...any) *ProtocolError {
	return &ProtocolError{
		Code:       CodeInvalidRequest,
		Explain:    fmt.Sprintf(format, a...),
		WhoRetries: RetryNone,
	}
}

// NotFound returns protocol error for the missing target resource.
func NotFound(format string, a ...any) *ProtocolError {
	return &ProtocolError{
		Code:       CodeNotFound,
		Explain:    fmt.Sprintf(format, a...),
		WhoRetries: RetryNone,
	}
}

// Wrap returns protocol error with the explain text and the cause.
func Wrap(code Code, explain string, err error) *ProtocolError {
	return &ProtocolError{
		Code:       code,
		Explain:    explain,
		WhoRetries: RetryNone,
		Err:        err,
	}
}

// ConnectionNotReadyError tells that connection isn't active or static.
type ConnectionNotReadyError struct {
	ConnectionID string
	State        string
}

func (e *ConnectionNotReadyError) Error() string {
	return fmt.Sprintf("connection %s not ready, state: %s", e.ConnectionID, e.State)
}

// AuthorizationError tells that admin only message came outside.
type AuthorizationError struct {
	Type string
}

func (e *AuthorizationError) Error() string {
	return "message type " + e.Type + " is allowed only from local admin"
}

// InfrastructureError is our local failure: storage, wallet or ledger.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *InfrastructureError) Unwrap() error {
	return e.Err
}

// Infra wraps err to InfrastructureError. Nil stays nil and the protocol
// errors are returned as is.
func Infra(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return err
	}
	return &InfrastructureError{Op: op, Err: err}
}

// DuplicateTypeError is returned when message type is registered twice.
type DuplicateTypeError struct {
	Type string
}

func (e *DuplicateTypeError) Error() string {
	return "message type already registered: " + e.Type
}

// AsProtocol returns the counterparty attributable error from the err chain.
// ConnectionNotReadyError is converted to ProtocolError.
func AsProtocol(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	if errors.As(err, &pe) {
		return pe, true
	}
	var nre *ConnectionNotReadyError
	if errors.As(err, &nre) {
		return &ProtocolError{
			Code:       CodeConnectionNotReady,
			Explain:    "Connection invalid.",
			WhoRetries: RetryNone,
			Err:        nre,
		}, true
	}
	return nil, false
}

// CodeOf returns the stable code of the error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var (
		nre *ConnectionNotReadyError
		pe  *ProtocolError
		ae  *AuthorizationError
		ie  *InfrastructureError
		de  *DuplicateTypeError
	)
	switch {
	case errors.As(err, &nre):
		return CodeConnectionNotReady
	case errors.As(err, &pe):
		return pe.Code
	case errors.As(err, &ae):
		return CodeUnauthorized
	case errors.As(err, &ie):
		return CodeUnavailable
	case errors.As(err, &de):
		return CodeDuplicateRegistration
	}
	return CodeInternal
}

// HTTPStatus maps the code to the HTTP status of the admin API.
func HTTPStatus(c Code) int {
	switch c {
	case "":
		return http.StatusOK
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConnectionNotReady:
		return http.StatusConflict
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Detail is the error result for the admin callers.
type Detail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// DetailOf builds the error result from err.
func DetailOf(err error) *Detail {
	if err == nil {
		return nil
	}
	return &Detail{Code: CodeOf(err), Message: err.Error()}
}
