// Package httperr defines the error taxonomy shared by API handlers and
// stores. Every error that reaches a route boundary maps to exactly one of
// these kinds; the responder turns the kind into an HTTP status and a JSON
// envelope.
package httperr

import (
	"errors"
	"net/http"
	"strings"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(msg string) error { return &BadRequestError{msg: msg} }

func IsBadRequest(err error) bool {
	_, ok := errors.AsType[*BadRequestError](err)
	return ok
}

type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

func NewNotFound(msg string) error { return &NotFoundError{msg: msg} }

func IsNotFound(err error) bool {
	_, ok := errors.AsType[*NotFoundError](err)
	return ok
}

type UnauthenticatedError struct {
	msg string
}

func (e *UnauthenticatedError) Error() string { return e.msg }

func NewUnauthenticated(msg string) error { return &UnauthenticatedError{msg: msg} }

func IsUnauthenticated(err error) bool {
	_, ok := errors.AsType[*UnauthenticatedError](err)
	return ok
}

type ForbiddenError struct {
	msg string
}

func (e *ForbiddenError) Error() string { return e.msg }

func NewForbidden(msg string) error { return &ForbiddenError{msg: msg} }

func IsForbidden(err error) bool {
	_, ok := errors.AsType[*ForbiddenError](err)
	return ok
}

// MissingOrganizationError is a distinct kind rather than a ForbiddenError
// so callers can tell "your role may never do this" apart from "you have no
// organization membership".
type MissingOrganizationError struct {
	msg string
}

func (e *MissingOrganizationError) Error() string { return e.msg }

func NewMissingOrganization(msg string) error { return &MissingOrganizationError{msg: msg} }

func IsMissingOrganization(err error) bool {
	_, ok := errors.AsType[*MissingOrganizationError](err)
	return ok
}

// BackendUnavailableError covers misconfigured or unreachable external
// collaborators (database, auth service). The original message is kept for
// logs; responders must emit a generic message to callers.
type BackendUnavailableError struct {
	msg string
}

func (e *BackendUnavailableError) Error() string { return e.msg }

func NewBackendUnavailable(msg string) error { return &BackendUnavailableError{msg: msg} }

func IsBackendUnavailable(err error) bool {
	_, ok := errors.AsType[*BackendUnavailableError](err)
	return ok
}

// ValidationError aggregates all field failures of one request. A request
// either passes validation completely or is rejected with every failing
// field listed; it is never partially applied.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Reason)
	}
	return strings.Join(parts, ", ")
}

func NewValidation(fields ...FieldError) error {
	return &ValidationError{Fields: fields}
}

func IsValidation(err error) bool {
	_, ok := errors.AsType[*ValidationError](err)
	return ok
}

// Status maps an error to its HTTP status code. Unknown errors map to 500.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err), IsBadRequest(err):
		return http.StatusBadRequest
	case IsUnauthenticated(err):
		return http.StatusUnauthorized
	case IsForbidden(err), IsMissingOrganization(err):
		return http.StatusForbidden
	case IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code for an error kind.
func Code(err error) string {
	switch {
	case IsValidation(err):
		return "validation_failed"
	case IsBadRequest(err):
		return "bad_request"
	case IsUnauthenticated(err):
		return "unauthorized"
	case IsMissingOrganization(err):
		return "missing_organization"
	case IsForbidden(err):
		return "forbidden"
	case IsNotFound(err):
		return "not_found"
	case IsBackendUnavailable(err):
		return "backend_unavailable"
	default:
		return "internal_error"
	}
}
