// Package apperr is the typed error taxonomy shared by the allocation
// workflow. Routes map kinds to HTTP statuses; services never return raw
// gorm errors to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindForbidden
	KindNotFound
	KindInvalidTransition
	KindAggregationInconsistency
)

// Error codes surfaced to clients alongside the message.
const (
	CodeCompanyNotApproved = "COMPANY_NOT_APPROVED"
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeNoRelationship     = "NO_APPROVED_RELATIONSHIP"
	CodeAllocationExists   = "ALLOCATION_EXISTS"
)

type Error struct {
	Kind Kind
	Code string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(code, format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Code: code, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(what string) error {
	return &Error{Kind: KindNotFound, Msg: what + " not found"}
}

// InvalidTransition names the current status so clients can correct the UI.
func InvalidTransition(current, attempted string) error {
	return &Error{
		Kind: KindInvalidTransition,
		Msg:  fmt.Sprintf("invalid transition to %s from status %s", attempted, current),
	}
}

// AggregationInconsistency marks a scope3 target that could not be located or
// locked. Fatal for the surrounding transaction.
func AggregationInconsistency(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindAggregationInconsistency, Msg: fmt.Sprintf(format, args...), Err: err}
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
