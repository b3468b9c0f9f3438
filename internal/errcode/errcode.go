// Package errcode carries the stable, caller-facing error taxonomy. Callers
// branch on Code; Message is free text for humans and never load-bearing.
package errcode

import (
	"errors"
	"fmt"
)

// Identity / tenant codes.
const (
	ActorRequired                             = "ActorRequired"
	InvalidActorNullUuid                      = "InvalidActorNullUuid"
	ActorEntityNotFound                       = "ActorEntityNotFound"
	ActorNotMember                            = "ActorNotMember"
	OrganizationRequired                      = "OrganizationRequired"
	OrganizationEntityNotFound                = "OrganizationEntityNotFound"
	CrossOrgReferenceDenied                   = "CrossOrgReferenceDenied"
	BusinessOperationsNotAllowedInPlatformOrg = "BusinessOperationsNotAllowedInPlatformOrg"
)

// Data integrity codes.
const (
	InvalidSmartCode         = "InvalidSmartCode"
	DuplicateTransactionCode = "DuplicateTransactionCode"
	NoCurrentStatus          = "NoCurrentStatus"
	IllegalTransition        = "IllegalTransition"
	ConcurrentTransition     = "ConcurrentTransition"
	RelationshipCycle        = "RelationshipCycle"
)

// Shape / validation codes.
const (
	MissingRequiredField = "MissingRequiredField"
	TypeMismatch         = "TypeMismatch"
)

// Transport-level codes.
const (
	InvalidRequest = "InvalidRequest"
	NotFound       = "NotFound"
	InternalError  = "InternalError"
)

// Error is a coded error. Code is one of the constants above and is the only
// field callers should branch on.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches two coded errors by Code, so errors.Is works against sentinels
// built with New.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// New builds a coded error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error, or InternalError when it is not a
// coded error.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// Retryable reports whether the caller may safely retry the failed action.
func Retryable(err error) bool {
	return CodeOf(err) == ConcurrentTransition
}
