// Package errs defines the error kinds shared by every ledger operation.
//
// Each domain package declares its own coded errors with New; callers classify
// them with errors.Is against the kind sentinels below or with KindOf.
package errs

import (
	"errors"
	"strings"
)

type Kind string

const (
	KindValidation       Kind = "validation_error"
	KindNotFound         Kind = "not_found"
	KindConflict         Kind = "conflict"
	KindInvalidState     Kind = "invalid_state"
	KindOverpayment      Kind = "overpayment"
	KindStoreTimeout     Kind = "store_timeout"
	KindStoreUnavailable Kind = "store_unavailable"
	KindInternal         Kind = "internal_error"
)

// Kind sentinels. A coded error matches the sentinel of its kind.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrOverpayment      = &Error{Kind: KindOverpayment}
	ErrStoreTimeout     = &Error{Kind: KindStoreTimeout}
	ErrStoreUnavailable = &Error{Kind: KindStoreUnavailable}
)

// Error is a classified failure with a machine readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches cause to a copy of e.
func (e *Error) Wrap(cause error) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Err = cause
	return &out
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(message string) *Error {
	if e == nil {
		return nil
	}
	out := *e
	out.Message = strings.TrimSpace(message)
	return &out
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches kind sentinels by kind and coded errors by kind and code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the outermost classified error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return string(e.Kind)
	}
	return string(KindInternal)
}
