// Package ssoerr defines ssoctl's error taxonomy. Every member maps to a
// process exit code, letting cmd/ turn any returned error into the right
// os.Exit without re-deriving the mapping at each call site.
package ssoerr

import "fmt"

// Exit codes, matching the credential-process protocol and CLI contract:
// 0 success; 1 auth needed or configuration not found; 2 invalid config;
// 3 auth-dispatch failure; 4 downstream service error; 5 other.
const (
	ExitSuccess           = 0
	ExitAuthNeeded        = 1
	ExitInvalidConfig     = 2
	ExitAuthDispatch      = 3
	ExitDownstreamService = 4
	ExitOther             = 5
)

// Kind names one of the taxonomy members.
type Kind string

const (
	KindAuthenticationNeeded  Kind = "AuthenticationNeeded"
	KindPendingAuthExpired    Kind = "PendingAuthorizationExpired"
	KindUnauthorizedSSOToken  Kind = "UnauthorizedSSOToken"
	KindInvalidSSOConfig      Kind = "InvalidSSOConfig"
	KindConfigProfileError    Kind = "ConfigProfileError"
	KindConfigSessionError    Kind = "ConfigSessionError"
	KindInlineSessionError    Kind = "InlineSessionError"
	KindMismatchedSession     Kind = "MismatchedSessionError"
	KindLookupError           Kind = "LookupError"
	KindAuthDispatchError     Kind = "AuthDispatchError"
	KindFormatError           Kind = "FormatError"
	KindServiceError          Kind = "ServiceError"
)

var exitCodes = map[Kind]int{
	KindAuthenticationNeeded: ExitAuthNeeded,
	KindPendingAuthExpired:   ExitAuthNeeded,
	KindUnauthorizedSSOToken: ExitAuthNeeded,
	KindInvalidSSOConfig:     ExitInvalidConfig,
	KindConfigProfileError:   ExitAuthNeeded,
	KindConfigSessionError:   ExitAuthNeeded,
	KindInlineSessionError:   ExitInvalidConfig,
	KindMismatchedSession:    ExitInvalidConfig,
	KindLookupError:          ExitDownstreamService,
	KindAuthDispatchError:    ExitAuthDispatch,
	KindFormatError:          ExitInvalidConfig,
	KindServiceError:         ExitDownstreamService,
}

// Error is a taxonomized ssoctl error: a Kind, a human message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// ExitCode reports the process exit code this error's Kind maps to, or
// ExitOther if the Kind is unrecognized.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Kind]; ok {
		return code
	}
	return ExitOther
}

// New builds a taxonomized error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a taxonomized error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ExitCodeFor returns the exit code for any error: ssoerr.Error members use
// their own mapping; anything else is ExitOther.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var se *Error
	if ok := asSSOErr(err, &se); ok {
		return se.ExitCode()
	}
	return ExitOther
}

func asSSOErr(err error, target **Error) bool {
	for err != nil {
		if se, ok := err.(*Error); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
