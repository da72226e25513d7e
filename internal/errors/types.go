package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind classifies failures raised while refreshing an account.
type Kind string

const (
	KindChallengeAbandoned Kind = "challenge"
	KindCodeTimeout        Kind = "code_timeout"
	KindCodeFormat         Kind = "code_format"
	KindCodeSource         Kind = "code_source"
	KindNoticeRejected     Kind = "notice"
	KindIncompleteToken    Kind = "incomplete"
	KindTransport          Kind = "transport"
	KindPage               Kind = "page"
	KindCanceled           Kind = "canceled"
	KindUnknown            Kind = "unknown"
)

// Classification is the category of a rejection notice rendered by the login page.
type Classification string

const (
	PasswordError Classification = "password_error"
	Banned        Classification = "banned"
	UnknownNotice Classification = "unknown"
)

// Error is the concrete error carried through login and refresh code.
type Error struct {
	Kind           Kind
	Classification Classification
	Message        string
	Err            error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := string(e.Kind)
	if e.Classification != "" {
		msg += "(" + string(e.Classification) + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the next run may retry the account.
// Only banned notices are terminal.
func (e *Error) Recoverable() bool {
	if e == nil {
		return true
	}
	return !(e.Kind == KindNoticeRejected && e.Classification == Banned)
}

// New builds an Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to err. A nil err yields nil.
func Wrap(kind Kind, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

func ChallengeAbandoned(attempts int) *Error {
	return New(KindChallengeAbandoned, "abandoned after %d attempts", attempts)
}

func CodeTimeout(mode string) *Error {
	return New(KindCodeTimeout, "no verification code from %s before deadline", mode)
}

func CodeFormat(code string) *Error {
	return New(KindCodeFormat, "malformed verification code %q", code)
}

func NoticeRejected(class Classification, notice string) *Error {
	return &Error{Kind: KindNoticeRejected, Classification: class, Message: notice}
}

func IncompleteToken(missing []string) *Error {
	return New(KindIncompleteToken, "missing required tokens %v", missing)
}

func Transport(op string, err error) error {
	return Wrap(KindTransport, err, op)
}

// KindOf extracts the Kind from err, mapping context errors to KindCanceled.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	if stderrors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if IsNetworkError(err) {
		return KindTransport
	}
	return KindUnknown
}

// ClassificationOf returns the notice classification carried by err, if any.
func ClassificationOf(err error) (Classification, bool) {
	var e *Error
	if stderrors.As(err, &e) && e.Kind == KindNoticeRejected {
		return e.Classification, true
	}
	return "", false
}

// Recoverable reports whether err leaves the account eligible for the next run.
func Recoverable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Recoverable()
	}
	return true
}
