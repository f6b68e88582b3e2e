// Package apperr classifies errors so the HTTP layer can pick a status code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig covers missing provider, recipient, number or permissions.
	KindConfig
	// KindRemote is a non-2xx answer or transport failure from the Cloud API.
	KindRemote
	// KindPayload is a webhook body that cannot be decoded.
	KindPayload
	// KindValidation blocks persistence of an invalid record.
	KindValidation
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindRemote:
		return "remote"
	case KindPayload:
		return "payload"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return e.Kind.String() + " error"
}

func (e *Error) Unwrap() error { return e.Err }

func Config(format string, args ...interface{}) error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Payload(format string, args ...interface{}) error {
	return &Error{Kind: KindPayload, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Remote wraps a Cloud API failure. body is kept verbatim for the operator.
func Remote(status int, body string, err error) error {
	msg := fmt.Sprintf("WhatsApp API error: %d - %s", status, body)
	if status == 0 {
		msg = "WhatsApp API request failed"
	}
	return &Error{Kind: KindRemote, Msg: msg, Err: err}
}

// Wrap classifies err as kind with msg as context. Nil stays nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
