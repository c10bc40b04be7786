// Package apierr classifies failures of the generation path into the small
// set of kinds the UI knows how to render.
package apierr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/psu6810110402/gemini-foundry/pkg/types"
)

// Kind is the class of a failure.
type Kind string

const (
	RateLimited                Kind = "rate_limited"
	TransientGenerationFailure Kind = "transient_generation_failure"
	MalformedStructuredOutput  Kind = "malformed_structured_output"
	SafetyRejection            Kind = "safety_rejection"
	AuthenticationFailure      Kind = "authentication_failure"
	StreamInterrupted          Kind = "stream_interrupted"
	BadRequest                 Kind = "bad_request"
	Unauthorized               Kind = "unauthorized"
	Forbidden                  Kind = "forbidden"
	NotFound                   Kind = "not_found"
	Internal                   Kind = "internal"
)

// Known reports whether k is one of the kinds above.
func (k Kind) Known() bool {
	switch k {
	case RateLimited, TransientGenerationFailure, MalformedStructuredOutput, SafetyRejection,
		AuthenticationFailure, StreamInterrupted, BadRequest, Unauthorized, Forbidden, NotFound, Internal:
		return true
	}
	return false
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	// RetryAfter is set for RateLimited errors when the wait is known.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrRateLimited       = &Error{Kind: RateLimited}
	ErrTransient         = &Error{Kind: TransientGenerationFailure}
	ErrMalformed         = &Error{Kind: MalformedStructuredOutput}
	ErrSafety            = &Error{Kind: SafetyRejection}
	ErrAuthentication    = &Error{Kind: AuthenticationFailure}
	ErrStreamInterrupted = &Error{Kind: StreamInterrupted}
)

// New builds a classified error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Classify returns err as an *Error, inferring the kind for unclassified errors.
// It returns nil for a nil error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return &Error{Kind: MalformedStructuredOutput, Err: err}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TransientGenerationFailure, Message: "request cancelled", Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Kind: TransientGenerationFailure, Err: err}
	}
	return &Error{Kind: Internal, Err: err}
}

// KindOf returns the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if e := Classify(err); e != nil {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether the structured generation path should try again.
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	switch KindOf(err) {
	case RateLimited, TransientGenerationFailure, MalformedStructuredOutput:
		return true
	}
	return false
}

// FromStatus maps an HTTP status of a generation call to a classified error.
// Prefer FromResponse when the body names a kind.
func FromStatus(status int, msg string) *Error {
	return &Error{Kind: KindForStatus(status), Message: msg}
}

// FromResponse classifies an error response. A known kind reported by the
// server wins over the one inferred from status.
func FromResponse(status int, kind Kind, msg string) *Error {
	e := FromStatus(status, msg)
	if kind.Known() {
		e.Kind = kind
	}
	return e
}

// KindForStatus maps an HTTP status code to a kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status == http.StatusUnauthorized:
		return Unauthorized
	case status == http.StatusForbidden:
		return Forbidden
	case status == http.StatusNotFound:
		return NotFound
	case status == http.StatusBadGateway:
		return MalformedStructuredOutput
	case status == http.StatusUnprocessableEntity:
		return SafetyRejection
	case status == http.StatusBadRequest:
		return BadRequest
	case status >= 500:
		return TransientGenerationFailure
	default:
		return Internal
	}
}

// HTTPStatus returns the status code the server answers for kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case RateLimited:
		return http.StatusTooManyRequests
	case MalformedStructuredOutput:
		return http.StatusBadGateway
	case SafetyRejection:
		return http.StatusUnprocessableEntity
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case TransientGenerationFailure, StreamInterrupted:
		return http.StatusServiceUnavailable
	case AuthenticationFailure:
		// The caller cannot fix a bad provider key; the kind travels in the body.
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the single message shown to the user for err.
func UserMessage(err error) string {
	e := Classify(err)
	if e == nil {
		return ""
	}
	switch e.Kind {
	case RateLimited:
		if secs := int((e.RetryAfter + time.Second - 1) / time.Second); secs > 0 {
			return fmt.Sprintf("Rate limit exceeded. Please wait %d seconds and try again.", secs)
		}
		return "Rate limit exceeded. Please wait a minute and try again."
	case SafetyRejection:
		return "Response blocked by AI Safety Filter. Try rephrasing your input."
	case AuthenticationFailure:
		return "Invalid API Key. Please check your model provider configuration."
	case MalformedStructuredOutput:
		return "Invalid response format from AI"
	case StreamInterrupted:
		return "The response was interrupted. Please try again."
	case TransientGenerationFailure:
		return "AI generation failed. Please try again."
	case BadRequest, NotFound, Unauthorized, Forbidden:
		if e.Message != "" {
			return e.Message
		}
		return string(e.Kind)
	default:
		return "Something went wrong. Please try again."
	}
}
