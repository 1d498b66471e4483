package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeAborted            = Code(codes.Aborted)
	CodeInternal           = Code(codes.Internal)
	CodeUnauthenticated    = Code(codes.Unauthenticated)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeAborted:            http.StatusConflict,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnauthenticated:    http.StatusUnauthorized,
}

// Reason identifies the domain failure behind an Error, so callers can render
// their own text without matching on messages.
type Reason string

const (
	ReasonNoActiveSession    Reason = "NO_ACTIVE_SESSION"
	ReasonArchiveNotFound    Reason = "ARCHIVE_NOT_FOUND"
	ReasonDuplicateTeamName  Reason = "DUPLICATE_TEAM_NAME"
	ReasonAlreadySubmitted   Reason = "ALREADY_SUBMITTED"
	ReasonInvalidScore       Reason = "INVALID_SCORE"
	ReasonTeamNotFound       Reason = "TEAM_NOT_FOUND"
	ReasonVenueNotFound      Reason = "VENUE_NOT_FOUND"
	ReasonTransactionFailure Reason = "TRANSACTION_FAILURE"
	ReasonInvalidArgument    Reason = "INVALID_ARGUMENT"
	ReasonUnauthenticated    Reason = "UNAUTHENTICATED"
)

var reason2code = map[Reason]Code{
	ReasonNoActiveSession:    CodeFailedPrecondition,
	ReasonArchiveNotFound:    CodeNotFound,
	ReasonDuplicateTeamName:  CodeAlreadyExists,
	ReasonAlreadySubmitted:   CodeAlreadyExists,
	ReasonInvalidScore:       CodeInvalidArgument,
	ReasonTeamNotFound:       CodeNotFound,
	ReasonVenueNotFound:      CodeNotFound,
	ReasonTransactionFailure: CodeAborted,
	ReasonInvalidArgument:    CodeInvalidArgument,
	ReasonUnauthenticated:    CodeUnauthenticated,
}

type Error struct {
	Code    Code   `json:"code"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

// Newf builds an error for a domain reason, deriving the code from it.
func Newf(r Reason, format string, args ...any) *Error {
	c, ok := reason2code[r]
	if !ok {
		c = CodeInternal
	}

	return New(c, WithReason(r), WithMessagef(format, args...))
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// Is reports whether err carries the given domain reason.
func Is(err error, r Reason) bool {
	var e *Error
	return errors.As(err, &e) && e.Reason == r
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

// TransactionFailure reports a store-level failure that rolled back a unit of work.
func TransactionFailure(err error) *Error {
	return New(CodeAborted,
		WithReason(ReasonTransactionFailure),
		WithMessagef("transaction failed: %v", err),
		WithCause(err),
	)
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(r Reason) Option {
	return optionFunc(func(e *Error) {
		e.Reason = r
	})
}
