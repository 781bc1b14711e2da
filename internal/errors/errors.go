package errors

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
)

// AppError is an application error carrying a stable id, a gRPC code and an optional cause.
type AppError struct {
	Id      string
	Message string
	code    codes.Code
	cause   error
}

type Option func(*AppError)

func WithID(id string) Option {
	return func(e *AppError) { e.Id = id }
}

func WithCause(err error) Option {
	return func(e *AppError) { e.cause = err }
}

func WithCode(code codes.Code) Option {
	return func(e *AppError) { e.code = code }
}

// New creates an error with codes.Unknown unless overridden by WithCode.
func New(message string, opts ...Option) *AppError {
	e := &AppError{Message: message, code: codes.Unknown}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func Internal(message string, opts ...Option) *AppError {
	return New(message, append([]Option{WithCode(codes.Internal)}, opts...)...)
}

func InvalidArgument(message string, opts ...Option) *AppError {
	return New(message, append([]Option{WithCode(codes.InvalidArgument)}, opts...)...)
}

func Unavailable(message string, opts ...Option) *AppError {
	return New(message, append([]Option{WithCode(codes.Unavailable)}, opts...)...)
}

func (e *AppError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.cause.Error())
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.cause }

func (e *AppError) Code() codes.Code { return e.code }

// Code returns the gRPC code of the first AppError in the chain, codes.Unknown otherwise.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.code
	}
	return codes.Unknown
}

// Details renders the whole chain as "[id] message <- [id] message <- cause".
func Details(err error) string {
	var parts []string
	for err != nil {
		var appErr *AppError
		if ae, ok := err.(*AppError); ok {
			appErr = ae
		}
		if appErr == nil {
			parts = append(parts, err.Error())
			break
		}
		if appErr.Id != "" {
			parts = append(parts, fmt.Sprintf("[%s] %s", appErr.Id, appErr.Message))
		} else {
			parts = append(parts, appErr.Message)
		}
		err = appErr.cause
	}
	return strings.Join(parts, " <- ")
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func Join(errs ...error) error { return errors.Join(errs...) }
