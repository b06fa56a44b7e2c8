// Package apperr classifies upstream failures into the small set of error kinds
// the gateway exposes to clients.
package apperr

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind is a caller-visible error category.
type Kind int

const (
	Internal Kind = iota
	InvalidInput
	InvalidArgument
	Unauthenticated
	QuotaExceeded
	ServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidInput:
		return "invalid_input"
	case InvalidArgument:
		return "invalid_argument"
	case Unauthenticated:
		return "unauthenticated"
	case QuotaExceeded:
		return "quota_exceeded"
	case ServiceUnavailable:
		return "service_unavailable"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case InvalidInput, InvalidArgument:
		return http.StatusBadRequest
	case Unauthenticated:
		return http.StatusUnauthorized
	case QuotaExceeded:
		return http.StatusTooManyRequests
	case ServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the sanitized text shown to end users.
func (k Kind) UserMessage() string {
	switch k {
	case InvalidInput, InvalidArgument:
		return "Invalid request. Please check your input."
	case Unauthenticated:
		return "Authentication failed. Please check your credentials."
	case QuotaExceeded:
		return "Service quota exceeded. Please try again later."
	case ServiceUnavailable:
		return "Service temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Error carries a kind together with the short title and user message sent to
// the client. Err holds the raw cause for logs.
type Error struct {
	Kind    Kind
	Title   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Title, e.Err)
	}
	return e.Title
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error with an explicit title and message.
func New(kind Kind, title, message string) *Error {
	return &Error{Kind: kind, Title: title, Message: message}
}

// Wrap classifies err and attaches a title. The message defaults to the kind's
// user message.
func Wrap(err error, title string) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return &Error{Kind: appErr.Kind, Title: title, Message: appErr.Message, Err: err}
	}
	kind := Classify(err)
	return &Error{Kind: kind, Title: title, Message: kind.UserMessage(), Err: err}
}

// Classify inspects err and returns the matching kind. Unknown errors are
// Internal.
func Classify(err error) Kind {
	if err == nil {
		return Internal
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}

	if kind, ok := classifyGRPC(err); ok {
		return kind
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyHTTPStatus(apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyHTTPStatus(reqErr.HTTPStatusCode, reqErr.Error())
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyHTTPStatus(gErr.Code, gErr.Message)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ServiceUnavailable
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ServiceUnavailable
	}

	if strings.Contains(strings.ToLower(err.Error()), "quota") {
		return QuotaExceeded
	}
	return Internal
}

func classifyGRPC(err error) (Kind, bool) {
	// status.FromError reports ok for any error implementing GRPCStatus, including
	// wrapped ones.
	st, ok := status.FromError(err)
	if !ok || st.Code() == codes.OK || st.Code() == codes.Unknown {
		return Internal, false
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return Unauthenticated, true
	case codes.ResourceExhausted:
		return QuotaExceeded, true
	case codes.InvalidArgument:
		return InvalidArgument, true
	case codes.Unavailable:
		return ServiceUnavailable, true
	}
	if strings.Contains(strings.ToLower(st.Message()), "quota") {
		return QuotaExceeded, true
	}
	return Internal, true
}

func classifyHTTPStatus(code int, message string) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Unauthenticated
	case code == http.StatusTooManyRequests:
		return QuotaExceeded
	case code == http.StatusBadRequest:
		return InvalidArgument
	case code == http.StatusServiceUnavailable || code == http.StatusBadGateway || code == http.StatusGatewayTimeout:
		return ServiceUnavailable
	case strings.Contains(strings.ToLower(message), "quota"):
		return QuotaExceeded
	default:
		return Internal
	}
}
