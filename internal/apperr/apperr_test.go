package apperr

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Internal},
		{"plain", errors.New("boom"), Internal},
		{"dns", &net.DNSError{Err: "no such host", Name: "speech.googleapis.com"}, ServiceUnavailable},
		{"conn refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ServiceUnavailable},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "bad creds"), Unauthenticated},
		{"grpc permission denied", status.Error(codes.PermissionDenied, "nope"), Unauthenticated},
		{"grpc exhausted", status.Error(codes.ResourceExhausted, "slow down"), QuotaExceeded},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad audio"), InvalidArgument},
		{"grpc unavailable", status.Error(codes.Unavailable, "down"), ServiceUnavailable},
		{"wrapped grpc", fmt.Errorf("recognize: %w", status.Error(codes.Unavailable, "down")), ServiceUnavailable},
		{"quota text", errors.New("Quota exceeded for project"), QuotaExceeded},
		{"openai 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "rate limit"}, QuotaExceeded},
		{"openai 401", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}, Unauthenticated},
		{"app error", New(InvalidInput, "Invalid message", "Please provide a valid message."), InvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindStatusAndMessage(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, InvalidInput.Status())
	assert.Equal(t, http.StatusBadRequest, InvalidArgument.Status())
	assert.Equal(t, http.StatusUnauthorized, Unauthenticated.Status())
	assert.Equal(t, http.StatusTooManyRequests, QuotaExceeded.Status())
	assert.Equal(t, http.StatusServiceUnavailable, ServiceUnavailable.Status())
	assert.Equal(t, http.StatusInternalServerError, Internal.Status())

	assert.Equal(t, "Service temporarily unavailable. Please try again later.", ServiceUnavailable.UserMessage())
	assert.Equal(t, "An unexpected error occurred. Please try again.", Internal.UserMessage())
}

func TestWrapKeepsAppErrorMessage(t *testing.T) {
	inner := New(InvalidInput, "Message too long", "Message must be less than 1000 characters.")
	wrapped := Wrap(fmt.Errorf("text turn: %w", inner), "Text processing failed")

	assert.Equal(t, InvalidInput, wrapped.Kind)
	assert.Equal(t, "Message must be less than 1000 characters.", wrapped.Message)
	assert.Equal(t, "Text processing failed", wrapped.Title)
	assert.ErrorIs(t, wrapped, inner)
}
