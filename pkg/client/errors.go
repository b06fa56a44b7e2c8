package client

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Category groups client-visible failures.
type Category string

const (
	CategoryNetwork    Category = "NETWORK_ERROR"
	CategoryAuth       Category = "AUTH_ERROR"
	CategoryMicrophone Category = "MICROPHONE_ERROR"
	CategoryAudio      Category = "AUDIO_ERROR"
	CategoryAPI        Category = "API_ERROR"
	CategoryFirebase   Category = "FIREBASE_ERROR"
	CategoryUnknown    Category = "UNKNOWN_ERROR"
)

// Device errors reported by capture and playback ports.
var (
	ErrMicrophoneDenied = errors.New("microphone permission denied")
	ErrPlayback         = errors.New("audio playback failed")
)

// Info is the notification text for a failure.
type Info struct {
	Title       string
	Message     string
	UserMessage string
}

var categoryInfo = map[Category]Info{
	CategoryNetwork: {
		Title:       "Connection Error",
		Message:     "Please check your internet connection and try again.",
		UserMessage: "Network connection issue. Please try again.",
	},
	CategoryAuth: {
		Title:       "Authentication Error",
		Message:     "There was an issue with authentication.",
		UserMessage: "Please sign in again.",
	},
	CategoryMicrophone: {
		Title:       "Microphone Access Denied",
		Message:     "Microphone permission was denied or not available.",
		UserMessage: "Please allow microphone access to use voice features.",
	},
	CategoryAudio: {
		Title:       "Audio Error",
		Message:     "There was an issue with audio playback.",
		UserMessage: "Audio playback failed. Please try again.",
	},
	CategoryAPI: {
		Title:       "Service Error",
		Message:     "The AI service is temporarily unavailable.",
		UserMessage: "VIBE is having trouble responding. Please try again.",
	},
	CategoryFirebase: {
		Title:       "Data Error",
		Message:     "There was an issue saving your data.",
		UserMessage: "Unable to save your conversation. Please try again.",
	},
	CategoryUnknown: {
		Title:       "Unexpected Error",
		Message:     "An unexpected error occurred.",
		UserMessage: "Something went wrong. Please try again.",
	},
}

var (
	rateLimitInfo = Info{
		Title:       "Rate Limit Exceeded",
		Message:     "Too many requests. Please wait a moment before trying again.",
		UserMessage: "Please wait a moment before sending another message.",
	}
	quotaInfo = Info{
		Title:       "Service Limit Reached",
		Message:     "The AI service has reached its daily limit.",
		UserMessage: "VIBE is temporarily unavailable due to high usage.",
	}
)

// Classify picks the category for err. Typed errors win over message text.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var apiErr *APIError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrOffline):
		return CategoryNetwork
	case errors.Is(err, ErrMicrophoneDenied):
		return CategoryMicrophone
	case errors.Is(err, ErrPlayback):
		return CategoryAudio
	case errors.As(err, &apiErr):
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return CategoryAuth
		}
		return CategoryAPI
	case errors.As(err, &netErr), errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "network", "fetch", "connection"):
		return CategoryNetwork
	case containsAny(msg, "auth", "permission"):
		return CategoryAuth
	case strings.Contains(msg, "microphone"):
		return CategoryMicrophone
	case containsAny(msg, "audio", "playback"):
		return CategoryAudio
	case containsAny(msg, "firebase", "firestore"):
		return CategoryFirebase
	case containsAny(msg, "api", "service"):
		return CategoryAPI
	}
	return CategoryUnknown
}

// Describe returns the notification text for err. HTTP 429 and quota
// failures get their own wording regardless of category.
func Describe(err error) Info {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case http.StatusTooManyRequests:
			return rateLimitInfo
		case http.StatusServiceUnavailable:
			return quotaInfo
		}
	}
	if err != nil && strings.Contains(err.Error(), "quota") {
		return quotaInfo
	}
	return categoryInfo[Classify(err)]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
