// Package middleware holds the HTTP middleware shared by all routes.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"

	"github.com/vibe-companion/backend/internal/logging"
	"github.com/vibe-companion/backend/internal/model/profile"
	"github.com/vibe-companion/backend/pkg/utils"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

var (
	errMissingAuthorizationHeader = errors.New("missing Authorization header")
	errInvalidAuthorizationHeader = errors.New("invalid Authorization header")
)

// TokenVerifier checks a Firebase ID token. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

type identityKey struct{}

// WithIdentity stores the authenticated user in ctx.
func WithIdentity(ctx context.Context, id profile.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the user set by Auth.
func IdentityFrom(ctx context.Context) (profile.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(profile.Identity)
	return id, ok
}

func parseBearerToken(r *http.Request) (string, error) {
	reqToken := r.Header.Get(authorizationHeader)
	if reqToken == "" {
		return "", errMissingAuthorizationHeader
	}
	splitToken := strings.Split(reqToken, bearerPrefix)
	if len(splitToken) != 2 || strings.TrimSpace(splitToken[1]) == "" {
		return "", errInvalidAuthorizationHeader
	}
	return strings.TrimSpace(splitToken[1]), nil
}

// Auth rejects requests without a valid Firebase ID token. A nil verifier
// rejects every request with 503.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "Authentication unavailable", "Sign-in is not configured on this server.")
				return
			}

			token, err := parseBearerToken(r)
			if err != nil {
				utils.RespondError(w, http.StatusUnauthorized, "Unauthorized", "Please sign in again.")
				return
			}

			verified, err := verifier.VerifyIDToken(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Warn("id token rejected", slog.Any(logging.ErrorField, err))
				utils.RespondError(w, http.StatusUnauthorized, "Unauthorized", "Please sign in again.")
				return
			}

			id := identityFromToken(verified)
			ctx := WithIdentity(r.Context(), id)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("uid", id.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the user when the request carries a valid Firebase ID
// token and lets every other request through anonymously.
func OptionalAuth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, err := parseBearerToken(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			verified, err := verifier.VerifyIDToken(r.Context(), token)
			if err != nil {
				logging.FromContext(r.Context()).Debug("id token ignored", slog.Any(logging.ErrorField, err))
				next.ServeHTTP(w, r)
				return
			}

			id := identityFromToken(verified)
			ctx := WithIdentity(r.Context(), id)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With(slog.String("uid", id.UID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func identityFromToken(t *auth.Token) profile.Identity {
	id := profile.Identity{UID: t.UID}
	if v, ok := t.Claims["email"].(string); ok {
		id.Email = v
	}
	if v, ok := t.Claims["name"].(string); ok {
		id.Name = v
	}
	if v, ok := t.Claims["picture"].(string); ok {
		id.Picture = v
	}
	return id
}
