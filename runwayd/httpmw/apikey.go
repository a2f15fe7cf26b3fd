package httpmw

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/xerrors"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwayd/rbac/rolestore"
	"github.com/runwayhq/runway/runwaysdk"
)

type apiKeyContextKey struct{}
type subjectContextKey struct{}

// SignedOutErrorMessage is returned to clients with invalid or expired
// sessions.
const SignedOutErrorMessage = "You are signed out or your session has expired. Please sign in again to continue."

// APIKeyOptional may return an API key from the ExtractAPIKey handler.
func APIKeyOptional(r *http.Request) (database.APIKey, bool) {
	key, ok := r.Context().Value(apiKeyContextKey{}).(database.APIKey)
	return key, ok
}

// APIKey returns the API key from the ExtractAPIKey handler.
func APIKey(r *http.Request) database.APIKey {
	key, ok := APIKeyOptional(r)
	if !ok {
		panic("developer error: ExtractAPIKey middleware not provided")
	}
	return key
}

// UserAuthorizationOptional may return the subject used for authorization.
func UserAuthorizationOptional(r *http.Request) (rbac.Subject, bool) {
	subject, ok := r.Context().Value(subjectContextKey{}).(rbac.Subject)
	return subject, ok
}

// UserAuthorization returns the subject used for authorization. Depends on
// the ExtractAPIKey handler.
func UserAuthorization(r *http.Request) rbac.Subject {
	subject, ok := UserAuthorizationOptional(r)
	if !ok {
		panic("developer error: ExtractAPIKey middleware not provided")
	}
	return subject
}

type ExtractAPIKeyConfig struct {
	DB database.Store
	// Optional governs whether unauthenticated requests pass through with
	// no subject in the context instead of receiving a 401.
	Optional bool
	// SessionDuration is how far a stale key's expiry is pushed out on
	// use. Zero means DefaultSessionDuration.
	SessionDuration time.Duration
}

// APITokenFromRequest returns the api token from the request's session
// token header or query parameter.
func APITokenFromRequest(r *http.Request) string {
	token := r.Header.Get(runwaysdk.SessionTokenHeader)
	if token != "" {
		return token
	}
	return r.URL.Query().Get("session_token")
}

// ExtractAPIKey requires authentication using a valid API key. It handles
// extracting the token, validating the secret, checking expiry, and
// attaching the user's authorization subject to the request context.
func ExtractAPIKey(cfg ExtractAPIKeyConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			write := func(code int, response runwaysdk.Response) {
				httpapi.Write(ctx, rw, code, response)
			}
			// optionalWrite lets the request through unauthenticated when
			// the middleware is configured as optional.
			optionalWrite := func(code int, response runwaysdk.Response) {
				if cfg.Optional {
					next.ServeHTTP(rw, r)
					return
				}
				write(code, response)
			}

			token := APITokenFromRequest(r)
			if token == "" {
				optionalWrite(http.StatusUnauthorized, runwaysdk.Response{
					Message: SignedOutErrorMessage,
					Detail:  fmt.Sprintf("Header %q or query parameter \"session_token\" must be provided.", runwaysdk.SessionTokenHeader),
				})
				return
			}

			keyID, keySecret, err := SplitAPIToken(token)
			if err != nil {
				optionalWrite(http.StatusUnauthorized, runwaysdk.Response{
					Message: SignedOutErrorMessage,
					Detail:  "Invalid API key format: " + err.Error(),
				})
				return
			}

			key, err := cfg.DB.GetAPIKeyByID(ctx, keyID)
			if err != nil {
				if httpapi.Is404Error(err) {
					optionalWrite(http.StatusUnauthorized, runwaysdk.Response{
						Message: SignedOutErrorMessage,
						Detail:  "API key is invalid.",
					})
					return
				}
				write(http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching API key.",
					Detail:  err.Error(),
				})
				return
			}

			// Checking to see if the secret is valid.
			hashedSecret := sha256.Sum256([]byte(keySecret))
			if subtle.ConstantTimeCompare(key.HashedSecret, hashedSecret[:]) != 1 {
				optionalWrite(http.StatusUnauthorized, runwaysdk.Response{
					Message: SignedOutErrorMessage,
					Detail:  "API key secret is invalid.",
				})
				return
			}

			now := dbtime.Now()
			if key.ExpiresAt.Before(now) {
				optionalWrite(http.StatusUnauthorized, runwaysdk.Response{
					Message: SignedOutErrorMessage,
					Detail:  fmt.Sprintf("API key expired at %q.", key.ExpiresAt.String()),
				})
				return
			}

			// Only update the key's LastUsed when it is stale, to avoid a
			// database write on every request.
			if now.Sub(key.LastUsed) > time.Hour {
				sessionDuration := cfg.SessionDuration
				if sessionDuration == 0 {
					sessionDuration = DefaultSessionDuration
				}
				key.LastUsed = now
				key.ExpiresAt = now.Add(sessionDuration)
				err = cfg.DB.UpdateAPIKeyLastUsed(ctx, database.UpdateAPIKeyLastUsedParams{
					ID:        key.ID,
					LastUsed:  key.LastUsed,
					ExpiresAt: key.ExpiresAt,
					UpdatedAt: now,
				})
				if err != nil {
					write(http.StatusInternalServerError, runwaysdk.Response{
						Message: "Internal error refreshing API key.",
						Detail:  err.Error(),
					})
					return
				}
			}

			user, err := cfg.DB.GetUserByID(ctx, key.UserID)
			if err != nil {
				write(http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching user.",
					Detail:  err.Error(),
				})
				return
			}
			if user.Status == database.UserStatusSuspended {
				write(http.StatusUnauthorized, runwaysdk.Response{
					Message: "Contact an admin to reactivate your account.",
				})
				return
			}

			subject, err := rolestore.ExpandSubject(ctx, cfg.DB, user)
			if err != nil {
				write(http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error expanding user roles.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, apiKeyContextKey{}, key)
			ctx = context.WithValue(ctx, subjectContextKey{}, subject)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}

// DefaultSessionDuration is how long a session token lasts without use
// before a new login is required.
const DefaultSessionDuration = 7 * 24 * time.Hour

// SplitAPIToken verifies the format of an API key and returns the ID and
// secret.
func SplitAPIToken(token string) (id string, secret string, err error) {
	parts := strings.Split(token, "-")
	if len(parts) != 2 {
		return "", "", xerrors.Errorf("incorrect amount of API key parts: expected 2 got %d", len(parts))
	}

	keyID := strings.TrimSpace(parts[0])
	keySecret := strings.TrimSpace(parts[1])
	if len(keyID) != 10 {
		return "", "", xerrors.Errorf("invalid API key ID length: expected 10 got %d", len(keyID))
	}
	if len(keySecret) != 22 {
		return "", "", xerrors.Errorf("invalid API key secret length: expected 22 got %d", len(keySecret))
	}

	return keyID, keySecret, nil
}
