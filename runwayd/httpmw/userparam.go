package httpmw

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

type userParamContextKey struct{}

// UserParam returns the user from the ExtractUserParam handler.
func UserParam(r *http.Request) database.User {
	user, ok := r.Context().Value(userParamContextKey{}).(database.User)
	if !ok {
		panic("developer error: user param middleware not provided")
	}
	return user
}

// ExtractUserParam grabs a user from the "user" URL parameter. "me" resolves
// to the authenticated user.
func ExtractUserParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var user database.User
			if chi.URLParam(r, "user") == "me" {
				key := APIKey(r)
				fetched, err := db.GetUserByID(ctx, key.UserID)
				if err != nil {
					httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
						Message: "Internal error fetching user.",
						Detail:  err.Error(),
					})
					return
				}
				user = fetched
			} else {
				userID, parsed := ParseUUIDParam(rw, r, "user")
				if !parsed {
					return
				}
				fetched, err := db.GetUserByID(ctx, userID)
				if err != nil {
					if httpapi.Is404Error(err) {
						httpapi.ResourceNotFound(rw)
						return
					}
					httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
						Message: "Internal error fetching user.",
						Detail:  err.Error(),
					})
					return
				}
				user = fetched
			}

			ctx = context.WithValue(ctx, userParamContextKey{}, user)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
