package httpmw_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/runwayd/apikey"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

func insertUser(t *testing.T, db database.Store, roles []string) database.User {
	t.Helper()
	now := dbtime.Now()
	user, err := db.InsertUser(context.Background(), database.InsertUserParams{
		ID:        uuid.New(),
		Email:     uuid.NewString() + "@example.com",
		Username:  "u" + uuid.NewString()[:8],
		RBACRoles: roles,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
	return user
}

func insertAPIKey(t *testing.T, db database.Store, userID uuid.UUID) string {
	t.Helper()
	params, token, err := apikey.Generate(apikey.CreateParams{UserID: userID})
	require.NoError(t, err)
	_, err = db.InsertAPIKey(context.Background(), params)
	require.NoError(t, err)
	return token
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	successHandler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})

	t.Run("NoToken", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{DB: db})(successHandler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("InvalidFormat", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(runwaysdk.SessionTokenHeader, "not-a-real-token")

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{DB: db})(successHandler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		user := insertUser(t, db, []string{rbac.RoleMember()})
		token := insertAPIKey(t, db, user.ID)

		var gotSubject rbac.Subject
		handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			gotSubject = httpmw.UserAuthorization(r)
			rw.WriteHeader(http.StatusOK)
		})

		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(runwaysdk.SessionTokenHeader, token)

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{DB: db})(handler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusOK, rw.Code)
		require.Equal(t, user.ID.String(), gotSubject.ID)
	})

	t.Run("Expired", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		user := insertUser(t, db, []string{rbac.RoleMember()})
		params, token, err := apikey.Generate(apikey.CreateParams{UserID: user.ID})
		require.NoError(t, err)
		params.ExpiresAt = dbtime.Now().Add(-time.Minute)
		_, err = db.InsertAPIKey(context.Background(), params)
		require.NoError(t, err)

		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(runwaysdk.SessionTokenHeader, token)

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{DB: db})(successHandler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})

	t.Run("OptionalPassthrough", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		handler := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			_, ok := httpmw.UserAuthorizationOptional(r)
			require.False(t, ok)
			rw.WriteHeader(http.StatusOK)
		})

		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{DB: db, Optional: true})(handler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusOK, rw.Code)
	})

	t.Run("StaleKeyRefreshUsesConfiguredDuration", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		user := insertUser(t, db, []string{rbac.RoleMember()})
		params, token, err := apikey.Generate(apikey.CreateParams{UserID: user.ID})
		require.NoError(t, err)
		params.LastUsed = dbtime.Now().Add(-2 * time.Hour)
		_, err = db.InsertAPIKey(context.Background(), params)
		require.NoError(t, err)

		sessionDuration := 2 * time.Hour
		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(runwaysdk.SessionTokenHeader, token)

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{
			DB:              db,
			SessionDuration: sessionDuration,
		})(successHandler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusOK, rw.Code)

		keyID, _, err := httpmw.SplitAPIToken(token)
		require.NoError(t, err)
		key, err := db.GetAPIKeyByID(context.Background(), keyID)
		require.NoError(t, err)
		require.WithinDuration(t, dbtime.Now().Add(sessionDuration), key.ExpiresAt, time.Minute)
	})

	t.Run("SuspendedUser", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		user := insertUser(t, db, []string{rbac.RoleMember()})
		token := insertAPIKey(t, db, user.ID)
		_, err := db.UpdateUserStatus(context.Background(), database.UpdateUserStatusParams{
			ID:        user.ID,
			Status:    database.UserStatusSuspended,
			UpdatedAt: dbtime.Now(),
		})
		require.NoError(t, err)

		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(runwaysdk.SessionTokenHeader, token)

		httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{DB: db})(successHandler).ServeHTTP(rw, r)
		require.Equal(t, http.StatusUnauthorized, rw.Code)
	})
}
