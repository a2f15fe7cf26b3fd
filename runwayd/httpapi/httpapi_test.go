package httpapi_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

func TestWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rw := httptest.NewRecorder()
	httpapi.Write(ctx, rw, http.StatusOK, runwaysdk.Response{
		Message: "ok",
	})
	require.Equal(t, http.StatusOK, rw.Code)
	require.Equal(t, "application/json; charset=utf-8", rw.Header().Get("Content-Type"))

	var resp runwaysdk.Response
	err := json.NewDecoder(rw.Body).Decode(&resp)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Message)
}

func TestRead(t *testing.T) {
	t.Parallel()

	type toValidate struct {
		Username string `json:"username" validate:"required,username"`
	}

	t.Run("OK", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{"username": "frank"}`))

		var validate toValidate
		require.True(t, httpapi.Read(ctx, rw, r, &validate))
		require.Equal(t, "frank", validate.Username)
	})

	t.Run("EmptyStruct", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(`{}`))

		var validate toValidate
		require.False(t, httpapi.Read(ctx, rw, r, &validate))
		var body runwaysdk.Response
		err := json.NewDecoder(rw.Body).Decode(&body)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, rw.Code)
		require.Len(t, body.Validations, 1)
		require.Equal(t, "username", body.Validations[0].Field)
	})

	t.Run("NotJSON", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		rw := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString("not json"))

		var validate toValidate
		require.False(t, httpapi.Read(ctx, rw, r, &validate))
		require.Equal(t, http.StatusBadRequest, rw.Code)
	})
}

func TestIs404Error(t *testing.T) {
	t.Parallel()

	require.True(t, httpapi.Is404Error(sql.ErrNoRows))
	require.True(t, httpapi.Is404Error(xerrors.Errorf("wrap: %w", sql.ErrNoRows)))
	require.True(t, httpapi.Is404Error(rbac.ForbiddenWithInternal(xerrors.New("nope"), rbac.Subject{}, rbac.ActionRead, rbac.Object{})))
	require.False(t, httpapi.Is404Error(nil))
	require.False(t, httpapi.Is404Error(xerrors.New("other")))
}
