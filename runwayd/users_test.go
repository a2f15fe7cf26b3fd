package runwayd_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/runwayd/runwaydtest"
	"github.com/runwayhq/runway/runwaysdk"
)

func TestFirstUser(t *testing.T) {
	t.Parallel()
	t.Run("BeforeCreate", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		has, err := client.HasFirstUser(context.Background())
		require.NoError(t, err)
		require.False(t, has)
	})

	t.Run("Create", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		resp := runwaydtest.CreateFirstUser(t, client)
		require.NotEqual(t, resp.UserID.String(), "00000000-0000-0000-0000-000000000000")

		has, err := client.HasFirstUser(context.Background())
		require.NoError(t, err)
		require.True(t, has)
	})

	t.Run("CreateTwice", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		_, err := client.CreateFirstUser(context.Background(), runwaydtest.FirstUserParams)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusConflict, apiErr.StatusCode())
	})

	t.Run("FirstUserIsAdmin", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		resp := runwaydtest.CreateFirstUser(t, client)

		user, err := client.User(context.Background(), resp.UserID.String())
		require.NoError(t, err)
		require.Contains(t, user.Roles, "system-administrator")
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	t.Run("BadPassword", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		anon := runwaysdk.New(client.URL)
		_, err := anon.Login(context.Background(), runwaysdk.LoginRequest{
			Email:    runwaydtest.FirstUserParams.Email,
			Password: "totally-wrong",
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		anon := runwaysdk.New(client.URL)
		_, err := anon.Login(context.Background(), runwaysdk.LoginRequest{
			Email:    "nobody@runway.dev",
			Password: "SomeSecurePassword!",
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	})

	t.Run("Logout", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		err := client.Logout(context.Background())
		require.NoError(t, err)

		_, err = client.User(context.Background(), runwaysdk.Me)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	})
}

func TestUsers(t *testing.T) {
	t.Parallel()
	t.Run("CreateDuplicateEmail", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		_, err := client.CreateUser(context.Background(), runwaysdk.CreateUserRequest{
			Email:    runwaydtest.FirstUserParams.Email,
			Username: "someoneelse",
			Password: "SomeSecurePassword!",
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusConflict, apiErr.StatusCode())
	})

	t.Run("MemberCannotCreate", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)
		member, _ := runwaydtest.CreateAnotherUser(t, client)

		_, err := member.CreateUser(context.Background(), runwaysdk.CreateUserRequest{
			Email:    "new@runway.dev",
			Username: "newuser",
			Password: "SomeSecurePassword!",
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusForbidden, apiErr.StatusCode())
	})

	t.Run("Me", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		resp := runwaydtest.CreateFirstUser(t, client)

		user, err := client.User(context.Background(), runwaysdk.Me)
		require.NoError(t, err)
		require.Equal(t, resp.UserID, user.ID)
	})

	t.Run("UpdateProfile", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		updated, err := client.UpdateUserProfile(context.Background(), runwaysdk.Me, runwaysdk.UpdateUserProfileRequest{
			Email:    "renamed@runway.dev",
			Username: "renamed",
		})
		require.NoError(t, err)
		require.Equal(t, "renamed", updated.Username)
	})

	t.Run("Suspend", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)
		member, memberUser := runwaydtest.CreateAnotherUser(t, client)

		suspended, err := client.SuspendUser(context.Background(), memberUser.ID.String())
		require.NoError(t, err)
		require.Equal(t, runwaysdk.UserStatusSuspended, suspended.Status)

		// Suspended sessions stop working immediately.
		_, err = member.User(context.Background(), runwaysdk.Me)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode())
	})

	t.Run("SuspendSelf", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		_, err := client.SuspendUser(context.Background(), runwaysdk.Me)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})

	t.Run("DeleteSelf", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		resp := runwaydtest.CreateFirstUser(t, client)

		err := client.DeleteUser(context.Background(), resp.UserID)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusForbidden, apiErr.StatusCode())
	})

	t.Run("UpdateRoles", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)
		_, memberUser := runwaydtest.CreateAnotherUser(t, client)

		updated, err := client.UpdateUserRoles(context.Background(), memberUser.ID.String(), runwaysdk.UpdateRolesRequest{
			Roles: []string{"system-auditor", "member"},
		})
		require.NoError(t, err)
		require.ElementsMatch(t, []string{"system-auditor", "member"}, updated.Roles)
	})
}
