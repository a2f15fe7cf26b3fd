package runwayd_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/runwayd/runwaydtest"
	"github.com/runwayhq/runway/runwaysdk"
)

func TestRoleDefinitions(t *testing.T) {
	t.Parallel()
	t.Run("Create", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		def, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "template-operator",
			Description: "Can run a template.",
			ContentType: "job_template",
			Permissions: []string{"job_template.read", "job_template.execute"},
		})
		require.NoError(t, err)
		require.Equal(t, "job_template", def.ContentType)
		require.False(t, def.BuiltIn)
	})

	t.Run("InvalidContentType", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		_, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "bogus",
			ContentType: "spaceship",
			Permissions: []string{"spaceship.read"},
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})

	t.Run("PermissionOutsideContentType", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		_, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "mixed",
			ContentType: "job_template",
			Permissions: []string{"user.read"},
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})

	t.Run("ReservedName", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		_, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "system-administrator",
			ContentType: "job_template",
			Permissions: []string{"job_template.read"},
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})

	t.Run("ListIncludesBuiltins", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		defs, err := client.RoleDefinitions(context.Background())
		require.NoError(t, err)

		builtins := 0
		for _, def := range defs {
			if def.BuiltIn {
				builtins++
			}
		}
		require.Equal(t, 3, builtins)
	})

	t.Run("UpdateKeepsContentType", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)

		def, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "job-viewer",
			ContentType: "job",
			Permissions: []string{"job.read"},
		})
		require.NoError(t, err)

		updated, err := client.UpdateRoleDefinition(context.Background(), def.ID, runwaysdk.UpdateRoleDefinitionRequest{
			Name:        "job-viewer-renamed",
			Permissions: []string{"job.read", "job.update"},
		})
		require.NoError(t, err)
		require.Equal(t, "job", updated.ContentType)
		require.Equal(t, "job-viewer-renamed", updated.Name)
	})

	t.Run("DeleteWithLiveAssignments", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		first := runwaydtest.CreateFirstUser(t, client)

		def, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "instance-reader",
			ContentType: "instance",
			Permissions: []string{"instance.read"},
		})
		require.NoError(t, err)

		assignment, created, err := client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           first.UserID,
			RoleDefinitionID: def.ID,
			ObjectID:         first.UserID,
		})
		require.NoError(t, err)
		require.True(t, created)

		err = client.DeleteRoleDefinition(context.Background(), def.ID)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusConflict, apiErr.StatusCode())

		// Revoking the grant unblocks the delete.
		err = client.DeleteRoleAssignment(context.Background(), assignment.ID)
		require.NoError(t, err)
		err = client.DeleteRoleDefinition(context.Background(), def.ID)
		require.NoError(t, err)
	})
}
