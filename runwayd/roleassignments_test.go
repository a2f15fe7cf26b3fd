package runwayd_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/runwayd/runwaydtest"
	"github.com/runwayhq/runway/runwaysdk"
)

func TestRoleAssignments(t *testing.T) {
	t.Parallel()

	setup := func(t *testing.T) (*runwaysdk.Client, runwaysdk.User, runwaysdk.RoleDefinition, runwaysdk.JobTemplate) {
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)
		_, member := runwaydtest.CreateAnotherUser(t, client)

		def, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "template-executor",
			ContentType: "job_template",
			Permissions: []string{"job_template.read", "job_template.execute"},
		})
		require.NoError(t, err)

		template, err := client.CreateJobTemplate(context.Background(), runwaysdk.CreateJobTemplateRequest{
			Name:     "deploy",
			Playbook: "- hosts: all\n  tasks: []\n",
		})
		require.NoError(t, err)
		return client, member, def, template
	}

	t.Run("CreateIsIdempotent", func(t *testing.T) {
		t.Parallel()
		client, member, def, template := setup(t)

		req := runwaysdk.CreateRoleAssignmentRequest{
			UserID:           member.ID,
			RoleDefinitionID: def.ID,
			ObjectID:         template.ID,
		}
		first, created, err := client.CreateRoleAssignment(context.Background(), req)
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := client.CreateRoleAssignment(context.Background(), req)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, first.ID, second.ID)
	})

	t.Run("DifferentObjectIsNewAssignment", func(t *testing.T) {
		t.Parallel()
		client, member, def, template := setup(t)

		first, created, err := client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           member.ID,
			RoleDefinitionID: def.ID,
			ObjectID:         template.ID,
		})
		require.NoError(t, err)
		require.True(t, created)

		second, created, err := client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           member.ID,
			RoleDefinitionID: def.ID,
			ObjectID:         uuid.New(),
		})
		require.NoError(t, err)
		require.True(t, created)
		require.NotEqual(t, first.ID, second.ID)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		t.Parallel()
		client, _, def, template := setup(t)

		_, _, err := client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           uuid.New(),
			RoleDefinitionID: def.ID,
			ObjectID:         template.ID,
		})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode())
	})

	t.Run("ListFilters", func(t *testing.T) {
		t.Parallel()
		client, member, def, template := setup(t)

		_, _, err := client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           member.ID,
			RoleDefinitionID: def.ID,
			ObjectID:         template.ID,
		})
		require.NoError(t, err)

		byUser, err := client.RoleAssignments(context.Background(), runwaysdk.RoleAssignmentFilter{UserID: member.ID})
		require.NoError(t, err)
		require.Len(t, byUser, 1)

		byOther, err := client.RoleAssignments(context.Background(), runwaysdk.RoleAssignmentFilter{UserID: uuid.New()})
		require.NoError(t, err)
		require.Len(t, byOther, 0)
	})

	t.Run("DeleteTwice", func(t *testing.T) {
		t.Parallel()
		client, member, def, template := setup(t)

		assignment, _, err := client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           member.ID,
			RoleDefinitionID: def.ID,
			ObjectID:         template.ID,
		})
		require.NoError(t, err)

		err = client.DeleteRoleAssignment(context.Background(), assignment.ID)
		require.NoError(t, err)

		err = client.DeleteRoleAssignment(context.Background(), assignment.ID)
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode())
	})

	t.Run("GrantUnlocksObject", func(t *testing.T) {
		t.Parallel()
		client := runwaydtest.New(t, nil)
		_ = runwaydtest.CreateFirstUser(t, client)
		memberClient, member := runwaydtest.CreateAnotherUser(t, client)

		template, err := client.CreateJobTemplate(context.Background(), runwaysdk.CreateJobTemplateRequest{
			Name:     "restricted",
			Playbook: "- hosts: all\n  tasks: []\n",
		})
		require.NoError(t, err)

		// The admin owns the template, so the member can't execute it.
		_, err = memberClient.LaunchJob(context.Background(), template.ID, runwaysdk.LaunchJobRequest{})
		var apiErr *runwaysdk.Error
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusNotFound, apiErr.StatusCode())

		def, err := client.CreateRoleDefinition(context.Background(), runwaysdk.CreateRoleDefinitionRequest{
			Name:        "launcher",
			ContentType: "job_template",
			Permissions: []string{"job_template.read", "job_template.execute"},
		})
		require.NoError(t, err)
		_, _, err = client.CreateRoleAssignment(context.Background(), runwaysdk.CreateRoleAssignmentRequest{
			UserID:           member.ID,
			RoleDefinitionID: def.ID,
			ObjectID:         template.ID,
		})
		require.NoError(t, err)

		job, err := memberClient.LaunchJob(context.Background(), template.ID, runwaysdk.LaunchJobRequest{})
		require.NoError(t, err)
		require.Equal(t, runwaysdk.JobStatusPending, job.Status)
	})
}
