package rbac

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeObject struct {
	Owner   uuid.UUID
	Type    string
	Allowed bool
}

func (w fakeObject) RBACObject() Object {
	return Object{
		Owner: w.Owner.String(),
		Type:  w.Type,
	}
}

func TestFilterError(t *testing.T) {
	t.Parallel()
	auth := NewAuthorizer()

	subject := Subject{ID: uuid.NewString()}
	_, err := Filter(context.Background(), auth, subject, ActionRead, []Object{ResourceUser, ResourceJobTemplate})
	require.ErrorContains(t, err, "object types must be uniform")
}

// TestAuthorize runs custom roles that do not exist in the product against
// the evaluator to test edge cases of the implementation.
func TestAuthorize(t *testing.T) {
	t.Parallel()

	me := uuid.NewString()
	other := uuid.NewString()
	templateID := uuid.NewString()

	mustRoles := func(names ...string) []Role {
		roles, err := RolesByNames(names)
		require.NoError(t, err)
		return roles
	}

	testCases := []struct {
		Name    string
		Subject Subject
		Action  Action
		Object  Object
		Allow   bool
	}{
		{
			Name:    "AdminAnything",
			Subject: Subject{ID: me, Roles: mustRoles(RoleAdministrator())},
			Action:  ActionDelete,
			Object:  ResourceJobTemplate.WithIDString(templateID),
			Allow:   true,
		},
		{
			Name:    "AuditorRead",
			Subject: Subject{ID: me, Roles: mustRoles(RoleAuditor())},
			Action:  ActionRead,
			Object:  ResourceJob.WithIDString(uuid.NewString()),
			Allow:   true,
		},
		{
			Name:    "AuditorCannotWrite",
			Subject: Subject{ID: me, Roles: mustRoles(RoleAuditor())},
			Action:  ActionUpdate,
			Object:  ResourceJobTemplate.WithIDString(templateID),
			Allow:   false,
		},
		{
			Name:    "MemberOwnResource",
			Subject: Subject{ID: me, Roles: mustRoles(RoleMember())},
			Action:  ActionDelete,
			Object:  ResourceAPIKey.WithOwner(me),
			Allow:   true,
		},
		{
			Name:    "MemberOtherResource",
			Subject: Subject{ID: me, Roles: mustRoles(RoleMember())},
			Action:  ActionRead,
			Object:  ResourceAPIKey.WithOwner(other),
			Allow:   false,
		},
		{
			Name:    "MemberReadsUsers",
			Subject: Subject{ID: me, Roles: mustRoles(RoleMember())},
			Action:  ActionRead,
			Object:  ResourceUser.WithIDString(other),
			Allow:   true,
		},
		{
			Name:    "NoRoles",
			Subject: Subject{ID: me},
			Action:  ActionRead,
			Object:  ResourceUser,
			Allow:   false,
		},
		{
			Name: "ObjectRoleScopedToID",
			Subject: Subject{ID: me, Roles: []Role{
				ObjectRole("executor", templateID, Permissions(map[string][]Action{
					ResourceJobTemplate.Type: {ActionRead, ActionExecute},
				})),
			}},
			Action: ActionExecute,
			Object: ResourceJobTemplate.WithIDString(templateID),
			Allow:  true,
		},
		{
			Name: "ObjectRoleWrongID",
			Subject: Subject{ID: me, Roles: []Role{
				ObjectRole("executor", templateID, Permissions(map[string][]Action{
					ResourceJobTemplate.Type: {ActionRead, ActionExecute},
				})),
			}},
			Action: ActionExecute,
			Object: ResourceJobTemplate.WithIDString(uuid.NewString()),
			Allow:  false,
		},
		{
			Name: "NegatePermissionWins",
			Subject: Subject{ID: me, Roles: []Role{
				{
					Name: "admin-except-users",
					Site: append(Permissions(map[string][]Action{
						ResourceWildcard.Type: {WildcardSymbol},
					}), Permission{
						Negate:       true,
						ResourceType: ResourceUser.Type,
						ResourceID:   WildcardSymbol,
						Action:       ActionDelete,
					}),
				},
			}},
			Action: ActionDelete,
			Object: ResourceUser.WithIDString(other),
			Allow:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			auth := NewAuthorizer()
			err := auth.Authorize(context.Background(), tc.Subject, tc.Action, tc.Object)
			if tc.Allow {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.True(t, IsUnauthorizedError(err))
		})
	}
}

// TestFilterMatchesAuthorize ensures the filter acts the same as individual
// authorize calls.
func TestFilterMatchesAuthorize(t *testing.T) {
	t.Parallel()

	me := uuid.New()
	objects := make([]fakeObject, 0, 20)
	for i := 0; i < 20; i++ {
		owner := uuid.New()
		if i%3 == 0 {
			owner = me
		}
		objects = append(objects, fakeObject{
			Owner: owner,
			Type:  ResourceJobTemplate.Type,
		})
	}

	roles, err := RolesByNames([]string{RoleMember()})
	require.NoError(t, err)
	subject := Subject{ID: me.String(), Roles: roles}

	auth := NewAuthorizer()
	filtered, err := Filter(context.Background(), auth, subject, ActionRead, objects)
	require.NoError(t, err)

	expected := make([]fakeObject, 0, len(objects))
	for _, o := range objects {
		if auth.Authorize(context.Background(), subject, ActionRead, o.RBACObject()) == nil {
			expected = append(expected, o)
		}
	}
	require.Equal(t, expected, filtered)
}
