// Package rolestore expands stored role grants into rbac roles.
package rolestore

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/rbac"
)

// ExpandSubject builds the authorization subject for a user: their built-in
// site roles plus one object-scoped role per role assignment.
func ExpandSubject(ctx context.Context, db database.Store, user database.User) (rbac.Subject, error) {
	roles, err := rbac.RolesByNames(user.RBACRoles)
	if err != nil {
		return rbac.Subject{}, xerrors.Errorf("expand built-in roles: %w", err)
	}

	assignments, err := db.GetRoleAssignments(ctx, database.GetRoleAssignmentsParams{
		UserID: user.ID,
	})
	if err != nil {
		return rbac.Subject{}, xerrors.Errorf("get role assignments: %w", err)
	}

	// Role definitions repeat across assignments, fetch each once.
	defs := make(map[uuid.UUID]database.RoleDefinition)
	for _, assignment := range assignments {
		def, ok := defs[assignment.RoleDefinitionID]
		if !ok {
			def, err = db.GetRoleDefinitionByID(ctx, assignment.RoleDefinitionID)
			if err != nil {
				return rbac.Subject{}, xerrors.Errorf("get role definition %q: %w", assignment.RoleDefinitionID, err)
			}
			defs[def.ID] = def
		}

		perms, err := rbac.ValidatePermissions(def.ContentType, def.Permissions)
		if err != nil {
			return rbac.Subject{}, xerrors.Errorf("parse permissions of role %q: %w", def.Name, err)
		}
		roles = append(roles, rbac.ObjectRole(def.Name, assignment.ObjectID.String(), perms))
	}

	return rbac.Subject{
		ID:    user.ID.String(),
		Roles: roles,
	}, nil
}
