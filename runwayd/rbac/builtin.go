package rbac

import (
	"golang.org/x/xerrors"
)

const (
	administrator = "system-administrator"
	auditor       = "system-auditor"
	member        = "member"
)

func RoleAdministrator() string { return administrator }
func RoleAuditor() string       { return auditor }
func RoleMember() string        { return member }

// builtInRoles are hard coded. Role definitions stored in the database are
// layered on top via role user assignments; built-ins cannot be edited or
// deleted through the API.
var builtInRoles = map[string]Role{
	// administrator grants all actions to all resources.
	administrator: {
		Name:        administrator,
		DisplayName: "System Administrator",
		Site: Permissions(map[string][]Action{
			ResourceWildcard.Type: {WildcardSymbol},
		}),
		User: []Permission{},
	},

	// auditor can read every resource but change nothing.
	auditor: {
		Name:        auditor,
		DisplayName: "System Auditor",
		Site: Permissions(map[string][]Action{
			ResourceWildcard.Type: {ActionRead},
		}),
		User: []Permission{},
	},

	// member grants all actions on resources owned by the user, and a
	// few site-wide reads every authenticated user needs.
	member: {
		Name:        member,
		DisplayName: "",
		Site: Permissions(map[string][]Action{
			// All users can read all other users and know they exist.
			ResourceUser.Type:     {ActionRead},
			ResourceInstance.Type: {ActionRead},
		}),
		User: Permissions(map[string][]Action{
			ResourceWildcard.Type: {WildcardSymbol},
		}),
	},
}

// IsBuiltinRole returns true if the name matches a built-in role.
func IsBuiltinRole(name string) bool {
	_, ok := builtInRoles[name]
	return ok
}

// BuiltinRoleNames returns the list of assignable built-in role names.
func BuiltinRoleNames() []string {
	return []string{administrator, auditor, member}
}

// RoleByName returns the permissions associated with a built-in role name.
func RoleByName(name string) (Role, error) {
	role, ok := builtInRoles[name]
	if !ok {
		return Role{}, xerrors.Errorf("role %q not found", name)
	}
	return role, nil
}

// RolesByNames expands a list of built-in role names.
func RolesByNames(names []string) ([]Role, error) {
	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, err := RoleByName(name)
		if err != nil {
			return nil, xerrors.Errorf("expand role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, nil
}
