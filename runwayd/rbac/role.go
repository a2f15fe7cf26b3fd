package rbac

import (
	"strings"

	"golang.org/x/xerrors"
)

// Permission is the smallest unit of access. A permission string, as stored
// on a role definition, is "<resource_type>.<action>", e.g.
// "job_template.execute".
type Permission struct {
	// Negate makes this a negative permission. A matching negated
	// permission denies the action regardless of other grants.
	Negate       bool   `json:"negate"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Action       Action `json:"action"`
}

func (p Permission) String() string {
	return p.ResourceType + "." + string(p.Action)
}

// ParsePermission parses a "<resource_type>.<action>" permission string and
// validates it against the resource type table.
func ParsePermission(s string) (Permission, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return Permission{}, xerrors.Errorf("invalid permission %q, expected \"<resource_type>.<action>\"", s)
	}
	perm := Permission{
		ResourceType: s[:idx],
		ResourceID:   WildcardSymbol,
		Action:       Action(s[idx+1:]),
	}
	if err := (Object{Type: perm.ResourceType}).ValidAction(perm.Action); err != nil {
		return Permission{}, err
	}
	return perm, nil
}

// Role is a set of permissions at two levels:
// - Site level permissions apply to every object.
// - User level permissions only apply to objects owned by the subject.
// In most cases, you will just want to use the built-in roles.
type Role struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Site        []Permission `json:"site"`
	User        []Permission `json:"user"`
}

// Subject is a struct that contains all the elements of a subject in an rbac
// authorize.
type Subject struct {
	ID    string
	Roles []Role
}

// Permissions is just a helper function to make building roles that list out
// resources and actions a bit easier.
func Permissions(perms map[string][]Action) []Permission {
	list := make([]Permission, 0, len(perms))
	for t, actions := range perms {
		for _, action := range actions {
			list = append(list, Permission{
				ResourceType: t,
				ResourceID:   WildcardSymbol,
				Action:       action,
			})
		}
	}
	return list
}

// ValidatePermissions parses every permission string and ensures each one is
// valid for the given content type. The wildcard content type accepts any
// valid permission.
func ValidatePermissions(contentType string, permissions []string) ([]Permission, error) {
	if _, ok := ResourceTypes[contentType]; !ok {
		return nil, xerrors.Errorf("invalid content type %q", contentType)
	}
	parsed := make([]Permission, 0, len(permissions))
	for _, s := range permissions {
		perm, err := ParsePermission(s)
		if err != nil {
			return nil, err
		}
		if contentType != WildcardSymbol && perm.ResourceType != contentType {
			return nil, xerrors.Errorf("permission %q is not scoped to content type %q", s, contentType)
		}
		parsed = append(parsed, perm)
	}
	return parsed, nil
}

// ObjectRole returns a role granting the given permissions against a single
// object. Role user assignments expand into object roles during
// authorization.
func ObjectRole(name string, objectID string, perms []Permission) Role {
	scoped := make([]Permission, 0, len(perms))
	for _, p := range perms {
		p.ResourceID = objectID
		scoped = append(scoped, p)
	}
	return Role{
		Name: "object:" + name + ":" + objectID,
		Site: scoped,
	}
}
