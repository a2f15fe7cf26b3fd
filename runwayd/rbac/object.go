package rbac

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ResourceTypes maps every authorizable resource type to the set of actions
// that are valid against it. Permission strings on role definitions are
// validated against this table.
var ResourceTypes = map[string][]Action{
	ResourceWildcard.Type:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute},
	ResourceUser.Type:           {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceAPIKey.Type:         {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceJobTemplate.Type:    {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute},
	ResourceJob.Type:            {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceRoleDefinition.Type: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceRoleAssignment.Type: {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
	ResourceInstance.Type:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete},
}

var (
	// ResourceWildcard represents all resource types.
	ResourceWildcard = Object{Type: WildcardSymbol}

	ResourceUser           = Object{Type: "user"}
	ResourceAPIKey         = Object{Type: "api_key"}
	ResourceJobTemplate    = Object{Type: "job_template"}
	ResourceJob            = Object{Type: "job"}
	ResourceRoleDefinition = Object{Type: "role_definition"}
	ResourceRoleAssignment = Object{Type: "role_assignment"}
	ResourceInstance       = Object{Type: "instance"}
)

// Object is used to create objects for authz checks when you have none in
// hand to run the check on. An example is if you want to list all job
// templates, you can create an Object that represents the set of templates
// you are trying to get access to.
type Object struct {
	// ID is the resource's uuid.
	ID    string `json:"id"`
	Owner string `json:"owner"`

	// Type is "job_template", "user", etc.
	Type string `json:"type"`
}

// String is not perfect, but decent enough for human display.
func (z Object) String() string {
	var parts []string
	if z.Owner != "" {
		parts = append(parts, fmt.Sprintf("owner:%s", z.Owner))
	}
	parts = append(parts, z.Type)
	if z.ID != "" {
		parts = append(parts, fmt.Sprintf("id:%s", z.ID))
	}
	return strings.Join(parts, ".")
}

// ValidAction checks if the action is valid for the given object type.
func (z Object) ValidAction(action Action) error {
	actions, ok := ResourceTypes[z.Type]
	if !ok {
		return fmt.Errorf("invalid type %q", z.Type)
	}
	for _, a := range actions {
		if a == action {
			return nil
		}
	}
	return fmt.Errorf("invalid action %q for type %q", action, z.Type)
}

func (z Object) RBACObject() Object {
	return z
}

// All returns an object matching all resources of the same type.
func (z Object) All() Object {
	return Object{Type: z.Type}
}

func (z Object) WithIDString(id string) Object {
	return Object{
		ID:    id,
		Owner: z.Owner,
		Type:  z.Type,
	}
}

func (z Object) WithID(id uuid.UUID) Object {
	return Object{
		ID:    id.String(),
		Owner: z.Owner,
		Type:  z.Type,
	}
}

// WithOwner adds an OwnerID to the resource.
func (z Object) WithOwner(ownerID string) Object {
	return Object{
		ID:    z.ID,
		Owner: ownerID,
		Type:  z.Type,
	}
}

// Objecter returns the RBAC object for itself.
type Objecter interface {
	RBACObject() Object
}
