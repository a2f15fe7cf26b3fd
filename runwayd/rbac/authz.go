package rbac

import (
	"context"

	"golang.org/x/xerrors"
)

// Authorizer checks a subject against an action on an object.
type Authorizer interface {
	Authorize(ctx context.Context, subject Subject, action Action, object Object) error
}

// Filter takes in a list of objects, and will filter the list removing all
// the elements the subject does not have permission for. All objects must be
// of the same type.
func Filter[O Objecter](ctx context.Context, auth Authorizer, subject Subject, action Action, objects []O) ([]O, error) {
	if len(objects) == 0 {
		// Nothing to filter.
		return objects, nil
	}
	objectType := objects[0].RBACObject().Type
	filtered := make([]O, 0, len(objects))
	for _, o := range objects {
		rbacObj := o.RBACObject()
		if rbacObj.Type != objectType {
			return nil, xerrors.Errorf("object types must be uniform across the set (%s), found %s", objectType, rbacObj.Type)
		}
		err := auth.Authorize(ctx, subject, action, rbacObj)
		if err == nil {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

// Evaluator is the built-in Authorizer. A matching negated permission at
// any level denies the action. Otherwise the action is allowed if any level
// grants it. User level permissions only apply to objects the subject owns.
type Evaluator struct{}

var _ Authorizer = Evaluator{}

func NewAuthorizer() Evaluator {
	return Evaluator{}
}

func (Evaluator) Authorize(_ context.Context, subject Subject, action Action, object Object) error {
	allowed := false
	for _, role := range subject.Roles {
		verdict := evalLevel(role.Site, action, object)
		if verdict == verdictDeny {
			return ForbiddenWithInternal(xerrors.Errorf("site level deny in role %q", role.Name), subject, action, object)
		}
		if verdict == verdictAllow {
			allowed = true
		}

		if object.Owner != "" && object.Owner == subject.ID {
			verdict = evalLevel(role.User, action, object)
			if verdict == verdictDeny {
				return ForbiddenWithInternal(xerrors.Errorf("user level deny in role %q", role.Name), subject, action, object)
			}
			if verdict == verdictAllow {
				allowed = true
			}
		}
	}
	if !allowed {
		return ForbiddenWithInternal(xerrors.Errorf("no permission grants %q on %s", action, object.String()), subject, action, object)
	}
	return nil
}

type verdict int

const (
	verdictAbstain verdict = iota
	verdictAllow
	verdictDeny
)

func evalLevel(perms []Permission, action Action, object Object) verdict {
	v := verdictAbstain
	for _, perm := range perms {
		if !permMatches(perm, action, object) {
			continue
		}
		if perm.Negate {
			return verdictDeny
		}
		v = verdictAllow
	}
	return v
}

func permMatches(perm Permission, action Action, object Object) bool {
	if perm.ResourceType != WildcardSymbol && perm.ResourceType != object.Type {
		return false
	}
	if perm.ResourceID != WildcardSymbol && perm.ResourceID != object.ID {
		return false
	}
	if string(perm.Action) != WildcardSymbol && perm.Action != action {
		return false
	}
	return true
}
