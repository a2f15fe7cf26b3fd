package rbac

// Action represents the allowed actions to be done on an object.
type Action string

const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
)

// WildcardSymbol matches all actions, resource types, and resource IDs.
const WildcardSymbol = "*"
