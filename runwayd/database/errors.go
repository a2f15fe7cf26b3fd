package database

import (
	"context"
	"errors"

	"github.com/lib/pq"
)

// UniqueConstraint names a unique constraint in the schema. The in-memory
// store fabricates pq errors carrying the same constraint names.
type UniqueConstraint string

const (
	UniqueUsersEmailKey             UniqueConstraint = "users_email_key"
	UniqueUsersUsernameKey          UniqueConstraint = "users_username_key"
	UniqueJobTemplatesNameKey       UniqueConstraint = "job_templates_name_key"
	UniqueRoleDefinitionsNameKey    UniqueConstraint = "role_definitions_name_key"
	UniqueRoleAssignmentsTripleKey  UniqueConstraint = "role_assignments_user_role_object_key"
	UniqueInstancesHostnameKey      UniqueConstraint = "instances_hostname_key"
	UniqueAPIKeysPkey               UniqueConstraint = "api_keys_pkey"
)

// IsUniqueViolation checks if the error is due to a unique violation.
// If one or more specific unique constraints are given as arguments,
// the error must be caused by one of them. If no constraints are given,
// this function returns true for any unique violation.
func IsUniqueViolation(err error, uniqueConstraints ...UniqueConstraint) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() == "unique_violation" {
			if len(uniqueConstraints) == 0 {
				return true
			}
			for _, uc := range uniqueConstraints {
				if pqErr.Constraint == string(uc) {
					return true
				}
			}
		}
	}

	return false
}

// IsQueryCanceledError checks if the error is due to a query being canceled.
func IsQueryCanceledError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "57014" // query_canceled
	} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	return false
}
