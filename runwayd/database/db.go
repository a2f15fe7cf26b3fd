// Package database connects to external services for stateful storage.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store contains all queryable database functions.
type Store interface {
	querier

	Ping(ctx context.Context) (time.Duration, error)
	// InTx performs database operations inside a transaction.
	InTx(func(Store) error) error
}

type querier interface {
	// Users
	InsertUser(ctx context.Context, arg InsertUserParams) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByEmailOrUsername(ctx context.Context, arg GetUserByEmailOrUsernameParams) (User, error)
	GetUsers(ctx context.Context) ([]User, error)
	GetUserCount(ctx context.Context) (int64, error)
	UpdateUserProfile(ctx context.Context, arg UpdateUserProfileParams) (User, error)
	UpdateUserRoles(ctx context.Context, arg UpdateUserRolesParams) (User, error)
	UpdateUserStatus(ctx context.Context, arg UpdateUserStatusParams) (User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// API keys
	InsertAPIKey(ctx context.Context, arg InsertAPIKeyParams) (APIKey, error)
	GetAPIKeyByID(ctx context.Context, id string) (APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, arg UpdateAPIKeyLastUsedParams) error
	DeleteAPIKeyByID(ctx context.Context, id string) error

	// Job templates
	InsertJobTemplate(ctx context.Context, arg InsertJobTemplateParams) (JobTemplate, error)
	GetJobTemplateByID(ctx context.Context, id uuid.UUID) (JobTemplate, error)
	GetJobTemplateByName(ctx context.Context, name string) (JobTemplate, error)
	GetJobTemplates(ctx context.Context) ([]JobTemplate, error)
	UpdateJobTemplate(ctx context.Context, arg UpdateJobTemplateParams) (JobTemplate, error)
	DeleteJobTemplate(ctx context.Context, id uuid.UUID) error

	// Role definitions
	InsertRoleDefinition(ctx context.Context, arg InsertRoleDefinitionParams) (RoleDefinition, error)
	GetRoleDefinitionByID(ctx context.Context, id uuid.UUID) (RoleDefinition, error)
	GetRoleDefinitionByName(ctx context.Context, name string) (RoleDefinition, error)
	GetRoleDefinitions(ctx context.Context) ([]RoleDefinition, error)
	UpdateRoleDefinition(ctx context.Context, arg UpdateRoleDefinitionParams) (RoleDefinition, error)
	DeleteRoleDefinition(ctx context.Context, id uuid.UUID) error

	// Role assignments
	InsertRoleAssignment(ctx context.Context, arg InsertRoleAssignmentParams) (RoleAssignment, error)
	GetRoleAssignmentByID(ctx context.Context, id uuid.UUID) (RoleAssignment, error)
	GetRoleAssignmentByTriple(ctx context.Context, arg GetRoleAssignmentByTripleParams) (RoleAssignment, error)
	GetRoleAssignments(ctx context.Context, arg GetRoleAssignmentsParams) ([]RoleAssignment, error)
	DeleteRoleAssignment(ctx context.Context, id uuid.UUID) error

	// Jobs
	InsertJob(ctx context.Context, arg InsertJobParams) (Job, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (Job, error)
	GetJobs(ctx context.Context, arg GetJobsParams) ([]Job, error)
	UpdateJobStatus(ctx context.Context, arg UpdateJobStatusParams) (Job, error)

	// Job events
	InsertJobEvent(ctx context.Context, arg InsertJobEventParams) (JobEvent, error)
	GetJobEventsByJobID(ctx context.Context, jobID uuid.UUID) ([]JobEvent, error)

	// Instances
	UpsertInstance(ctx context.Context, arg UpsertInstanceParams) (Instance, error)
	GetInstanceByID(ctx context.Context, id uuid.UUID) (Instance, error)
	GetInstanceByHostname(ctx context.Context, hostname string) (Instance, error)
	GetInstances(ctx context.Context) ([]Instance, error)
	UpdateInstanceHealth(ctx context.Context, arg UpdateInstanceHealthParams) (Instance, error)
	UpdateInstanceLastSeen(ctx context.Context, arg UpdateInstanceLastSeenParams) error
	DeleteInstance(ctx context.Context, id uuid.UUID) error
}

type InsertUserParams struct {
	ID             uuid.UUID
	Email          string
	Username       string
	HashedPassword []byte
	RBACRoles      pq.StringArray
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type GetUserByEmailOrUsernameParams struct {
	Email    string
	Username string
}

type UpdateUserProfileParams struct {
	ID        uuid.UUID
	Email     string
	Username  string
	UpdatedAt time.Time
}

type UpdateUserRolesParams struct {
	ID           uuid.UUID
	GrantedRoles pq.StringArray
	UpdatedAt    time.Time
}

type UpdateUserStatusParams struct {
	ID        uuid.UUID
	Status    UserStatus
	UpdatedAt time.Time
}

type InsertAPIKeyParams struct {
	ID           string
	HashedSecret []byte
	UserID       uuid.UUID
	LastUsed     time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UpdateAPIKeyLastUsedParams struct {
	ID        string
	LastUsed  time.Time
	ExpiresAt time.Time
	UpdatedAt time.Time
}

type InsertJobTemplateParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Playbook    string
	Inventory   string
	ExtraVars   json.RawMessage
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type UpdateJobTemplateParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Playbook    string
	Inventory   string
	ExtraVars   json.RawMessage
	UpdatedAt   time.Time
}

type InsertRoleDefinitionParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	ContentType string
	Permissions pq.StringArray
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type UpdateRoleDefinitionParams struct {
	ID          uuid.UUID
	Name        string
	Description string
	Permissions pq.StringArray
	UpdatedAt   time.Time
}

type InsertRoleAssignmentParams struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	RoleDefinitionID uuid.UUID
	ObjectID         uuid.UUID
	CreatedAt        time.Time
}

type GetRoleAssignmentByTripleParams struct {
	UserID           uuid.UUID
	RoleDefinitionID uuid.UUID
	ObjectID         uuid.UUID
}

// GetRoleAssignmentsParams filters assignments. Zero-value fields are
// ignored.
type GetRoleAssignmentsParams struct {
	UserID           uuid.UUID
	RoleDefinitionID uuid.UUID
	ObjectID         uuid.UUID
}

type InsertJobParams struct {
	ID            uuid.UUID
	JobTemplateID uuid.UUID
	Name          string
	Playbook      string
	Inventory     string
	ExtraVars     json.RawMessage
	Status        JobStatus
	CreatedBy     uuid.UUID
	CreatedAt     time.Time
}

// GetJobsParams filters jobs. Zero-value fields are ignored.
type GetJobsParams struct {
	Status        JobStatus
	InstanceID    uuid.UUID
	JobTemplateID uuid.UUID
}

type UpdateJobStatusParams struct {
	ID          uuid.UUID
	Status      JobStatus
	Explanation string
	WorkUnitID  sql.NullString
	InstanceID  uuid.NullUUID
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
	// FromStatuses, when set, makes the update conditional: it applies
	// only while the job is still in one of these statuses and returns
	// sql.ErrNoRows otherwise. This is how the dispatcher avoids
	// reverting a cancel that landed between its read and its write.
	FromStatuses []JobStatus
}

type InsertJobEventParams struct {
	JobID     uuid.UUID
	Counter   int32
	EventType string
	Stdout    string
	CreatedAt time.Time
}

type UpsertInstanceParams struct {
	ID         uuid.UUID
	Hostname   string
	NodeType   NodeType
	NodeState  NodeState
	Capacity   int32
	Version    string
	LastSeenAt sql.NullTime
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type UpdateInstanceHealthParams struct {
	ID         uuid.UUID
	NodeState  NodeState
	Capacity   int32
	Version    string
	Errors     string
	LastSeenAt sql.NullTime
	UpdatedAt  time.Time
}

type UpdateInstanceLastSeenParams struct {
	ID         uuid.UUID
	LastSeenAt sql.NullTime
	UpdatedAt  time.Time
}
