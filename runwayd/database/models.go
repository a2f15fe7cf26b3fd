package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/runwayhq/runway/runwayd/rbac"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type User struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	Email          string         `db:"email" json:"email"`
	Username       string         `db:"username" json:"username"`
	HashedPassword []byte         `db:"hashed_password" json:"-"`
	Status         UserStatus     `db:"status" json:"status"`
	RBACRoles      pq.StringArray `db:"rbac_roles" json:"rbac_roles"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

func (u User) RBACObject() rbac.Object {
	return rbac.ResourceUser.WithID(u.ID)
}

type APIKey struct {
	ID           string    `db:"id" json:"id"`
	HashedSecret []byte    `db:"hashed_secret" json:"-"`
	UserID       uuid.UUID `db:"user_id" json:"user_id"`
	LastUsed     time.Time `db:"last_used" json:"last_used"`
	ExpiresAt    time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (k APIKey) RBACObject() rbac.Object {
	return rbac.ResourceAPIKey.WithIDString(k.ID).WithOwner(k.UserID.String())
}

type JobTemplate struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Description string          `db:"description" json:"description"`
	Playbook    string          `db:"playbook" json:"playbook"`
	Inventory   string          `db:"inventory" json:"inventory"`
	ExtraVars   json.RawMessage `db:"extra_vars" json:"extra_vars"`
	CreatedBy   uuid.UUID       `db:"created_by" json:"created_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

func (t JobTemplate) RBACObject() rbac.Object {
	return rbac.ResourceJobTemplate.WithID(t.ID).WithOwner(t.CreatedBy.String())
}

// RoleDefinition is a named bundle of permission strings scoped to a single
// content type. Built-in roles are not stored here.
type RoleDefinition struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description"`
	ContentType string         `db:"content_type" json:"content_type"`
	Permissions pq.StringArray `db:"permissions" json:"permissions"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

func (d RoleDefinition) RBACObject() rbac.Object {
	return rbac.ResourceRoleDefinition.WithID(d.ID)
}

// RoleAssignment binds a user to a role definition for a specific target
// object. The (user, role definition, object) triple is unique.
type RoleAssignment struct {
	ID               uuid.UUID `db:"id" json:"id"`
	UserID           uuid.UUID `db:"user_id" json:"user_id"`
	RoleDefinitionID uuid.UUID `db:"role_definition_id" json:"role_definition_id"`
	ObjectID         uuid.UUID `db:"object_id" json:"object_id"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

func (a RoleAssignment) RBACObject() rbac.Object {
	return rbac.ResourceRoleAssignment.WithID(a.ID)
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusWaiting    JobStatus = "waiting"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccessful JobStatus = "successful"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusError      JobStatus = "error"
)

// Active returns true while the job still occupies capacity somewhere.
func (s JobStatus) Active() bool {
	switch s {
	case JobStatusPending, JobStatusWaiting, JobStatusRunning:
		return true
	default:
		return false
	}
}

type Job struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	JobTemplateID uuid.UUID       `db:"job_template_id" json:"job_template_id"`
	Name          string          `db:"name" json:"name"`
	Playbook      string          `db:"playbook" json:"playbook"`
	Inventory     string          `db:"inventory" json:"inventory"`
	ExtraVars     json.RawMessage `db:"extra_vars" json:"extra_vars"`
	Status        JobStatus       `db:"status" json:"status"`
	Explanation   string          `db:"explanation" json:"explanation"`
	// WorkUnitID identifies the receptor work unit running this job on an
	// execution node. Empty until the job is handed to a runner.
	WorkUnitID  sql.NullString `db:"work_unit_id" json:"work_unit_id"`
	InstanceID  uuid.NullUUID  `db:"instance_id" json:"instance_id"`
	CreatedBy   uuid.UUID      `db:"created_by" json:"created_by"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at" json:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at" json:"completed_at"`
}

func (j Job) RBACObject() rbac.Object {
	return rbac.ResourceJob.WithID(j.ID).WithOwner(j.CreatedBy.String())
}

type JobEvent struct {
	ID        int64     `db:"id" json:"id"`
	JobID     uuid.UUID `db:"job_id" json:"job_id"`
	Counter   int32     `db:"counter" json:"counter"`
	EventType string    `db:"event_type" json:"event_type"`
	Stdout    string    `db:"stdout" json:"stdout"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type NodeType string

const (
	NodeTypeControl   NodeType = "control"
	NodeTypeExecution NodeType = "execution"
	NodeTypeHop       NodeType = "hop"
)

type NodeState string

const (
	NodeStateInstalled   NodeState = "installed"
	NodeStateReady       NodeState = "ready"
	NodeStateUnavailable NodeState = "unavailable"
	NodeStateOffline     NodeState = "offline"
)

// Instance is a node in the mesh. Control nodes dispatch work, execution
// nodes run it, hop nodes only relay traffic between the two.
type Instance struct {
	ID         uuid.UUID    `db:"id" json:"id"`
	Hostname   string       `db:"hostname" json:"hostname"`
	NodeType   NodeType     `db:"node_type" json:"node_type"`
	NodeState  NodeState    `db:"node_state" json:"node_state"`
	Capacity   int32        `db:"capacity" json:"capacity"`
	Version    string       `db:"version" json:"version"`
	Errors     string       `db:"errors" json:"errors"`
	LastSeenAt sql.NullTime `db:"last_seen_at" json:"last_seen_at"`
	CreatedAt  time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updated_at"`
}

func (i Instance) RBACObject() rbac.Object {
	return rbac.ResourceInstance.WithID(i.ID)
}

// IsLost reports whether the instance has missed enough heartbeats to be
// considered gone, relative to refTime.
func (i Instance) IsLost(refTime time.Time, lostAfter time.Duration) bool {
	if !i.LastSeenAt.Valid {
		return true
	}
	return refTime.Sub(i.LastSeenAt.Time) > lostAfter
}
