// Package dbpostgres implements database.Store against PostgreSQL.
package dbpostgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/xerrors"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/migrations"
)

// Connect opens a connection pool to the given PostgreSQL URL, runs
// pending migrations, and returns a Store backed by it.
func Connect(ctx context.Context, dbURL string) (database.Store, *sql.DB, error) {
	sqlDB, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, nil, xerrors.Errorf("open postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	err = sqlDB.PingContext(pingCtx)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, xerrors.Errorf("ping postgres: %w", err)
	}

	err = migrations.Up(sqlDB)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, xerrors.Errorf("migrate up: %w", err)
	}

	return New(sqlDB), sqlDB, nil
}

// New wraps an existing connection pool. Migrations are the caller's
// responsibility.
func New(sqlDB *sql.DB) database.Store {
	db := sqlx.NewDb(sqlDB, "postgres")
	return &sqlQuerier{db: db, sdb: db}
}

type sqlQuerier struct {
	// sdb is the root connection pool. db is either the pool or the
	// transaction this querier runs inside.
	sdb *sqlx.DB
	db  sqlx.ExtContext
}

func (q *sqlQuerier) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := q.sdb.PingContext(ctx)
	return time.Since(start), err
}

func (q *sqlQuerier) InTx(fn func(database.Store) error) error {
	if _, ok := q.db.(*sqlx.Tx); ok {
		// Already in a transaction, run the function with the same one.
		return fn(q)
	}
	tx, err := q.sdb.BeginTxx(context.Background(), nil)
	if err != nil {
		return xerrors.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	err = fn(&sqlQuerier{sdb: q.sdb, db: tx})
	if err != nil {
		return xerrors.Errorf("execute transaction: %w", err)
	}
	err = tx.Commit()
	if err != nil {
		return xerrors.Errorf("commit transaction: %w", err)
	}
	return nil
}

func getOne[T any](ctx context.Context, q sqlx.ExtContext, query string, args ...any) (T, error) {
	var item T
	err := sqlx.GetContext(ctx, q, &item, query, args...)
	return item, err
}

func selectAll[T any](ctx context.Context, q sqlx.ExtContext, query string, args ...any) ([]T, error) {
	items := []T{}
	err := sqlx.SelectContext(ctx, q, &items, query, args...)
	return items, err
}

const userColumns = `id, email, username, hashed_password, status, rbac_roles, created_at, updated_at`

func (q *sqlQuerier) InsertUser(ctx context.Context, arg database.InsertUserParams) (database.User, error) {
	const query = `
INSERT INTO users (id, email, username, hashed_password, status, rbac_roles, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'active', $5, $6, $7)
RETURNING ` + userColumns
	return getOne[database.User](ctx, q.db, query,
		arg.ID, arg.Email, arg.Username, arg.HashedPassword, arg.RBACRoles, arg.CreatedAt, arg.UpdatedAt)
}

func (q *sqlQuerier) GetUserByID(ctx context.Context, id uuid.UUID) (database.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return getOne[database.User](ctx, q.db, query, id)
}

func (q *sqlQuerier) GetUserByEmailOrUsername(ctx context.Context, arg database.GetUserByEmailOrUsernameParams) (database.User, error) {
	const query = `
SELECT ` + userColumns + `
FROM users
WHERE ($1 != '' AND LOWER(email) = LOWER($1))
   OR ($2 != '' AND LOWER(username) = LOWER($2))
LIMIT 1`
	return getOne[database.User](ctx, q.db, query, arg.Email, arg.Username)
}

func (q *sqlQuerier) GetUsers(ctx context.Context) ([]database.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users ORDER BY created_at ASC`
	return selectAll[database.User](ctx, q.db, query)
}

func (q *sqlQuerier) GetUserCount(ctx context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM users`
	return getOne[int64](ctx, q.db, query)
}

func (q *sqlQuerier) UpdateUserProfile(ctx context.Context, arg database.UpdateUserProfileParams) (database.User, error) {
	const query = `
UPDATE users SET email = $2, username = $3, updated_at = $4
WHERE id = $1
RETURNING ` + userColumns
	return getOne[database.User](ctx, q.db, query, arg.ID, arg.Email, arg.Username, arg.UpdatedAt)
}

func (q *sqlQuerier) UpdateUserRoles(ctx context.Context, arg database.UpdateUserRolesParams) (database.User, error) {
	const query = `
UPDATE users SET rbac_roles = $2, updated_at = $3
WHERE id = $1
RETURNING ` + userColumns
	return getOne[database.User](ctx, q.db, query, arg.ID, arg.GrantedRoles, arg.UpdatedAt)
}

func (q *sqlQuerier) UpdateUserStatus(ctx context.Context, arg database.UpdateUserStatusParams) (database.User, error) {
	const query = `
UPDATE users SET status = $2, updated_at = $3
WHERE id = $1
RETURNING ` + userColumns
	return getOne[database.User](ctx, q.db, query, arg.ID, arg.Status, arg.UpdatedAt)
}

func (q *sqlQuerier) DeleteUser(ctx context.Context, id uuid.UUID) error {
	return execExpectOne(ctx, q.db, `DELETE FROM users WHERE id = $1`, id)
}

const apiKeyColumns = `id, hashed_secret, user_id, last_used, expires_at, created_at, updated_at`

func (q *sqlQuerier) InsertAPIKey(ctx context.Context, arg database.InsertAPIKeyParams) (database.APIKey, error) {
	const query = `
INSERT INTO api_keys (id, hashed_secret, user_id, last_used, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + apiKeyColumns
	return getOne[database.APIKey](ctx, q.db, query,
		arg.ID, arg.HashedSecret, arg.UserID, arg.LastUsed, arg.ExpiresAt, arg.CreatedAt, arg.UpdatedAt)
}

func (q *sqlQuerier) GetAPIKeyByID(ctx context.Context, id string) (database.APIKey, error) {
	const query = `SELECT ` + apiKeyColumns + ` FROM api_keys WHERE id = $1`
	return getOne[database.APIKey](ctx, q.db, query, id)
}

func (q *sqlQuerier) UpdateAPIKeyLastUsed(ctx context.Context, arg database.UpdateAPIKeyLastUsedParams) error {
	const query = `
UPDATE api_keys SET last_used = $2, expires_at = $3, updated_at = $4
WHERE id = $1`
	return execExpectOne(ctx, q.db, query, arg.ID, arg.LastUsed, arg.ExpiresAt, arg.UpdatedAt)
}

func (q *sqlQuerier) DeleteAPIKeyByID(ctx context.Context, id string) error {
	return execExpectOne(ctx, q.db, `DELETE FROM api_keys WHERE id = $1`, id)
}

const jobTemplateColumns = `id, name, description, playbook, inventory, extra_vars, created_by, created_at, updated_at`

func (q *sqlQuerier) InsertJobTemplate(ctx context.Context, arg database.InsertJobTemplateParams) (database.JobTemplate, error) {
	const query = `
INSERT INTO job_templates (id, name, description, playbook, inventory, extra_vars, created_by, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + jobTemplateColumns
	return getOne[database.JobTemplate](ctx, q.db, query,
		arg.ID, arg.Name, arg.Description, arg.Playbook, arg.Inventory, arg.ExtraVars,
		arg.CreatedBy, arg.CreatedAt, arg.UpdatedAt)
}

func (q *sqlQuerier) GetJobTemplateByID(ctx context.Context, id uuid.UUID) (database.JobTemplate, error) {
	const query = `SELECT ` + jobTemplateColumns + ` FROM job_templates WHERE id = $1`
	return getOne[database.JobTemplate](ctx, q.db, query, id)
}

func (q *sqlQuerier) GetJobTemplateByName(ctx context.Context, name string) (database.JobTemplate, error) {
	const query = `SELECT ` + jobTemplateColumns + ` FROM job_templates WHERE LOWER(name) = LOWER($1)`
	return getOne[database.JobTemplate](ctx, q.db, query, name)
}

func (q *sqlQuerier) GetJobTemplates(ctx context.Context) ([]database.JobTemplate, error) {
	const query = `SELECT ` + jobTemplateColumns + ` FROM job_templates ORDER BY created_at ASC`
	return selectAll[database.JobTemplate](ctx, q.db, query)
}

func (q *sqlQuerier) UpdateJobTemplate(ctx context.Context, arg database.UpdateJobTemplateParams) (database.JobTemplate, error) {
	const query = `
UPDATE job_templates
SET name = $2, description = $3, playbook = $4, inventory = $5, extra_vars = $6, updated_at = $7
WHERE id = $1
RETURNING ` + jobTemplateColumns
	return getOne[database.JobTemplate](ctx, q.db, query,
		arg.ID, arg.Name, arg.Description, arg.Playbook, arg.Inventory, arg.ExtraVars, arg.UpdatedAt)
}

func (q *sqlQuerier) DeleteJobTemplate(ctx context.Context, id uuid.UUID) error {
	return execExpectOne(ctx, q.db, `DELETE FROM job_templates WHERE id = $1`, id)
}

const roleDefinitionColumns = `id, name, description, content_type, permissions, created_at, updated_at`

func (q *sqlQuerier) InsertRoleDefinition(ctx context.Context, arg database.InsertRoleDefinitionParams) (database.RoleDefinition, error) {
	const query = `
INSERT INTO role_definitions (id, name, description, content_type, permissions, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + roleDefinitionColumns
	return getOne[database.RoleDefinition](ctx, q.db, query,
		arg.ID, arg.Name, arg.Description, arg.ContentType, arg.Permissions, arg.CreatedAt, arg.UpdatedAt)
}

func (q *sqlQuerier) GetRoleDefinitionByID(ctx context.Context, id uuid.UUID) (database.RoleDefinition, error) {
	const query = `SELECT ` + roleDefinitionColumns + ` FROM role_definitions WHERE id = $1`
	return getOne[database.RoleDefinition](ctx, q.db, query, id)
}

func (q *sqlQuerier) GetRoleDefinitionByName(ctx context.Context, name string) (database.RoleDefinition, error) {
	const query = `SELECT ` + roleDefinitionColumns + ` FROM role_definitions WHERE LOWER(name) = LOWER($1)`
	return getOne[database.RoleDefinition](ctx, q.db, query, name)
}

func (q *sqlQuerier) GetRoleDefinitions(ctx context.Context) ([]database.RoleDefinition, error) {
	const query = `SELECT ` + roleDefinitionColumns + ` FROM role_definitions ORDER BY created_at ASC`
	return selectAll[database.RoleDefinition](ctx, q.db, query)
}

func (q *sqlQuerier) UpdateRoleDefinition(ctx context.Context, arg database.UpdateRoleDefinitionParams) (database.RoleDefinition, error) {
	const query = `
UPDATE role_definitions
SET name = $2, description = $3, permissions = $4, updated_at = $5
WHERE id = $1
RETURNING ` + roleDefinitionColumns
	return getOne[database.RoleDefinition](ctx, q.db, query,
		arg.ID, arg.Name, arg.Description, arg.Permissions, arg.UpdatedAt)
}

func (q *sqlQuerier) DeleteRoleDefinition(ctx context.Context, id uuid.UUID) error {
	return execExpectOne(ctx, q.db, `DELETE FROM role_definitions WHERE id = $1`, id)
}

const roleAssignmentColumns = `id, user_id, role_definition_id, object_id, created_at`

func (q *sqlQuerier) InsertRoleAssignment(ctx context.Context, arg database.InsertRoleAssignmentParams) (database.RoleAssignment, error) {
	const query = `
INSERT INTO role_assignments (id, user_id, role_definition_id, object_id, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + roleAssignmentColumns
	return getOne[database.RoleAssignment](ctx, q.db, query,
		arg.ID, arg.UserID, arg.RoleDefinitionID, arg.ObjectID, arg.CreatedAt)
}

func (q *sqlQuerier) GetRoleAssignmentByID(ctx context.Context, id uuid.UUID) (database.RoleAssignment, error) {
	const query = `SELECT ` + roleAssignmentColumns + ` FROM role_assignments WHERE id = $1`
	return getOne[database.RoleAssignment](ctx, q.db, query, id)
}

func (q *sqlQuerier) GetRoleAssignmentByTriple(ctx context.Context, arg database.GetRoleAssignmentByTripleParams) (database.RoleAssignment, error) {
	const query = `
SELECT ` + roleAssignmentColumns + `
FROM role_assignments
WHERE user_id = $1 AND role_definition_id = $2 AND object_id = $3`
	return getOne[database.RoleAssignment](ctx, q.db, query, arg.UserID, arg.RoleDefinitionID, arg.ObjectID)
}

func (q *sqlQuerier) GetRoleAssignments(ctx context.Context, arg database.GetRoleAssignmentsParams) ([]database.RoleAssignment, error) {
	const query = `
SELECT ` + roleAssignmentColumns + `
FROM role_assignments
WHERE ($1::uuid = '00000000-0000-0000-0000-000000000000' OR user_id = $1)
  AND ($2::uuid = '00000000-0000-0000-0000-000000000000' OR role_definition_id = $2)
  AND ($3::uuid = '00000000-0000-0000-0000-000000000000' OR object_id = $3)
ORDER BY created_at ASC`
	return selectAll[database.RoleAssignment](ctx, q.db, query, arg.UserID, arg.RoleDefinitionID, arg.ObjectID)
}

func (q *sqlQuerier) DeleteRoleAssignment(ctx context.Context, id uuid.UUID) error {
	return execExpectOne(ctx, q.db, `DELETE FROM role_assignments WHERE id = $1`, id)
}

const jobColumns = `id, job_template_id, name, playbook, inventory, extra_vars, status, explanation, work_unit_id, instance_id, created_by, created_at, started_at, completed_at`

func (q *sqlQuerier) InsertJob(ctx context.Context, arg database.InsertJobParams) (database.Job, error) {
	const query = `
INSERT INTO jobs (id, job_template_id, name, playbook, inventory, extra_vars, status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + jobColumns
	return getOne[database.Job](ctx, q.db, query,
		arg.ID, arg.JobTemplateID, arg.Name, arg.Playbook, arg.Inventory, arg.ExtraVars,
		arg.Status, arg.CreatedBy, arg.CreatedAt)
}

func (q *sqlQuerier) GetJobByID(ctx context.Context, id uuid.UUID) (database.Job, error) {
	const query = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return getOne[database.Job](ctx, q.db, query, id)
}

func (q *sqlQuerier) GetJobs(ctx context.Context, arg database.GetJobsParams) ([]database.Job, error) {
	const query = `
SELECT ` + jobColumns + `
FROM jobs
WHERE ($1 = '' OR status = $1)
  AND ($2::uuid = '00000000-0000-0000-0000-000000000000' OR instance_id = $2)
  AND ($3::uuid = '00000000-0000-0000-0000-000000000000' OR job_template_id = $3)
ORDER BY created_at ASC`
	return selectAll[database.Job](ctx, q.db, query, arg.Status, arg.InstanceID, arg.JobTemplateID)
}

func (q *sqlQuerier) UpdateJobStatus(ctx context.Context, arg database.UpdateJobStatusParams) (database.Job, error) {
	const query = `
UPDATE jobs
SET status = $2,
    explanation = $3,
    work_unit_id = COALESCE($4, work_unit_id),
    instance_id = COALESCE($5, instance_id),
    started_at = COALESCE($6, started_at),
    completed_at = COALESCE($7, completed_at)
WHERE id = $1
  AND (cardinality($8::text[]) = 0 OR status = ANY($8::text[]))
RETURNING ` + jobColumns
	fromStatuses := make([]string, 0, len(arg.FromStatuses))
	for _, status := range arg.FromStatuses {
		fromStatuses = append(fromStatuses, string(status))
	}
	return getOne[database.Job](ctx, q.db, query,
		arg.ID, arg.Status, arg.Explanation, arg.WorkUnitID, arg.InstanceID, arg.StartedAt, arg.CompletedAt,
		pq.Array(fromStatuses))
}

const jobEventColumns = `id, job_id, counter, event_type, stdout, created_at`

func (q *sqlQuerier) InsertJobEvent(ctx context.Context, arg database.InsertJobEventParams) (database.JobEvent, error) {
	const query = `
INSERT INTO job_events (job_id, counter, event_type, stdout, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + jobEventColumns
	return getOne[database.JobEvent](ctx, q.db, query,
		arg.JobID, arg.Counter, arg.EventType, arg.Stdout, arg.CreatedAt)
}

func (q *sqlQuerier) GetJobEventsByJobID(ctx context.Context, jobID uuid.UUID) ([]database.JobEvent, error) {
	const query = `SELECT ` + jobEventColumns + ` FROM job_events WHERE job_id = $1 ORDER BY counter ASC`
	return selectAll[database.JobEvent](ctx, q.db, query, jobID)
}

const instanceColumns = `id, hostname, node_type, node_state, capacity, version, errors, last_seen_at, created_at, updated_at`

func (q *sqlQuerier) UpsertInstance(ctx context.Context, arg database.UpsertInstanceParams) (database.Instance, error) {
	const query = `
INSERT INTO instances (id, hostname, node_type, node_state, capacity, version, last_seen_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (LOWER(hostname)) DO UPDATE
SET node_type = $3,
    node_state = $4,
    capacity = $5,
    version = $6,
    last_seen_at = $7,
    updated_at = $9
RETURNING ` + instanceColumns
	return getOne[database.Instance](ctx, q.db, query,
		arg.ID, arg.Hostname, arg.NodeType, arg.NodeState, arg.Capacity, arg.Version,
		arg.LastSeenAt, arg.CreatedAt, arg.UpdatedAt)
}

func (q *sqlQuerier) GetInstanceByID(ctx context.Context, id uuid.UUID) (database.Instance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM instances WHERE id = $1`
	return getOne[database.Instance](ctx, q.db, query, id)
}

func (q *sqlQuerier) GetInstanceByHostname(ctx context.Context, hostname string) (database.Instance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM instances WHERE LOWER(hostname) = LOWER($1)`
	return getOne[database.Instance](ctx, q.db, query, hostname)
}

func (q *sqlQuerier) GetInstances(ctx context.Context) ([]database.Instance, error) {
	const query = `SELECT ` + instanceColumns + ` FROM instances ORDER BY hostname ASC`
	return selectAll[database.Instance](ctx, q.db, query)
}

func (q *sqlQuerier) UpdateInstanceHealth(ctx context.Context, arg database.UpdateInstanceHealthParams) (database.Instance, error) {
	const query = `
UPDATE instances
SET node_state = $2, capacity = $3, version = $4, errors = $5, last_seen_at = $6, updated_at = $7
WHERE id = $1
RETURNING ` + instanceColumns
	return getOne[database.Instance](ctx, q.db, query,
		arg.ID, arg.NodeState, arg.Capacity, arg.Version, arg.Errors, arg.LastSeenAt, arg.UpdatedAt)
}

func (q *sqlQuerier) UpdateInstanceLastSeen(ctx context.Context, arg database.UpdateInstanceLastSeenParams) error {
	const query = `
UPDATE instances SET last_seen_at = $2, updated_at = $3
WHERE id = $1`
	return execExpectOne(ctx, q.db, query, arg.ID, arg.LastSeenAt, arg.UpdatedAt)
}

func (q *sqlQuerier) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	return execExpectOne(ctx, q.db, `DELETE FROM instances WHERE id = $1`, id)
}

// execExpectOne runs a statement and returns sql.ErrNoRows if it touched
// nothing, so delete-then-404 behavior matches the in-memory store.
func execExpectOne(ctx context.Context, db sqlx.ExtContext, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
