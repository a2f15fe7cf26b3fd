// Package dbmem is an in-memory implementation of database.Store, used for
// tests and for running a server without Postgres.
package dbmem

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/runwayhq/runway/runwayd/database"
)

// New returns an in-memory fake of the database.
func New() database.Store {
	return &fakeQuerier{
		mutex: &sync.RWMutex{},
		data: &data{
			users:           make([]database.User, 0),
			apiKeys:         make([]database.APIKey, 0),
			jobTemplates:    make([]database.JobTemplate, 0),
			roleDefinitions: make([]database.RoleDefinition, 0),
			roleAssignments: make([]database.RoleAssignment, 0),
			jobs:            make([]database.Job, 0),
			jobEvents:       make([]database.JobEvent, 0),
			instances:       make([]database.Instance, 0),
		},
	}
}

func uniqueViolation(constraint database.UniqueConstraint) *pq.Error {
	return &pq.Error{
		Code:       "23505",
		Message:    "duplicate key value violates unique constraint",
		Constraint: string(constraint),
	}
}

type fakeQuerier struct {
	mutex rwMutex
	data  *data
}

type rwMutex interface {
	Lock()
	RLock()
	Unlock()
	RUnlock()
}

type data struct {
	users           []database.User
	apiKeys         []database.APIKey
	jobTemplates    []database.JobTemplate
	roleDefinitions []database.RoleDefinition
	roleAssignments []database.RoleAssignment
	jobs            []database.Job
	jobEvents       []database.JobEvent
	instances       []database.Instance

	lastJobEventID int64
}

func (*fakeQuerier) Ping(_ context.Context) (time.Duration, error) {
	return 0, nil
}

// InTx runs the function with the whole store locked. The fake has no
// rollback; callers must not rely on partial writes being undone.
func (q *fakeQuerier) InTx(fn func(database.Store) error) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return fn(&fakeQuerier{mutex: &inTxMutex{}, data: q.data})
}

// inTxMutex is a no-op, since inside a transaction we are already locked.
type inTxMutex struct{}

func (*inTxMutex) Lock()    {}
func (*inTxMutex) RLock()   {}
func (*inTxMutex) Unlock()  {}
func (*inTxMutex) RUnlock() {}

func (q *fakeQuerier) InsertUser(_ context.Context, arg database.InsertUserParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, user := range q.data.users {
		if strings.EqualFold(user.Email, arg.Email) {
			return database.User{}, uniqueViolation(database.UniqueUsersEmailKey)
		}
		if strings.EqualFold(user.Username, arg.Username) {
			return database.User{}, uniqueViolation(database.UniqueUsersUsernameKey)
		}
	}
	user := database.User{
		ID:             arg.ID,
		Email:          arg.Email,
		Username:       arg.Username,
		HashedPassword: arg.HashedPassword,
		Status:         database.UserStatusActive,
		RBACRoles:      arg.RBACRoles,
		CreatedAt:      arg.CreatedAt,
		UpdatedAt:      arg.UpdatedAt,
	}
	q.data.users = append(q.data.users, user)
	return user, nil
}

func (q *fakeQuerier) GetUserByID(_ context.Context, id uuid.UUID) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, user := range q.data.users {
		if user.ID == id {
			return user, nil
		}
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetUserByEmailOrUsername(_ context.Context, arg database.GetUserByEmailOrUsernameParams) (database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, user := range q.data.users {
		if arg.Email != "" && strings.EqualFold(user.Email, arg.Email) {
			return user, nil
		}
		if arg.Username != "" && strings.EqualFold(user.Username, arg.Username) {
			return user, nil
		}
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetUsers(_ context.Context) ([]database.User, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	users := make([]database.User, len(q.data.users))
	copy(users, q.data.users)
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (q *fakeQuerier) GetUserCount(_ context.Context) (int64, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	return int64(len(q.data.users)), nil
}

func (q *fakeQuerier) UpdateUserProfile(_ context.Context, arg database.UpdateUserProfileParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.data.users {
		if user.ID != arg.ID {
			continue
		}
		user.Email = arg.Email
		user.Username = arg.Username
		user.UpdatedAt = arg.UpdatedAt
		q.data.users[i] = user
		return user, nil
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) UpdateUserRoles(_ context.Context, arg database.UpdateUserRolesParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.data.users {
		if user.ID != arg.ID {
			continue
		}
		user.RBACRoles = arg.GrantedRoles
		user.UpdatedAt = arg.UpdatedAt
		q.data.users[i] = user
		return user, nil
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) UpdateUserStatus(_ context.Context, arg database.UpdateUserStatusParams) (database.User, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.data.users {
		if user.ID != arg.ID {
			continue
		}
		user.Status = arg.Status
		user.UpdatedAt = arg.UpdatedAt
		q.data.users[i] = user
		return user, nil
	}
	return database.User{}, sql.ErrNoRows
}

func (q *fakeQuerier) DeleteUser(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, user := range q.data.users {
		if user.ID != id {
			continue
		}
		q.data.users = append(q.data.users[:i], q.data.users[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) InsertAPIKey(_ context.Context, arg database.InsertAPIKeyParams) (database.APIKey, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, key := range q.data.apiKeys {
		if key.ID == arg.ID {
			return database.APIKey{}, uniqueViolation(database.UniqueAPIKeysPkey)
		}
	}
	key := database.APIKey{
		ID:           arg.ID,
		HashedSecret: arg.HashedSecret,
		UserID:       arg.UserID,
		LastUsed:     arg.LastUsed,
		ExpiresAt:    arg.ExpiresAt,
		CreatedAt:    arg.CreatedAt,
		UpdatedAt:    arg.UpdatedAt,
	}
	q.data.apiKeys = append(q.data.apiKeys, key)
	return key, nil
}

func (q *fakeQuerier) GetAPIKeyByID(_ context.Context, id string) (database.APIKey, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, key := range q.data.apiKeys {
		if key.ID == id {
			return key, nil
		}
	}
	return database.APIKey{}, sql.ErrNoRows
}

func (q *fakeQuerier) UpdateAPIKeyLastUsed(_ context.Context, arg database.UpdateAPIKeyLastUsedParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, key := range q.data.apiKeys {
		if key.ID != arg.ID {
			continue
		}
		key.LastUsed = arg.LastUsed
		key.ExpiresAt = arg.ExpiresAt
		key.UpdatedAt = arg.UpdatedAt
		q.data.apiKeys[i] = key
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) DeleteAPIKeyByID(_ context.Context, id string) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, key := range q.data.apiKeys {
		if key.ID != id {
			continue
		}
		q.data.apiKeys = append(q.data.apiKeys[:i], q.data.apiKeys[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) InsertJobTemplate(_ context.Context, arg database.InsertJobTemplateParams) (database.JobTemplate, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, tpl := range q.data.jobTemplates {
		if strings.EqualFold(tpl.Name, arg.Name) {
			return database.JobTemplate{}, uniqueViolation(database.UniqueJobTemplatesNameKey)
		}
	}
	tpl := database.JobTemplate{
		ID:          arg.ID,
		Name:        arg.Name,
		Description: arg.Description,
		Playbook:    arg.Playbook,
		Inventory:   arg.Inventory,
		ExtraVars:   arg.ExtraVars,
		CreatedBy:   arg.CreatedBy,
		CreatedAt:   arg.CreatedAt,
		UpdatedAt:   arg.UpdatedAt,
	}
	q.data.jobTemplates = append(q.data.jobTemplates, tpl)
	return tpl, nil
}

func (q *fakeQuerier) GetJobTemplateByID(_ context.Context, id uuid.UUID) (database.JobTemplate, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, tpl := range q.data.jobTemplates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return database.JobTemplate{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetJobTemplateByName(_ context.Context, name string) (database.JobTemplate, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, tpl := range q.data.jobTemplates {
		if strings.EqualFold(tpl.Name, name) {
			return tpl, nil
		}
	}
	return database.JobTemplate{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetJobTemplates(_ context.Context) ([]database.JobTemplate, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	templates := make([]database.JobTemplate, len(q.data.jobTemplates))
	copy(templates, q.data.jobTemplates)
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.Before(templates[j].CreatedAt)
	})
	return templates, nil
}

func (q *fakeQuerier) UpdateJobTemplate(_ context.Context, arg database.UpdateJobTemplateParams) (database.JobTemplate, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, tpl := range q.data.jobTemplates {
		if tpl.ID != arg.ID && strings.EqualFold(tpl.Name, arg.Name) {
			return database.JobTemplate{}, uniqueViolation(database.UniqueJobTemplatesNameKey)
		}
	}
	for i, tpl := range q.data.jobTemplates {
		if tpl.ID != arg.ID {
			continue
		}
		tpl.Name = arg.Name
		tpl.Description = arg.Description
		tpl.Playbook = arg.Playbook
		tpl.Inventory = arg.Inventory
		tpl.ExtraVars = arg.ExtraVars
		tpl.UpdatedAt = arg.UpdatedAt
		q.data.jobTemplates[i] = tpl
		return tpl, nil
	}
	return database.JobTemplate{}, sql.ErrNoRows
}

func (q *fakeQuerier) DeleteJobTemplate(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, tpl := range q.data.jobTemplates {
		if tpl.ID != id {
			continue
		}
		q.data.jobTemplates = append(q.data.jobTemplates[:i], q.data.jobTemplates[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) InsertRoleDefinition(_ context.Context, arg database.InsertRoleDefinitionParams) (database.RoleDefinition, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, def := range q.data.roleDefinitions {
		if strings.EqualFold(def.Name, arg.Name) {
			return database.RoleDefinition{}, uniqueViolation(database.UniqueRoleDefinitionsNameKey)
		}
	}
	def := database.RoleDefinition{
		ID:          arg.ID,
		Name:        arg.Name,
		Description: arg.Description,
		ContentType: arg.ContentType,
		Permissions: arg.Permissions,
		CreatedAt:   arg.CreatedAt,
		UpdatedAt:   arg.UpdatedAt,
	}
	q.data.roleDefinitions = append(q.data.roleDefinitions, def)
	return def, nil
}

func (q *fakeQuerier) GetRoleDefinitionByID(_ context.Context, id uuid.UUID) (database.RoleDefinition, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, def := range q.data.roleDefinitions {
		if def.ID == id {
			return def, nil
		}
	}
	return database.RoleDefinition{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoleDefinitionByName(_ context.Context, name string) (database.RoleDefinition, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, def := range q.data.roleDefinitions {
		if strings.EqualFold(def.Name, name) {
			return def, nil
		}
	}
	return database.RoleDefinition{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoleDefinitions(_ context.Context) ([]database.RoleDefinition, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	defs := make([]database.RoleDefinition, len(q.data.roleDefinitions))
	copy(defs, q.data.roleDefinitions)
	sort.Slice(defs, func(i, j int) bool {
		return defs[i].CreatedAt.Before(defs[j].CreatedAt)
	})
	return defs, nil
}

func (q *fakeQuerier) UpdateRoleDefinition(_ context.Context, arg database.UpdateRoleDefinitionParams) (database.RoleDefinition, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, def := range q.data.roleDefinitions {
		if def.ID != arg.ID && strings.EqualFold(def.Name, arg.Name) {
			return database.RoleDefinition{}, uniqueViolation(database.UniqueRoleDefinitionsNameKey)
		}
	}
	for i, def := range q.data.roleDefinitions {
		if def.ID != arg.ID {
			continue
		}
		def.Name = arg.Name
		def.Description = arg.Description
		def.Permissions = arg.Permissions
		def.UpdatedAt = arg.UpdatedAt
		q.data.roleDefinitions[i] = def
		return def, nil
	}
	return database.RoleDefinition{}, sql.ErrNoRows
}

func (q *fakeQuerier) DeleteRoleDefinition(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, def := range q.data.roleDefinitions {
		if def.ID != id {
			continue
		}
		q.data.roleDefinitions = append(q.data.roleDefinitions[:i], q.data.roleDefinitions[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) InsertRoleAssignment(_ context.Context, arg database.InsertRoleAssignmentParams) (database.RoleAssignment, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for _, assignment := range q.data.roleAssignments {
		if assignment.UserID == arg.UserID &&
			assignment.RoleDefinitionID == arg.RoleDefinitionID &&
			assignment.ObjectID == arg.ObjectID {
			return database.RoleAssignment{}, uniqueViolation(database.UniqueRoleAssignmentsTripleKey)
		}
	}
	assignment := database.RoleAssignment{
		ID:               arg.ID,
		UserID:           arg.UserID,
		RoleDefinitionID: arg.RoleDefinitionID,
		ObjectID:         arg.ObjectID,
		CreatedAt:        arg.CreatedAt,
	}
	q.data.roleAssignments = append(q.data.roleAssignments, assignment)
	return assignment, nil
}

func (q *fakeQuerier) GetRoleAssignmentByID(_ context.Context, id uuid.UUID) (database.RoleAssignment, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, assignment := range q.data.roleAssignments {
		if assignment.ID == id {
			return assignment, nil
		}
	}
	return database.RoleAssignment{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoleAssignmentByTriple(_ context.Context, arg database.GetRoleAssignmentByTripleParams) (database.RoleAssignment, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, assignment := range q.data.roleAssignments {
		if assignment.UserID == arg.UserID &&
			assignment.RoleDefinitionID == arg.RoleDefinitionID &&
			assignment.ObjectID == arg.ObjectID {
			return assignment, nil
		}
	}
	return database.RoleAssignment{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetRoleAssignments(_ context.Context, arg database.GetRoleAssignmentsParams) ([]database.RoleAssignment, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	assignments := make([]database.RoleAssignment, 0, len(q.data.roleAssignments))
	for _, assignment := range q.data.roleAssignments {
		if arg.UserID != uuid.Nil && assignment.UserID != arg.UserID {
			continue
		}
		if arg.RoleDefinitionID != uuid.Nil && assignment.RoleDefinitionID != arg.RoleDefinitionID {
			continue
		}
		if arg.ObjectID != uuid.Nil && assignment.ObjectID != arg.ObjectID {
			continue
		}
		assignments = append(assignments, assignment)
	}
	sort.Slice(assignments, func(i, j int) bool {
		return assignments[i].CreatedAt.Before(assignments[j].CreatedAt)
	})
	return assignments, nil
}

func (q *fakeQuerier) DeleteRoleAssignment(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, assignment := range q.data.roleAssignments {
		if assignment.ID != id {
			continue
		}
		q.data.roleAssignments = append(q.data.roleAssignments[:i], q.data.roleAssignments[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) InsertJob(_ context.Context, arg database.InsertJobParams) (database.Job, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	job := database.Job{
		ID:            arg.ID,
		JobTemplateID: arg.JobTemplateID,
		Name:          arg.Name,
		Playbook:      arg.Playbook,
		Inventory:     arg.Inventory,
		ExtraVars:     arg.ExtraVars,
		Status:        arg.Status,
		CreatedBy:     arg.CreatedBy,
		CreatedAt:     arg.CreatedAt,
	}
	q.data.jobs = append(q.data.jobs, job)
	return job, nil
}

func (q *fakeQuerier) GetJobByID(_ context.Context, id uuid.UUID) (database.Job, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, job := range q.data.jobs {
		if job.ID == id {
			return job, nil
		}
	}
	return database.Job{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetJobs(_ context.Context, arg database.GetJobsParams) ([]database.Job, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	jobs := make([]database.Job, 0, len(q.data.jobs))
	for _, job := range q.data.jobs {
		if arg.Status != "" && job.Status != arg.Status {
			continue
		}
		if arg.InstanceID != uuid.Nil && (!job.InstanceID.Valid || job.InstanceID.UUID != arg.InstanceID) {
			continue
		}
		if arg.JobTemplateID != uuid.Nil && job.JobTemplateID != arg.JobTemplateID {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (q *fakeQuerier) UpdateJobStatus(_ context.Context, arg database.UpdateJobStatusParams) (database.Job, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, job := range q.data.jobs {
		if job.ID != arg.ID {
			continue
		}
		if len(arg.FromStatuses) > 0 {
			matched := false
			for _, status := range arg.FromStatuses {
				if job.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				return database.Job{}, sql.ErrNoRows
			}
		}
		job.Status = arg.Status
		job.Explanation = arg.Explanation
		if arg.WorkUnitID.Valid {
			job.WorkUnitID = arg.WorkUnitID
		}
		if arg.InstanceID.Valid {
			job.InstanceID = arg.InstanceID
		}
		if arg.StartedAt.Valid {
			job.StartedAt = arg.StartedAt
		}
		if arg.CompletedAt.Valid {
			job.CompletedAt = arg.CompletedAt
		}
		q.data.jobs[i] = job
		return job, nil
	}
	return database.Job{}, sql.ErrNoRows
}

func (q *fakeQuerier) InsertJobEvent(_ context.Context, arg database.InsertJobEventParams) (database.JobEvent, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.data.lastJobEventID++
	event := database.JobEvent{
		ID:        q.data.lastJobEventID,
		JobID:     arg.JobID,
		Counter:   arg.Counter,
		EventType: arg.EventType,
		Stdout:    arg.Stdout,
		CreatedAt: arg.CreatedAt,
	}
	q.data.jobEvents = append(q.data.jobEvents, event)
	return event, nil
}

func (q *fakeQuerier) GetJobEventsByJobID(_ context.Context, jobID uuid.UUID) ([]database.JobEvent, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	events := make([]database.JobEvent, 0)
	for _, event := range q.data.jobEvents {
		if event.JobID == jobID {
			events = append(events, event)
		}
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Counter < events[j].Counter
	})
	return events, nil
}

func (q *fakeQuerier) UpsertInstance(_ context.Context, arg database.UpsertInstanceParams) (database.Instance, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, instance := range q.data.instances {
		if !strings.EqualFold(instance.Hostname, arg.Hostname) {
			continue
		}
		instance.NodeType = arg.NodeType
		instance.NodeState = arg.NodeState
		instance.Capacity = arg.Capacity
		instance.Version = arg.Version
		instance.LastSeenAt = arg.LastSeenAt
		instance.UpdatedAt = arg.UpdatedAt
		q.data.instances[i] = instance
		return instance, nil
	}
	instance := database.Instance{
		ID:         arg.ID,
		Hostname:   arg.Hostname,
		NodeType:   arg.NodeType,
		NodeState:  arg.NodeState,
		Capacity:   arg.Capacity,
		Version:    arg.Version,
		LastSeenAt: arg.LastSeenAt,
		CreatedAt:  arg.CreatedAt,
		UpdatedAt:  arg.UpdatedAt,
	}
	q.data.instances = append(q.data.instances, instance)
	return instance, nil
}

func (q *fakeQuerier) GetInstanceByID(_ context.Context, id uuid.UUID) (database.Instance, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, instance := range q.data.instances {
		if instance.ID == id {
			return instance, nil
		}
	}
	return database.Instance{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetInstanceByHostname(_ context.Context, hostname string) (database.Instance, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	for _, instance := range q.data.instances {
		if strings.EqualFold(instance.Hostname, hostname) {
			return instance, nil
		}
	}
	return database.Instance{}, sql.ErrNoRows
}

func (q *fakeQuerier) GetInstances(_ context.Context) ([]database.Instance, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	instances := make([]database.Instance, len(q.data.instances))
	copy(instances, q.data.instances)
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Hostname < instances[j].Hostname
	})
	return instances, nil
}

func (q *fakeQuerier) UpdateInstanceHealth(_ context.Context, arg database.UpdateInstanceHealthParams) (database.Instance, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, instance := range q.data.instances {
		if instance.ID != arg.ID {
			continue
		}
		instance.NodeState = arg.NodeState
		instance.Capacity = arg.Capacity
		instance.Version = arg.Version
		instance.Errors = arg.Errors
		instance.LastSeenAt = arg.LastSeenAt
		instance.UpdatedAt = arg.UpdatedAt
		q.data.instances[i] = instance
		return instance, nil
	}
	return database.Instance{}, sql.ErrNoRows
}

func (q *fakeQuerier) UpdateInstanceLastSeen(_ context.Context, arg database.UpdateInstanceLastSeenParams) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, instance := range q.data.instances {
		if instance.ID != arg.ID {
			continue
		}
		instance.LastSeenAt = arg.LastSeenAt
		instance.UpdatedAt = arg.UpdatedAt
		q.data.instances[i] = instance
		return nil
	}
	return sql.ErrNoRows
}

func (q *fakeQuerier) DeleteInstance(_ context.Context, id uuid.UUID) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, instance := range q.data.instances {
		if instance.ID != id {
			continue
		}
		q.data.instances = append(q.data.instances[:i], q.data.instances[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}
