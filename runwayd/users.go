package runwayd

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/apikey"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

// firstUser returns whether the initial user has been created.
func (api *API) firstUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := api.Database.GetUserCount(ctx)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	if count == 0 {
		httpapi.Write(ctx, rw, http.StatusNotFound, runwaysdk.Response{
			Message: "The initial user has not been created!",
		})
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, runwaysdk.Response{
		Message: "The initial user has already been created!",
	})
}

// postFirstUser creates the initial user and grants it the system
// administrator role. It only ever succeeds once per deployment.
func (api *API) postFirstUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var createUser runwaysdk.CreateFirstUserRequest
	if !httpapi.Read(ctx, rw, r, &createUser) {
		return
	}

	count, err := api.Database.GetUserCount(ctx)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	if count > 0 {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: "The initial user has already been created.",
		})
		return
	}

	user, ok := api.createUser(rw, r, runwaysdk.CreateUserRequest{
		Email:    createUser.Email,
		Username: createUser.Username,
		Password: createUser.Password,
		Roles:    []string{rbac.RoleAdministrator(), rbac.RoleMember()},
	})
	if !ok {
		return
	}

	httpapi.Write(ctx, rw, http.StatusCreated, runwaysdk.CreateFirstUserResponse{
		UserID: user.ID,
	})
}

// postLogin authenticates with email and password and issues a session
// token.
func (api *API) postLogin(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var loginWithPassword runwaysdk.LoginRequest
	if !httpapi.Read(ctx, rw, r, &loginWithPassword) {
		return
	}

	user, err := api.Database.GetUserByEmailOrUsername(ctx, database.GetUserByEmailOrUsernameParams{
		Email: loginWithPassword.Email,
	})
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		httpapi.InternalServerError(rw, err)
		return
	}
	// Compare against a throwaway hash on a miss so the response time
	// does not reveal whether the email exists.
	hashed := user.HashedPassword
	if len(hashed) == 0 {
		hashed = []byte("$2a$10$0000000000000000000000000000000000000000000000000000")
	}
	if bcrypt.CompareHashAndPassword(hashed, []byte(loginWithPassword.Password)) != nil || user.ID == uuid.Nil {
		httpapi.Write(ctx, rw, http.StatusUnauthorized, runwaysdk.Response{
			Message: "Incorrect email or password.",
		})
		return
	}
	if user.Status == database.UserStatusSuspended {
		httpapi.Write(ctx, rw, http.StatusUnauthorized, runwaysdk.Response{
			Message: "Your account has been suspended. Contact an admin to reactivate your account.",
		})
		return
	}

	params, token, err := apikey.Generate(apikey.CreateParams{
		UserID:   user.ID,
		Lifetime: api.SessionDuration,
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	_, err = api.Database.InsertAPIKey(ctx, params)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}

	httpapi.Write(ctx, rw, http.StatusCreated, runwaysdk.LoginResponse{
		SessionToken: token,
	})
}

// postLogout invalidates the session token used to make the request.
func (api *API) postLogout(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := httpmw.APIKey(r)
	err := api.Database.DeleteAPIKeyByID(ctx, key.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, runwaysdk.Response{
		Message: "Logged out!",
	})
}

func (api *API) users(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	users, err := api.Database.GetUsers(ctx)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	users, err = rbac.Filter(ctx, api.Authorizer, httpmw.UserAuthorization(r), rbac.ActionRead, users)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertUsers(users))
}

func (api *API) postUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.Authorize(r, rbac.ActionCreate, rbac.ResourceUser) {
		httpapi.Forbidden(rw)
		return
	}

	var req runwaysdk.CreateUserRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}
	if len(req.Roles) == 0 {
		req.Roles = []string{rbac.RoleMember()}
	}
	for _, role := range req.Roles {
		if !rbac.IsBuiltinRole(role) {
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: fmt.Sprintf("Role %q is not a built-in role.", role),
				Detail:  "Custom roles are granted through role assignments, not site roles.",
			})
			return
		}
	}

	user, ok := api.createUser(rw, r, req)
	if !ok {
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, convertUser(user))
}

func (api *API) userByID(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.UserParam(r)
	if !api.Authorize(r, rbac.ActionRead, user) {
		httpapi.ResourceNotFound(rw)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertUser(user))
}

func (api *API) putUserProfile(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.UserParam(r)
	if !api.Authorize(r, rbac.ActionUpdate, user) {
		httpapi.ResourceNotFound(rw)
		return
	}

	var params runwaysdk.UpdateUserProfileRequest
	if !httpapi.Read(ctx, rw, r, &params) {
		return
	}

	updatedUser, err := api.Database.UpdateUserProfile(ctx, database.UpdateUserProfileParams{
		ID:        user.ID,
		Email:     params.Email,
		Username:  params.Username,
		UpdatedAt: dbtime.Now(),
	})
	if database.IsUniqueViolation(err, database.UniqueUsersEmailKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A user with email %q already exists.", params.Email),
			Validations: []runwaysdk.ValidationError{
				{Field: "email", Detail: "This email is already in use."},
			},
		})
		return
	}
	if database.IsUniqueViolation(err, database.UniqueUsersUsernameKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A user with username %q already exists.", params.Username),
			Validations: []runwaysdk.ValidationError{
				{Field: "username", Detail: "This username is already in use."},
			},
		})
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertUser(updatedUser))
}

// putUserRoles replaces the site roles granted to the user. Only built-in
// roles can be granted here; object scoped grants go through role
// assignments.
func (api *API) putUserRoles(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.UserParam(r)
	apiKey := httpmw.APIKey(r)
	if !api.Authorize(r, rbac.ActionUpdate, rbac.ResourceUser) {
		httpapi.ResourceNotFound(rw)
		return
	}
	if apiKey.UserID == user.ID {
		httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
			Message: "You cannot change your own roles.",
		})
		return
	}

	var params runwaysdk.UpdateRolesRequest
	if !httpapi.Read(ctx, rw, r, &params) {
		return
	}
	for _, role := range params.Roles {
		if !rbac.IsBuiltinRole(role) {
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: fmt.Sprintf("Role %q is not a built-in role.", role),
			})
			return
		}
	}

	updatedUser, err := api.Database.UpdateUserRoles(ctx, database.UpdateUserRolesParams{
		ID:           user.ID,
		GrantedRoles: params.Roles,
		UpdatedAt:    dbtime.Now(),
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertUser(updatedUser))
}

func (api *API) putUserSuspend(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.UserParam(r)
	apiKey := httpmw.APIKey(r)
	if !api.Authorize(r, rbac.ActionUpdate, rbac.ResourceUser) {
		httpapi.ResourceNotFound(rw)
		return
	}
	if apiKey.UserID == user.ID {
		httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
			Message: "You cannot suspend yourself.",
		})
		return
	}

	suspendedUser, err := api.Database.UpdateUserStatus(ctx, database.UpdateUserStatusParams{
		ID:        user.ID,
		Status:    database.UserStatusSuspended,
		UpdatedAt: dbtime.Now(),
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	api.Logger.Info(ctx, "user suspended",
		slog.F("user_id", user.ID),
		slog.F("suspended_by", apiKey.UserID),
	)
	httpapi.Write(ctx, rw, http.StatusOK, convertUser(suspendedUser))
}

func (api *API) deleteUser(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := httpmw.UserParam(r)
	apiKey := httpmw.APIKey(r)
	if !api.Authorize(r, rbac.ActionDelete, user) {
		httpapi.ResourceNotFound(rw)
		return
	}
	if apiKey.UserID == user.ID {
		httpapi.Write(ctx, rw, http.StatusForbidden, runwaysdk.Response{
			Message: "You cannot delete yourself!",
		})
		return
	}

	err := api.Database.DeleteUser(ctx, user.ID)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// createUser inserts a user inside a transaction and writes the failure
// response itself. The returned bool reports success.
func (api *API) createUser(rw http.ResponseWriter, r *http.Request, req runwaysdk.CreateUserRequest) (database.User, bool) {
	ctx := r.Context()
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return database.User{}, false
	}

	var user database.User
	err = api.Database.InTx(func(tx database.Store) error {
		now := dbtime.Now()
		user, err = tx.InsertUser(ctx, database.InsertUserParams{
			ID:             uuid.New(),
			Email:          req.Email,
			Username:       req.Username,
			HashedPassword: hashedPassword,
			RBACRoles:      req.Roles,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		return err
	})
	if database.IsUniqueViolation(err, database.UniqueUsersEmailKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A user with email %q already exists.", req.Email),
			Validations: []runwaysdk.ValidationError{
				{Field: "email", Detail: "This email is already in use."},
			},
		})
		return database.User{}, false
	}
	if database.IsUniqueViolation(err, database.UniqueUsersUsernameKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A user with username %q already exists.", req.Username),
			Validations: []runwaysdk.ValidationError{
				{Field: "username", Detail: "This username is already in use."},
			},
		})
		return database.User{}, false
	}
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return database.User{}, false
	}
	return user, true
}

func convertUser(user database.User) runwaysdk.User {
	return runwaysdk.User{
		ID:        user.ID,
		Email:     user.Email,
		Username:  user.Username,
		Status:    runwaysdk.UserStatus(user.Status),
		Roles:     user.RBACRoles,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}

func convertUsers(users []database.User) []runwaysdk.User {
	converted := make([]runwaysdk.User, 0, len(users))
	for _, u := range users {
		converted = append(converted, convertUser(u))
	}
	return converted
}
