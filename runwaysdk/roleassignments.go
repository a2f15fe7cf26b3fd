package runwaysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RoleAssignment grants a user a role definition on one object. The
// (user, role definition, object) triple is unique.
type RoleAssignment struct {
	ID               uuid.UUID `json:"id" format:"uuid"`
	UserID           uuid.UUID `json:"user_id" format:"uuid"`
	RoleDefinitionID uuid.UUID `json:"role_definition_id" format:"uuid"`
	ObjectID         uuid.UUID `json:"object_id" format:"uuid"`
	CreatedAt        time.Time `json:"created_at" format:"date-time"`
}

type CreateRoleAssignmentRequest struct {
	UserID           uuid.UUID `json:"user_id" validate:"required" format:"uuid"`
	RoleDefinitionID uuid.UUID `json:"role_definition_id" validate:"required" format:"uuid"`
	ObjectID         uuid.UUID `json:"object_id" validate:"required" format:"uuid"`
}

// RoleAssignmentFilter narrows listing. Zero values are ignored.
type RoleAssignmentFilter struct {
	UserID           uuid.UUID
	RoleDefinitionID uuid.UUID
	ObjectID         uuid.UUID
}

func (f RoleAssignmentFilter) asRequestOptions() []RequestOption {
	var opts []RequestOption
	if f.UserID != uuid.Nil {
		opts = append(opts, WithQueryParam("user_id", f.UserID.String()))
	}
	if f.RoleDefinitionID != uuid.Nil {
		opts = append(opts, WithQueryParam("role_definition_id", f.RoleDefinitionID.String()))
	}
	if f.ObjectID != uuid.Nil {
		opts = append(opts, WithQueryParam("object_id", f.ObjectID.String()))
	}
	return opts
}

// CreateRoleAssignment grants a role. Granting an identical triple again is
// not an error; the existing assignment is returned and created is false.
func (c *Client) CreateRoleAssignment(ctx context.Context, req CreateRoleAssignmentRequest) (RoleAssignment, bool, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/roleassignments", req)
	if err != nil {
		return RoleAssignment{}, false, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return RoleAssignment{}, false, ReadBodyAsError(res)
	}
	var assignment RoleAssignment
	err = json.NewDecoder(res.Body).Decode(&assignment)
	if err != nil {
		return RoleAssignment{}, false, err
	}
	return assignment, res.StatusCode == http.StatusCreated, nil
}

// RoleAssignments lists assignments matching the filter.
func (c *Client) RoleAssignments(ctx context.Context, filter RoleAssignmentFilter) ([]RoleAssignment, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/roleassignments", nil, filter.asRequestOptions()...)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var assignments []RoleAssignment
	return assignments, json.NewDecoder(res.Body).Decode(&assignments)
}

// RoleAssignment returns an assignment by ID.
func (c *Client) RoleAssignment(ctx context.Context, id uuid.UUID) (RoleAssignment, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/roleassignments/%s", id), nil)
	if err != nil {
		return RoleAssignment{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return RoleAssignment{}, ReadBodyAsError(res)
	}
	var assignment RoleAssignment
	return assignment, json.NewDecoder(res.Body).Decode(&assignment)
}

// DeleteRoleAssignment revokes a grant. Deleting an assignment that was
// already deleted returns a 404 error.
func (c *Client) DeleteRoleAssignment(ctx context.Context, id uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/roleassignments/%s", id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}
