package runwaysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RoleDefinition is a named bundle of permissions scoped to a single
// content type. Assigning it to a user on an object grants those
// permissions on that object only.
type RoleDefinition struct {
	ID          uuid.UUID `json:"id" format:"uuid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ContentType string    `json:"content_type"`
	Permissions []string  `json:"permissions"`
	BuiltIn     bool      `json:"built_in"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time `json:"updated_at" format:"date-time"`
}

type CreateRoleDefinitionRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	ContentType string   `json:"content_type" validate:"required"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

type UpdateRoleDefinitionRequest struct {
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions" validate:"required,min=1"`
}

// CreateRoleDefinition creates a custom role definition.
func (c *Client) CreateRoleDefinition(ctx context.Context, req CreateRoleDefinitionRequest) (RoleDefinition, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/roledefinitions", req)
	if err != nil {
		return RoleDefinition{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return RoleDefinition{}, ReadBodyAsError(res)
	}
	var def RoleDefinition
	return def, json.NewDecoder(res.Body).Decode(&def)
}

// RoleDefinitions lists all role definitions, built-in ones included.
func (c *Client) RoleDefinitions(ctx context.Context) ([]RoleDefinition, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/roledefinitions", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var defs []RoleDefinition
	return defs, json.NewDecoder(res.Body).Decode(&defs)
}

// RoleDefinition returns a role definition by ID.
func (c *Client) RoleDefinition(ctx context.Context, id uuid.UUID) (RoleDefinition, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/roledefinitions/%s", id), nil)
	if err != nil {
		return RoleDefinition{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return RoleDefinition{}, ReadBodyAsError(res)
	}
	var def RoleDefinition
	return def, json.NewDecoder(res.Body).Decode(&def)
}

// UpdateRoleDefinition replaces the mutable fields of a custom role
// definition. The content type of a role cannot change after creation.
func (c *Client) UpdateRoleDefinition(ctx context.Context, id uuid.UUID, req UpdateRoleDefinitionRequest) (RoleDefinition, error) {
	res, err := c.Request(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/roledefinitions/%s", id), req)
	if err != nil {
		return RoleDefinition{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return RoleDefinition{}, ReadBodyAsError(res)
	}
	var def RoleDefinition
	return def, json.NewDecoder(res.Body).Decode(&def)
}

// DeleteRoleDefinition deletes a custom role definition. Definitions with
// live assignments cannot be deleted.
func (c *Client) DeleteRoleDefinition(ctx context.Context, id uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/roledefinitions/%s", id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}
