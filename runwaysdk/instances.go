package runwaysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

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

// Instance is a node in the mesh. Hop nodes relay traffic and never
// receive jobs.
type Instance struct {
	ID         uuid.UUID  `json:"id" format:"uuid"`
	Hostname   string     `json:"hostname"`
	NodeType   NodeType   `json:"node_type"`
	NodeState  NodeState  `json:"node_state"`
	Capacity   int32      `json:"capacity"`
	Version    string     `json:"version"`
	Errors     string     `json:"errors,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" format:"date-time"`
	CreatedAt  time.Time  `json:"created_at" format:"date-time"`
	UpdatedAt  time.Time  `json:"updated_at" format:"date-time"`
}

// RegisterInstanceRequest enrolls a node into the mesh. Registration is
// idempotent on hostname.
type RegisterInstanceRequest struct {
	Hostname string   `json:"hostname" validate:"required"`
	NodeType NodeType `json:"node_type" validate:"required,oneof=control execution hop"`
	Capacity int32    `json:"capacity"`
	Version  string   `json:"version"`
}

// PostInstanceHealthRequest reports a health check result for a node.
type PostInstanceHealthRequest struct {
	NodeState NodeState `json:"node_state" validate:"required,oneof=installed ready unavailable offline"`
	Capacity  int32     `json:"capacity"`
	Version   string    `json:"version"`
	Errors    string    `json:"errors"`
}

// RegisterInstance enrolls or refreshes a node by hostname.
func (c *Client) RegisterInstance(ctx context.Context, req RegisterInstanceRequest) (Instance, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/instances", req)
	if err != nil {
		return Instance{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusOK {
		return Instance{}, ReadBodyAsError(res)
	}
	var instance Instance
	return instance, json.NewDecoder(res.Body).Decode(&instance)
}

// Instances lists all nodes in the mesh.
func (c *Client) Instances(ctx context.Context) ([]Instance, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/instances", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var instances []Instance
	return instances, json.NewDecoder(res.Body).Decode(&instances)
}

// Instance returns a node by ID.
func (c *Client) Instance(ctx context.Context, id uuid.UUID) (Instance, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/instances/%s", id), nil)
	if err != nil {
		return Instance{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Instance{}, ReadBodyAsError(res)
	}
	var instance Instance
	return instance, json.NewDecoder(res.Body).Decode(&instance)
}

// PostInstanceHealth records a health check result for a node.
func (c *Client) PostInstanceHealth(ctx context.Context, id uuid.UUID, req PostInstanceHealthRequest) (Instance, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/instances/%s/health", id), req)
	if err != nil {
		return Instance{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Instance{}, ReadBodyAsError(res)
	}
	var instance Instance
	return instance, json.NewDecoder(res.Body).Decode(&instance)
}

// DeleteInstance deprovisions a node. Jobs running on it are reaped by the
// control plane.
func (c *Client) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/instances/%s", id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}
