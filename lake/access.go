// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package lake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

// Role is a workspace role on the storage platform side. Ordering
// matters: Contributor and above can read and write lakehouse items.
type Role string

const (
	RoleNone        Role = "None"
	RoleViewer      Role = "Viewer"
	RoleContributor Role = "Contributor"
	RoleMember      Role = "Member"
	RoleAdmin       Role = "Admin"
)

var roleRank = map[Role]int{
	RoleNone:        0,
	RoleViewer:      1,
	RoleContributor: 2,
	RoleMember:      3,
	RoleAdmin:       4,
}

// AtLeast reports whether the role grants at least the given role.
func (r Role) AtLeast(min Role) bool {
	return roleRank[r] >= roleRank[min]
}

// RoleAssignment is one principal's role on a workspace.
type RoleAssignment struct {
	ID            string
	PrincipalID   string
	DisplayName   string
	PrincipalType string
	Role          Role
}

var (
	ErrAccessError        = errors.New("access control error")
	ErrWorkspaceNotFound  = fmt.Errorf("%w: workspace not found", ErrAccessError)
	ErrAccessUnauthorized = fmt.Errorf("%w: unauthorized", ErrAccessError)
	ErrAccessForbidden    = fmt.Errorf("%w: forbidden", ErrAccessError)
)

const (
	defaultAccessEndpoint = "https://api.fabric.microsoft.com/v1"
	defaultAccessScope    = "https://api.fabric.microsoft.com/.default"
)

// AccessClient talks to the workspace role-assignment API. It is the
// surface the consent resolver polls; granting itself normally happens
// in the admin console, but AddRoleAssignment covers principals the
// caller is authorized to add directly.
type AccessClient struct {
	endpoint string
	scope    string
	cred     azcore.TokenCredential
	hc       *http.Client
}

// AccessOption configures an AccessClient.
type AccessOption func(*AccessClient)

// WithAccessEndpoint overrides the API base URL, mainly for tests.
func WithAccessEndpoint(endpoint string) AccessOption {
	return func(c *AccessClient) { c.endpoint = endpoint }
}

// WithAccessScope overrides the token scope requested from the credential.
func WithAccessScope(scope string) AccessOption {
	return func(c *AccessClient) { c.scope = scope }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) AccessOption {
	return func(c *AccessClient) { c.hc = hc }
}

// NewAccessClient builds a client authenticating with cred. A nil cred
// sends unauthenticated requests, which only makes sense against a
// test server.
func NewAccessClient(cred azcore.TokenCredential, opts ...AccessOption) *AccessClient {
	c := &AccessClient{
		endpoint: defaultAccessEndpoint,
		scope:    defaultAccessScope,
		cred:     cred,
		hc:       http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

type accessErrorResponse struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

func (c *AccessClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if c.cred != nil {
		tk, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{c.scope}})
		if err != nil {
			return fmt.Errorf("%w: acquiring token: %s", ErrAccessUnauthorized, err)
		}
		req.Header.Set("Authorization", "Bearer "+tk.Token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrAccessError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr accessErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)

		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrAccessUnauthorized, apiErr.Message)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %s", ErrAccessForbidden, apiErr.Message)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrWorkspaceNotFound, apiErr.Message)
		default:
			return fmt.Errorf("%w: %s %s: %d %s: %s", ErrAccessError,
				method, path, resp.StatusCode, apiErr.ErrorCode, apiErr.Message)
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %s", ErrAccessError, err)
		}
	}

	return nil
}

type roleAssignmentPayload struct {
	ID        string `json:"id,omitempty"`
	Principal struct {
		ID          string `json:"id"`
		DisplayName string `json:"displayName,omitempty"`
		Type        string `json:"type"`
	} `json:"principal"`
	Role Role `json:"role"`
}

// GetRoleAssignments lists every principal's role on the workspace.
func (c *AccessClient) GetRoleAssignments(ctx context.Context, workspaceID string) ([]RoleAssignment, error) {
	var resp struct {
		Value []roleAssignmentPayload `json:"value"`
	}
	path := fmt.Sprintf("/workspaces/%s/roleAssignments", url.PathEscape(workspaceID))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]RoleAssignment, 0, len(resp.Value))
	for _, ra := range resp.Value {
		out = append(out, RoleAssignment{
			ID:            ra.ID,
			PrincipalID:   ra.Principal.ID,
			DisplayName:   ra.Principal.DisplayName,
			PrincipalType: ra.Principal.Type,
			Role:          ra.Role,
		})
	}

	return out, nil
}

// AddRoleAssignment grants role to a principal on the workspace.
func (c *AccessClient) AddRoleAssignment(ctx context.Context, workspaceID, principalID, principalType string, role Role) error {
	var payload roleAssignmentPayload
	payload.Principal.ID = principalID
	payload.Principal.Type = principalType
	payload.Role = role

	path := fmt.Sprintf("/workspaces/%s/roleAssignments", url.PathEscape(workspaceID))

	return c.do(ctx, http.MethodPost, path, payload, nil)
}
