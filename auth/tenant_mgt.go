// Copyright 2019 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"google.golang.org/api/iterator"

	"github.com/firebase/firebase-admin-go/internal"
)

const (
	idToolkitV2Endpoint = "https://identitytoolkit.googleapis.com/v2"

	maxListTenantsResults = 100
)

// Tenant represents a tenant in a multi-tenant application.
//
// Multi-tenancy support requires Google Cloud's Identity Platform (GCIP). To learn more about
// GCIP, including pricing and features, see https://cloud.google.com/identity-platform.
//
// Before multi-tenancy can be used in a Google Cloud Identity Platform project, tenants must be
// enabled in that project via the Cloud Console UI.
//
// A tenant configuration provides information such as the display name, tenant identifier and
// email authentication configuration. Other settings of a tenant are inherited from the parent
// project and need to be managed from the Cloud Console UI.
type Tenant struct {
	ID                    string
	DisplayName           string
	AllowPasswordSignUp   bool
	EnableEmailLinkSignIn bool
}

type tenantResponse struct {
	Name                  string `json:"name"`
	DisplayName           string `json:"displayName"`
	AllowPasswordSignUp   bool   `json:"allowPasswordSignup"`
	EnableEmailLinkSignIn bool   `json:"enableEmailLinkSignin"`
}

func (r *tenantResponse) makeTenant() *Tenant {
	// The wire name is the full resource path "projects/{project}/tenants/{id}".
	id := r.Name
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return &Tenant{
		ID:                    id,
		DisplayName:           r.DisplayName,
		AllowPasswordSignUp:   r.AllowPasswordSignUp,
		EnableEmailLinkSignIn: r.EnableEmailLinkSignIn,
	}
}

// TenantToCreate represents the options used to create a new tenant.
type TenantToCreate struct {
	params map[string]interface{}
}

func (t *TenantToCreate) set(key string, value interface{}) *TenantToCreate {
	if t.params == nil {
		t.params = make(map[string]interface{})
	}
	t.params[key] = value
	return t
}

// DisplayName setter.
func (t *TenantToCreate) DisplayName(name string) *TenantToCreate {
	return t.set("displayName", name)
}

// AllowPasswordSignUp enables or disables email/password user authentication.
func (t *TenantToCreate) AllowPasswordSignUp(allow bool) *TenantToCreate {
	return t.set("allowPasswordSignup", allow)
}

// EnableEmailLinkSignIn enables or disables email link user authentication.
func (t *TenantToCreate) EnableEmailLinkSignIn(enable bool) *TenantToCreate {
	return t.set("enableEmailLinkSignin", enable)
}

// TenantToUpdate represents the options used to update an existing tenant.
type TenantToUpdate struct {
	params map[string]interface{}
}

func (t *TenantToUpdate) set(key string, value interface{}) *TenantToUpdate {
	if t.params == nil {
		t.params = make(map[string]interface{})
	}
	t.params[key] = value
	return t
}

// DisplayName setter.
func (t *TenantToUpdate) DisplayName(name string) *TenantToUpdate {
	return t.set("displayName", name)
}

// AllowPasswordSignUp enables or disables email/password user authentication.
func (t *TenantToUpdate) AllowPasswordSignUp(allow bool) *TenantToUpdate {
	return t.set("allowPasswordSignup", allow)
}

// EnableEmailLinkSignIn enables or disables email link user authentication.
func (t *TenantToUpdate) EnableEmailLinkSignIn(enable bool) *TenantToUpdate {
	return t.set("enableEmailLinkSignin", enable)
}

// TenantManager is the interface used to manage tenants in a multi-tenant application.
//
// This supports creating, updating, listing and deleting the tenants of a Firebase project. It
// also supports creating new TenantClient instances scoped to specific tenant IDs.
type TenantManager struct {
	hc        *internal.HTTPClient
	endpoint  string
	projectID string
	client    *Client
}

func newTenantManager(client *Client, conf *internal.AuthConfig) *TenantManager {
	return &TenantManager{
		hc:        client.hc,
		endpoint:  idToolkitV2Endpoint,
		projectID: conf.ProjectID,
		client:    client,
	}
}

// AuthForTenant creates a new TenantClient scoped to the given tenantID.
func (tm *TenantManager) AuthForTenant(tenantID string) (*TenantClient, error) {
	if tenantID == "" {
		return nil, errors.New("tenantID must not be empty")
	}

	scoped := *tm.client
	scoped.tenantID = tenantID
	return &TenantClient{Client: &scoped}, nil
}

// Tenant returns the tenant with the given ID.
func (tm *TenantManager) Tenant(ctx context.Context, tenantID string) (*Tenant, error) {
	if tenantID == "" {
		return nil, errors.New("tenantID must not be empty")
	}
	var parsed tenantResponse
	req := &internal.Request{
		Method: http.MethodGet,
		URL:    tm.tenantURL(tenantID),
	}
	if _, err := tm.hc.DoAndUnmarshal(ctx, req, &parsed); err != nil {
		return nil, err
	}
	return parsed.makeTenant(), nil
}

// CreateTenant creates a new tenant with the given options.
func (tm *TenantManager) CreateTenant(ctx context.Context, tenant *TenantToCreate) (*Tenant, error) {
	if tenant == nil {
		tenant = &TenantToCreate{}
	}
	body := tenant.params
	if body == nil {
		body = make(map[string]interface{})
	}
	var parsed tenantResponse
	req := &internal.Request{
		Method: http.MethodPost,
		URL:    tm.tenantsURL(),
		Body:   internal.NewJSONEntity(body),
	}
	if _, err := tm.hc.DoAndUnmarshal(ctx, req, &parsed); err != nil {
		return nil, err
	}
	return parsed.makeTenant(), nil
}

// UpdateTenant updates an existing tenant with the given options.
func (tm *TenantManager) UpdateTenant(ctx context.Context, tenantID string, tenant *TenantToUpdate) (*Tenant, error) {
	if tenantID == "" {
		return nil, errors.New("tenantID must not be empty")
	}
	if tenant == nil || len(tenant.params) == 0 {
		return nil, errors.New("no parameters specified in the update request")
	}

	mask := make([]string, 0, len(tenant.params))
	for key := range tenant.params {
		mask = append(mask, key)
	}
	sort.Strings(mask)

	var parsed tenantResponse
	req := &internal.Request{
		Method: http.MethodPatch,
		URL:    tm.tenantURL(tenantID),
		Body:   internal.NewJSONEntity(tenant.params),
		Opts: []internal.HTTPOption{
			internal.WithQueryParam("updateMask", strings.Join(mask, ",")),
		},
	}
	if _, err := tm.hc.DoAndUnmarshal(ctx, req, &parsed); err != nil {
		return nil, err
	}
	return parsed.makeTenant(), nil
}

// DeleteTenant deletes the tenant with the given ID.
func (tm *TenantManager) DeleteTenant(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return errors.New("tenantID must not be empty")
	}
	_, err := tm.hc.Do(ctx, &internal.Request{
		Method: http.MethodDelete,
		URL:    tm.tenantURL(tenantID),
	})
	return err
}

// Tenants returns an iterator over the tenants of the project.
//
// If nextPageToken is empty, the iterator will start at the beginning. Otherwise,
// iteration will start from the page identified by the token.
func (tm *TenantManager) Tenants(ctx context.Context, nextPageToken string) *TenantIterator {
	it := &TenantIterator{
		ctx:     ctx,
		manager: tm,
	}
	it.pageInfo, it.nextFunc = iterator.NewPageInfo(
		it.fetch,
		func() int { return len(it.tenants) },
		func() interface{} { b := it.tenants; it.tenants = nil; return b })
	it.pageInfo.MaxSize = maxListTenantsResults
	it.pageInfo.Token = nextPageToken
	return it
}

func (tm *TenantManager) tenantsURL() string {
	return fmt.Sprintf("%s/projects/%s/tenants", tm.endpoint, tm.projectID)
}

func (tm *TenantManager) tenantURL(tenantID string) string {
	return fmt.Sprintf("%s/%s", tm.tenantsURL(), tenantID)
}

// TenantIterator is an iterator over tenants.
type TenantIterator struct {
	manager  *TenantManager
	ctx      context.Context
	nextFunc func() error
	pageInfo *iterator.PageInfo
	tenants  []*Tenant
}

func (it *TenantIterator) fetch(pageSize int, pageToken string) (string, error) {
	query := map[string]string{
		"pageSize": strconv.Itoa(pageSize),
	}
	if pageToken != "" {
		query["pageToken"] = pageToken
	}
	req := &internal.Request{
		Method: http.MethodGet,
		URL:    it.manager.tenantsURL(),
		Opts:   []internal.HTTPOption{internal.WithQueryParams(query)},
	}
	var parsed struct {
		Tenants       []*tenantResponse `json:"tenants"`
		NextPageToken string            `json:"nextPageToken"`
	}
	if _, err := it.manager.hc.DoAndUnmarshal(it.ctx, req, &parsed); err != nil {
		return "", err
	}
	for _, t := range parsed.Tenants {
		it.tenants = append(it.tenants, t.makeTenant())
	}
	it.pageInfo.Token = parsed.NextPageToken
	return parsed.NextPageToken, nil
}

// PageInfo supports pagination. See the google.golang.org/api/iterator package for details.
func (it *TenantIterator) PageInfo() *iterator.PageInfo { return it.pageInfo }

// Next returns the next result. Its second return value is iterator.Done if there are no more
// results. Once Next returns iterator.Done, all subsequent calls will return iterator.Done.
func (it *TenantIterator) Next() (*Tenant, error) {
	if err := it.nextFunc(); err != nil {
		return nil, err
	}
	tenant := it.tenants[0]
	it.tenants = it.tenants[1:]
	return tenant, nil
}

// TenantClient is used for managing users and generating email links for specific tenants.
//
// Each tenant contains its own identity providers, settings and users. TenantClient supports
// the user management and email action link operations of Client, with every request scoped
// to its tenant.
//
// TenantClient instances for a specific tenantID can be instantiated by calling
// TenantManager.AuthForTenant(tenantID).
type TenantClient struct {
	*Client
}

// TenantID returns the ID of the tenant to which this TenantClient instance belongs.
func (tc *TenantClient) TenantID() string {
	return tc.tenantID
}
