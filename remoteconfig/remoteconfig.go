// Copyright 2025 Google Inc. All Rights Reserved.
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

// Package remoteconfig allows clients to manage Firebase Remote Config templates:
// fetching the current template, publishing changes guarded by etags, and inspecting
// or rolling back the version history.
package remoteconfig

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/firebase/firebase-admin-go/internal"
)

const remoteConfigEndpoint = "https://firebaseremoteconfig.googleapis.com/v1"

// Client is the interface for the Firebase Remote Config service.
type Client struct {
	hc       *internal.HTTPClient
	endpoint string // To enable testing against arbitrary endpoints.
	project  string
}

// NewClient creates a new instance of the Remote Config Client.
//
// This function can only be invoked from within the SDK. Client applications should
// access the Remote Config service through firebase.App.
func NewClient(ctx context.Context, c *internal.RemoteConfigClientConfig) (*Client, error) {
	if c.ProjectID == "" {
		return nil, errors.New("project ID is required to access Remote Config")
	}

	hc, _, err := internal.NewHTTPClient(ctx, c.Opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = internal.NewFirebaseErrorOnePlatform
	hc.Opts = []internal.HTTPOption{
		internal.WithHeader("X-Client-Version", fmt.Sprintf("Go/Admin/%s", c.Version)),
	}

	return &Client{
		hc:       hc,
		endpoint: remoteConfigEndpoint,
		project:  c.ProjectID,
	}, nil
}

func (c *Client) rootURL() string {
	return fmt.Sprintf("%s/projects/%s/remoteConfig", c.endpoint, c.project)
}

// Template is a Remote Config template: the full set of parameters, parameter
// groups and conditions, together with the etag that guards concurrent updates.
type Template struct {
	Conditions      []*Condition               `json:"conditions,omitempty"`
	Parameters      map[string]*Parameter      `json:"parameters,omitempty"`
	ParameterGroups map[string]*ParameterGroup `json:"parameterGroups,omitempty"`
	Version         *Version                   `json:"version,omitempty"`

	// Etag identifies the template revision this Template was read from. It is taken
	// from the ETag response header, not the JSON body, and must be presented on
	// publish for optimistic concurrency control.
	Etag string `json:"-"`
}

// Condition targets a subset of app instances by a boolean expression.
type Condition struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	TagColor   string `json:"tagColor,omitempty"`
}

// Parameter is a single Remote Config parameter with a default value and optional
// per-condition overrides.
type Parameter struct {
	DefaultValue      *ParameterValue            `json:"defaultValue,omitempty"`
	ConditionalValues map[string]*ParameterValue `json:"conditionalValues,omitempty"`
	Description       string                     `json:"description,omitempty"`
	ValueType         string                     `json:"valueType,omitempty"`
}

// ParameterValue is either an explicit string value or the sentinel that tells
// clients to use their in-app default.
type ParameterValue struct {
	Value           string `json:"value,omitempty"`
	UseInAppDefault *bool  `json:"useInAppDefault,omitempty"`
}

// ParameterGroup groups parameters for organizational purposes in the console.
type ParameterGroup struct {
	Description string                `json:"description,omitempty"`
	Parameters  map[string]*Parameter `json:"parameters,omitempty"`
}

// Version carries the metadata the backend records for each published template
// revision.
type Version struct {
	VersionNumber  string `json:"versionNumber,omitempty"`
	UpdateTime     string `json:"updateTime,omitempty"`
	UpdateUser     *User  `json:"updateUser,omitempty"`
	Description    string `json:"description,omitempty"`
	UpdateOrigin   string `json:"updateOrigin,omitempty"`
	UpdateType     string `json:"updateType,omitempty"`
	RollbackSource string `json:"rollbackSource,omitempty"`
	IsLegacy       bool   `json:"isLegacy,omitempty"`
}

// User identifies the account that performed a template update.
type User struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// GetTemplate fetches the current active Remote Config template.
func (c *Client) GetTemplate(ctx context.Context) (*Template, error) {
	return c.getTemplate(ctx, "")
}

// GetTemplateAtVersion fetches the Remote Config template that was active at the
// given version number.
func (c *Client) GetTemplateAtVersion(ctx context.Context, versionNumber string) (*Template, error) {
	if versionNumber == "" {
		return nil, errors.New("version number must not be empty")
	}
	return c.getTemplate(ctx, versionNumber)
}

func (c *Client) getTemplate(ctx context.Context, versionNumber string) (*Template, error) {
	var opts []internal.HTTPOption
	if versionNumber != "" {
		opts = append(opts, internal.WithQueryParam("versionNumber", versionNumber))
	}

	var template Template
	resp, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodGet,
		URL:    c.rootURL(),
		Opts:   opts,
	}, &template)
	if err != nil {
		return nil, err
	}

	template.Etag = resp.Header.Get("ETag")
	return &template, nil
}

// PublishTemplate publishes the given template as the new active revision.
//
// The template's Etag must match the currently active revision, otherwise the update
// is rejected by the server; fetch a fresh template and reapply the changes in that
// case. ForcePublishTemplate skips the check.
func (c *Client) PublishTemplate(ctx context.Context, template *Template) (*Template, error) {
	return c.publishTemplate(ctx, template, false, false)
}

// ForcePublishTemplate publishes the given template without etag validation,
// discarding any concurrent update made since the template was fetched.
func (c *Client) ForcePublishTemplate(ctx context.Context, template *Template) (*Template, error) {
	return c.publishTemplate(ctx, template, true, false)
}

// ValidateTemplate runs server-side validation on the template without publishing it.
func (c *Client) ValidateTemplate(ctx context.Context, template *Template) (*Template, error) {
	return c.publishTemplate(ctx, template, false, true)
}

func (c *Client) publishTemplate(ctx context.Context, template *Template, force, validateOnly bool) (*Template, error) {
	if template == nil {
		return nil, errors.New("template must not be nil")
	}
	etag := template.Etag
	if force {
		etag = "*"
	}
	if etag == "" {
		return nil, errors.New("template etag must not be empty; fetch the template before publishing")
	}

	opts := []internal.HTTPOption{internal.WithHeader("If-Match", etag)}
	if validateOnly {
		opts = append(opts, internal.WithQueryParam("validate_only", strconv.FormatBool(true)))
	}

	var published Template
	resp, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPut,
		URL:    c.rootURL(),
		Body:   internal.NewJSONEntity(template),
		Opts:   opts,
	}, &published)
	if err != nil {
		return nil, err
	}

	published.Etag = resp.Header.Get("ETag")
	return &published, nil
}

// ListVersionsOptions restricts the versions returned by ListVersions. The zero value
// lists everything the backend retains, newest first.
type ListVersionsOptions struct {
	PageSize         int
	PageToken        string
	EndVersionNumber string
	StartTime        time.Time
	EndTime          time.Time
}

// ListVersionsResponse is one page of the template version history.
type ListVersionsResponse struct {
	Versions      []*Version `json:"versions"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// ListVersions lists the revision history of the project's Remote Config template.
func (c *Client) ListVersions(ctx context.Context, options *ListVersionsOptions) (*ListVersionsResponse, error) {
	if options == nil {
		options = &ListVersionsOptions{}
	}

	var opts []internal.HTTPOption
	if options.PageSize != 0 {
		opts = append(opts, internal.WithQueryParam("pageSize", strconv.Itoa(options.PageSize)))
	}
	if options.PageToken != "" {
		opts = append(opts, internal.WithQueryParam("pageToken", options.PageToken))
	}
	if options.EndVersionNumber != "" {
		opts = append(opts, internal.WithQueryParam("endVersionNumber", options.EndVersionNumber))
	}
	if !options.StartTime.IsZero() {
		opts = append(opts, internal.WithQueryParam("startTime", options.StartTime.Format(time.RFC3339Nano)))
	}
	if !options.EndTime.IsZero() {
		opts = append(opts, internal.WithQueryParam("endTime", options.EndTime.Format(time.RFC3339Nano)))
	}

	var result ListVersionsResponse
	_, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s:listVersions", c.rootURL()),
		Opts:   opts,
	}, &result)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

type rollbackRequest struct {
	VersionNumber string `json:"versionNumber"`
}

// Rollback republishes an earlier template version as the new active revision. The
// rolled-back template is returned with a fresh version number and etag.
func (c *Client) Rollback(ctx context.Context, versionNumber string) (*Template, error) {
	if versionNumber == "" {
		return nil, errors.New("version number is required to roll back a Remote Config template")
	}

	var template Template
	resp, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s:rollback", c.rootURL()),
		Body:   internal.NewJSONEntity(&rollbackRequest{VersionNumber: versionNumber}),
	}, &template)
	if err != nil {
		return nil, err
	}

	template.Etag = resp.Header.Get("ETag")
	return &template, nil
}
