// Copyright 2017 Google Inc. All Rights Reserved.
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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/iterator"

	"github.com/firebase/firebase-admin-go/internal"
)

const (
	maxListUsersResults = 1000
	maxCustomClaimsSize = 1000
)

// ErrUserNotFound is wrapped into the errors returned by the user lookup functions when no user
// matches the given identifier.
var ErrUserNotFound = errors.New("no user record found")

// UserInfo is a collection of standard profile information for a user.
type UserInfo struct {
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	// ProviderID can be a short domain name (e.g. google.com) or the identity of an OpenID
	// identity provider. For the built-in email/password provider it is "firebase".
	ProviderID string `json:"providerId,omitempty"`
	UID        string `json:"rawId,omitempty"`
}

// UserMetadata contains additional metadata associated with a user account.
// Timestamps are in milliseconds since epoch.
type UserMetadata struct {
	CreationTimestamp  int64
	LastLogInTimestamp int64
	// LastRefreshTimestamp is the time at which the user last refreshed their ID token. It is
	// 0 when the user has never refreshed a token.
	LastRefreshTimestamp int64
}

// UserRecord contains metadata associated with a Firebase user account.
type UserRecord struct {
	*UserInfo
	CustomClaims           map[string]interface{}
	Disabled               bool
	EmailVerified          bool
	ProviderUserInfo       []*UserInfo
	TokensValidAfterMillis int64
	UserMetadata           *UserMetadata
}

// ExportedUserRecord is the returned user value used when listing all the users.
type ExportedUserRecord struct {
	*UserRecord
	PasswordHash string
	PasswordSalt string
}

// UserToCreate is the parameter struct for the CreateUser function.
type UserToCreate struct {
	params map[string]interface{}
}

func (u *UserToCreate) set(key string, value interface{}) *UserToCreate {
	if u.params == nil {
		u.params = make(map[string]interface{})
	}
	u.params[key] = value
	return u
}

// Disabled setter.
func (u *UserToCreate) Disabled(disabled bool) *UserToCreate { return u.set("disableUser", disabled) }

// DisplayName setter.
func (u *UserToCreate) DisplayName(name string) *UserToCreate { return u.set("displayName", name) }

// Email setter.
func (u *UserToCreate) Email(email string) *UserToCreate { return u.set("email", email) }

// EmailVerified setter.
func (u *UserToCreate) EmailVerified(verified bool) *UserToCreate {
	return u.set("emailVerified", verified)
}

// Password setter.
func (u *UserToCreate) Password(pw string) *UserToCreate { return u.set("password", pw) }

// PhoneNumber setter.
func (u *UserToCreate) PhoneNumber(phone string) *UserToCreate { return u.set("phoneNumber", phone) }

// PhotoURL setter.
func (u *UserToCreate) PhotoURL(url string) *UserToCreate { return u.set("photoUrl", url) }

// UID setter.
func (u *UserToCreate) UID(uid string) *UserToCreate { return u.set("localId", uid) }

func (u *UserToCreate) validatedRequest() (map[string]interface{}, error) {
	req := make(map[string]interface{})
	for k, v := range u.params {
		req[k] = v
	}
	if uid, ok := req["localId"]; ok {
		if err := validateUID(uid.(string)); err != nil {
			return nil, err
		}
	}
	if email, ok := req["email"]; ok {
		if err := validateEmail(email.(string)); err != nil {
			return nil, err
		}
	}
	if pw, ok := req["password"]; ok {
		if err := validatePassword(pw.(string)); err != nil {
			return nil, err
		}
	}
	if phone, ok := req["phoneNumber"]; ok {
		if err := validatePhone(phone.(string)); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// UserToUpdate is the parameter struct for the UpdateUser function.
type UserToUpdate struct {
	params map[string]interface{}
}

func (u *UserToUpdate) set(key string, value interface{}) *UserToUpdate {
	if u.params == nil {
		u.params = make(map[string]interface{})
	}
	u.params[key] = value
	return u
}

// CustomClaims setter. Set to nil or an empty map to remove all custom claims.
func (u *UserToUpdate) CustomClaims(claims map[string]interface{}) *UserToUpdate {
	return u.set("customClaims", claims)
}

// Disabled setter.
func (u *UserToUpdate) Disabled(disabled bool) *UserToUpdate { return u.set("disableUser", disabled) }

// DisplayName setter. Set to the empty string to remove the current display name.
func (u *UserToUpdate) DisplayName(name string) *UserToUpdate { return u.set("displayName", name) }

// Email setter.
func (u *UserToUpdate) Email(email string) *UserToUpdate { return u.set("email", email) }

// EmailVerified setter.
func (u *UserToUpdate) EmailVerified(verified bool) *UserToUpdate {
	return u.set("emailVerified", verified)
}

// Password setter.
func (u *UserToUpdate) Password(pw string) *UserToUpdate { return u.set("password", pw) }

// PhoneNumber setter. Set to the empty string to remove the current phone number.
func (u *UserToUpdate) PhoneNumber(phone string) *UserToUpdate { return u.set("phoneNumber", phone) }

// PhotoURL setter. Set to the empty string to remove the current photo URL.
func (u *UserToUpdate) PhotoURL(url string) *UserToUpdate { return u.set("photoUrl", url) }

// revokeRefreshTokens is set via Client.RevokeRefreshTokens.
func (u *UserToUpdate) revokeRefreshTokens(validSince int64) *UserToUpdate {
	return u.set("validSince", strconv.FormatInt(validSince, 10))
}

// validatedRequest maps the update parameters onto the Identity Toolkit wire format. Empty
// strings on removable fields become deleteAttribute/deleteProvider entries.
func (u *UserToUpdate) validatedRequest() (map[string]interface{}, error) {
	if len(u.params) == 0 {
		return nil, errors.New("update parameters must not be empty")
	}

	req := make(map[string]interface{})
	var deleteAttrs, deleteProviders []string
	for k, v := range u.params {
		switch k {
		case "displayName":
			if v == "" {
				deleteAttrs = append(deleteAttrs, "DISPLAY_NAME")
			} else {
				req[k] = v
			}
		case "photoUrl":
			if v == "" {
				deleteAttrs = append(deleteAttrs, "PHOTO_URL")
			} else {
				req[k] = v
			}
		case "phoneNumber":
			if v == "" {
				deleteProviders = append(deleteProviders, "phone")
			} else {
				if err := validatePhone(v.(string)); err != nil {
					return nil, err
				}
				req[k] = v
			}
		case "email":
			if err := validateEmail(v.(string)); err != nil {
				return nil, err
			}
			req[k] = v
		case "password":
			if err := validatePassword(v.(string)); err != nil {
				return nil, err
			}
			req[k] = v
		case "customClaims":
			claims, _ := v.(map[string]interface{})
			serialized, err := marshalCustomClaims(claims)
			if err != nil {
				return nil, err
			}
			req["customAttributes"] = serialized
		default:
			req[k] = v
		}
	}
	if len(deleteAttrs) > 0 {
		req["deleteAttribute"] = deleteAttrs
	}
	if len(deleteProviders) > 0 {
		req["deleteProvider"] = deleteProviders
	}
	return req, nil
}

func marshalCustomClaims(claims map[string]interface{}) (string, error) {
	for _, key := range reservedClaims {
		if _, ok := claims[key]; ok {
			return "", fmt.Errorf("claim %q is reserved and must not be set", key)
		}
	}
	if claims == nil {
		claims = map[string]interface{}{}
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("custom claims marshaling error: %v", err)
	}
	if len(b) > maxCustomClaimsSize {
		return "", fmt.Errorf("serialized custom claims must not exceed %d characters", maxCustomClaimsSize)
	}
	return string(b), nil
}

func validateUID(uid string) error {
	if uid == "" {
		return errors.New("uid must be a non-empty string")
	}
	if len(uid) > 128 {
		return errors.New("uid must not be longer than 128 characters")
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("email must be a non-empty string")
	}
	if parts := strings.Split(email, "@"); len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("malformed email string: %q", email)
	}
	return nil
}

func validatePassword(pw string) error {
	if len(pw) < 6 {
		return errors.New("password must be a string at least 6 characters long")
	}
	return nil
}

func validatePhone(phone string) error {
	if phone == "" {
		return errors.New("phone number must be a non-empty string")
	}
	if !strings.HasPrefix(phone, "+") {
		return fmt.Errorf("phone number must be a valid E.164 identifier: %q", phone)
	}
	return nil
}

// userQueryResponse is the Identity Toolkit representation of a user account.
type userQueryResponse struct {
	UID                string      `json:"localId"`
	DisplayName        string      `json:"displayName"`
	Email              string      `json:"email"`
	PhoneNumber        string      `json:"phoneNumber"`
	PhotoURL           string      `json:"photoUrl"`
	CreationTimestamp  int64       `json:"createdAt,string"`
	LastLogInTimestamp int64       `json:"lastLoginAt,string"`
	LastRefreshAt      string      `json:"lastRefreshAt"`
	ProviderID         string      `json:"providerId"`
	CustomAttributes   string      `json:"customAttributes"`
	Disabled           bool        `json:"disabled"`
	EmailVerified      bool        `json:"emailVerified"`
	ProviderUserInfo   []*UserInfo `json:"providerUserInfo"`
	PasswordHash       string      `json:"passwordHash"`
	PasswordSalt       string      `json:"salt"`
	ValidSinceSeconds  int64       `json:"validSince,string"`
}

func (r *userQueryResponse) makeExportedUserRecord() (*ExportedUserRecord, error) {
	record, err := r.makeUserRecord()
	if err != nil {
		return nil, err
	}
	return &ExportedUserRecord{
		UserRecord:   record,
		PasswordHash: r.PasswordHash,
		PasswordSalt: r.PasswordSalt,
	}, nil
}

func (r *userQueryResponse) makeUserRecord() (*UserRecord, error) {
	var claims map[string]interface{}
	if r.CustomAttributes != "" {
		if err := json.Unmarshal([]byte(r.CustomAttributes), &claims); err != nil {
			return nil, err
		}
		if len(claims) == 0 {
			claims = nil
		}
	}

	var lastRefresh int64
	if r.LastRefreshAt != "" {
		t, err := time.Parse(time.RFC3339, r.LastRefreshAt)
		if err != nil {
			return nil, err
		}
		lastRefresh = t.UnixMilli()
	}

	return &UserRecord{
		UserInfo: &UserInfo{
			DisplayName: r.DisplayName,
			Email:       r.Email,
			PhoneNumber: r.PhoneNumber,
			PhotoURL:    r.PhotoURL,
			ProviderID:  "firebase",
			UID:         r.UID,
		},
		CustomClaims:           claims,
		Disabled:               r.Disabled,
		EmailVerified:          r.EmailVerified,
		ProviderUserInfo:       r.ProviderUserInfo,
		TokensValidAfterMillis: r.ValidSinceSeconds * 1000,
		UserMetadata: &UserMetadata{
			CreationTimestamp:    r.CreationTimestamp,
			LastLogInTimestamp:   r.LastLogInTimestamp,
			LastRefreshTimestamp: lastRefresh,
		},
	}, nil
}

// GetUser gets the user data corresponding to the specified user ID.
func (c *Client) GetUser(ctx context.Context, uid string) (*UserRecord, error) {
	if err := validateUID(uid); err != nil {
		return nil, err
	}
	return c.lookupUser(ctx, map[string]interface{}{"localId": []string{uid}}, "uid: "+uid)
}

// GetUserByEmail gets the user data corresponding to the specified email.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*UserRecord, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	return c.lookupUser(ctx, map[string]interface{}{"email": []string{email}}, "email: "+email)
}

// GetUserByPhoneNumber gets the user data corresponding to the specified phone number.
func (c *Client) GetUserByPhoneNumber(ctx context.Context, phone string) (*UserRecord, error) {
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	return c.lookupUser(ctx, map[string]interface{}{"phoneNumber": []string{phone}}, "phone number: "+phone)
}

func (c *Client) lookupUser(ctx context.Context, query map[string]interface{}, identifier string) (*UserRecord, error) {
	var parsed struct {
		Users []*userQueryResponse `json:"users"`
	}
	if err := c.post(ctx, "/accounts:lookup", query, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Users) == 0 {
		return nil, fmt.Errorf("%w matching %s", ErrUserNotFound, identifier)
	}
	return parsed.Users[0].makeUserRecord()
}

// CreateUser creates a new user with the specified properties.
func (c *Client) CreateUser(ctx context.Context, user *UserToCreate) (*UserRecord, error) {
	if user == nil {
		user = &UserToCreate{}
	}
	req, err := user.validatedRequest()
	if err != nil {
		return nil, err
	}
	var result struct {
		UID string `json:"localId"`
	}
	if err := c.post(ctx, "/accounts", req, &result); err != nil {
		return nil, err
	}
	return c.GetUser(ctx, result.UID)
}

// UpdateUser updates an existing user account with the specified properties.
func (c *Client) UpdateUser(ctx context.Context, uid string, user *UserToUpdate) (*UserRecord, error) {
	if err := validateUID(uid); err != nil {
		return nil, err
	}
	if user == nil {
		return nil, errors.New("update parameters must not be nil")
	}
	req, err := user.validatedRequest()
	if err != nil {
		return nil, err
	}
	req["localId"] = uid
	var result struct {
		UID string `json:"localId"`
	}
	if err := c.post(ctx, "/accounts:update", req, &result); err != nil {
		return nil, err
	}
	return c.GetUser(ctx, uid)
}

// DeleteUser deletes the user by the given UID.
func (c *Client) DeleteUser(ctx context.Context, uid string) error {
	if err := validateUID(uid); err != nil {
		return err
	}
	var result struct {
		Kind string `json:"kind"`
	}
	return c.post(ctx, "/accounts:delete", map[string]interface{}{"localId": uid}, &result)
}

// SetCustomUserClaims sets additional claims on an existing user account.
//
// Custom claims set via this function can be used to define user roles and privilege levels.
// These claims propagate to all the devices where the user is already signed in (after token
// expiration or when token refresh is forced), and next time the user signs in. The claims
// must be serializable to JSON, and the serialized claims must not exceed 1000 characters.
func (c *Client) SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error {
	_, err := c.UpdateUser(ctx, uid, (&UserToUpdate{}).CustomClaims(customClaims))
	return err
}

// RevokeRefreshTokens revokes all refresh tokens issued to a user.
//
// RevokeRefreshTokens updates the user's TokensValidAfterMillis to the current UTC second.
// It is important that the server on which this is called has its clock set correctly and synchronized.
//
// While this revokes all sessions for a specified user and disables any new ID tokens for existing sessions
// from getting minted, existing ID tokens may remain active until their natural expiration (one hour).
// To verify that ID tokens are revoked, use VerifyIDTokenAndCheckRevoked.
func (c *Client) RevokeRefreshTokens(ctx context.Context, uid string) error {
	_, err := c.UpdateUser(ctx, uid, (&UserToUpdate{}).revokeRefreshTokens(c.clock.Now().Unix()))
	return err
}

// Users returns an iterator over Users.
//
// If nextPageToken is empty, the iterator will start at the beginning. Otherwise,
// iteration will start from the page identified by the token.
func (c *Client) Users(ctx context.Context, nextPageToken string) *UserIterator {
	it := &UserIterator{
		ctx:    ctx,
		client: c,
	}
	it.pageInfo, it.nextFunc = iterator.NewPageInfo(
		it.fetch,
		func() int { return len(it.users) },
		func() interface{} { b := it.users; it.users = nil; return b })
	it.pageInfo.MaxSize = maxListUsersResults
	it.pageInfo.Token = nextPageToken
	return it
}

// UserIterator is an iterator over Users.
//
// Also see: https://github.com/GoogleCloudPlatform/google-cloud-go/wiki/Iterator-Guidelines
type UserIterator struct {
	client   *Client
	ctx      context.Context
	nextFunc func() error
	pageInfo *iterator.PageInfo
	users    []*ExportedUserRecord
}

func (it *UserIterator) fetch(pageSize int, pageToken string) (string, error) {
	query := map[string]string{
		"maxResults": strconv.Itoa(pageSize),
	}
	if pageToken != "" {
		query["nextPageToken"] = pageToken
	}
	req := &internal.Request{
		Method: "GET",
		URL:    it.client.idToolkitURL("/accounts:batchGet"),
		Opts:   []internal.HTTPOption{internal.WithQueryParams(query)},
	}
	var parsed struct {
		Users         []*userQueryResponse `json:"users"`
		NextPageToken string               `json:"nextPageToken"`
	}
	if _, err := it.client.hc.DoAndUnmarshal(it.ctx, req, &parsed); err != nil {
		return "", err
	}
	for _, u := range parsed.Users {
		user, err := u.makeExportedUserRecord()
		if err != nil {
			return "", err
		}
		it.users = append(it.users, user)
	}
	it.pageInfo.Token = parsed.NextPageToken
	return parsed.NextPageToken, nil
}

// PageInfo supports pagination. See the google.golang.org/api/iterator package for details.
func (it *UserIterator) PageInfo() *iterator.PageInfo { return it.pageInfo }

// Next returns the next result. Its second return value is iterator.Done if there are no more
// results. Once Next returns iterator.Done, all subsequent calls will return iterator.Done.
func (it *UserIterator) Next() (*ExportedUserRecord, error) {
	if err := it.nextFunc(); err != nil {
		return nil, err
	}
	user := it.users[0]
	it.users = it.users[1:]
	return user, nil
}

// idToolkitURL builds the Identity Toolkit URL for the given account operation path,
// scoped to the client's tenant when one is set.
func (c *Client) idToolkitURL(path string) string {
	if c.tenantID != "" {
		return fmt.Sprintf("%s/projects/%s/tenants/%s%s", c.baseURL, c.projectID, c.tenantID, path)
	}
	return fmt.Sprintf("%s/projects/%s%s", c.baseURL, c.projectID, path)
}

// post sends an Identity Toolkit request for the configured project and unmarshals the response.
func (c *Client) post(ctx context.Context, path string, body, result interface{}) error {
	req := &internal.Request{
		Method: "POST",
		URL:    c.idToolkitURL(path),
		Body:   internal.NewJSONEntity(body),
	}
	_, err := c.hc.DoAndUnmarshal(ctx, req, result)
	return err
}
