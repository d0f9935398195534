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
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/firebase/firebase-admin-go/internal"
)

const maxImportUsers = 1000

// UserImportHash represents a hash algorithm and its related configuration parameters, used when
// importing users with password hashes. See the auth/hash package for supported algorithms.
type UserImportHash interface {
	Config() (internal.HashConfig, error)
}

// UserImportOption is an option for the ImportUsers function.
type UserImportOption interface {
	applyTo(req map[string]interface{}) error
}

// WithHash returns a UserImportOption that specifies a hash configuration.
func WithHash(hash UserImportHash) UserImportOption {
	return withHash{hash}
}

type withHash struct {
	hash UserImportHash
}

func (w withHash) applyTo(req map[string]interface{}) error {
	if w.hash == nil {
		return errors.New("hash must not be nil")
	}
	conf, err := w.hash.Config()
	if err != nil {
		return err
	}
	for k, v := range conf {
		req[k] = v
	}
	return nil
}

// UserImportResult represents the result of an ImportUsers call.
type UserImportResult struct {
	SuccessCount int
	FailureCount int
	Errors       []*ErrorInfo
}

// ImportError is returned by ImportUsers when the server rejects one or more of the
// submitted accounts. It enumerates every failed row; the remaining accounts were
// imported successfully.
type ImportError struct {
	Errors []*ErrorInfo
}

func (e *ImportError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "failed to import %d users:", len(e.Errors))
	for i, info := range e.Errors {
		if i > 0 {
			sb.WriteString(";")
		}
		fmt.Fprintf(&sb, " index %d: %s", info.Index, info.Reason)
	}
	return sb.String()
}

// ErrorInfo represents an error encountered while importing a single user account.
//
// The Index field corresponds to the index of the failed user in the users array that was passed
// to ImportUsers.
type ErrorInfo struct {
	Index  int    `json:"index"`
	Reason string `json:"message"`
}

// UserToImport represents a user account that can be bulk imported into Firebase Auth.
type UserToImport struct {
	params map[string]interface{}
	claims map[string]interface{}
}

func (u *UserToImport) set(key string, value interface{}) *UserToImport {
	if u.params == nil {
		u.params = make(map[string]interface{})
	}
	u.params[key] = value
	return u
}

// UID setter. This field is required.
func (u *UserToImport) UID(uid string) *UserToImport { return u.set("localId", uid) }

// Email setter.
func (u *UserToImport) Email(email string) *UserToImport { return u.set("email", email) }

// EmailVerified setter.
func (u *UserToImport) EmailVerified(verified bool) *UserToImport {
	return u.set("emailVerified", verified)
}

// DisplayName setter.
func (u *UserToImport) DisplayName(name string) *UserToImport { return u.set("displayName", name) }

// PhoneNumber setter.
func (u *UserToImport) PhoneNumber(phone string) *UserToImport { return u.set("phoneNumber", phone) }

// PhotoURL setter.
func (u *UserToImport) PhotoURL(url string) *UserToImport { return u.set("photoUrl", url) }

// Disabled setter.
func (u *UserToImport) Disabled(disabled bool) *UserToImport { return u.set("disabled", disabled) }

// PasswordHash setter. When set, a UserImportHash must be specified as an option to call
// ImportUsers.
func (u *UserToImport) PasswordHash(hash []byte) *UserToImport {
	return u.set("passwordHash", base64.RawURLEncoding.EncodeToString(hash))
}

// PasswordSalt setter.
func (u *UserToImport) PasswordSalt(salt []byte) *UserToImport {
	return u.set("salt", base64.RawURLEncoding.EncodeToString(salt))
}

// CustomClaims setter.
func (u *UserToImport) CustomClaims(claims map[string]interface{}) *UserToImport {
	u.claims = claims
	return u
}

// Metadata setter.
func (u *UserToImport) Metadata(metadata *UserMetadata) *UserToImport {
	u.set("createdAt", metadata.CreationTimestamp)
	return u.set("lastLoginAt", metadata.LastLogInTimestamp)
}

// ProviderData setter.
func (u *UserToImport) ProviderData(providers []*UserInfo) *UserToImport {
	return u.set("providerUserInfo", providers)
}

func (u *UserToImport) validatedEntry() (map[string]interface{}, error) {
	entry := make(map[string]interface{})
	for k, v := range u.params {
		entry[k] = v
	}
	uid, ok := entry["localId"].(string)
	if !ok {
		return nil, errors.New("no uid specified for user")
	}
	if err := validateUID(uid); err != nil {
		return nil, err
	}
	if len(u.claims) > 0 {
		serialized, err := marshalCustomClaims(u.claims)
		if err != nil {
			return nil, err
		}
		entry["customAttributes"] = serialized
	}
	return entry, nil
}

// ImportUsers imports an array of users to Firebase Auth.
//
// No more than 1000 users can be imported in a single call. If at least one user specifies a
// password hash, a UserImportHash must be specified as an option. The server reports per-row
// failures with an HTTP 200; when that happens ImportUsers returns the result along with a
// non-nil *ImportError enumerating each rejected row.
func (c *Client) ImportUsers(ctx context.Context, users []*UserToImport, opts ...UserImportOption) (*UserImportResult, error) {
	if len(users) == 0 {
		return nil, errors.New("users list must not be empty")
	}
	if len(users) > maxImportUsers {
		return nil, fmt.Errorf("users list must not contain more than %d items", maxImportUsers)
	}

	req := make(map[string]interface{})
	hashRequired := false
	var entries []map[string]interface{}
	for _, u := range users {
		entry, err := u.validatedEntry()
		if err != nil {
			return nil, err
		}
		if _, ok := entry["passwordHash"]; ok {
			hashRequired = true
		}
		entries = append(entries, entry)
	}
	req["users"] = entries

	for _, opt := range opts {
		if err := opt.applyTo(req); err != nil {
			return nil, err
		}
	}
	if hashRequired {
		if _, ok := req["hashAlgorithm"]; !ok {
			return nil, errors.New("hash algorithm option is required to import users with passwords")
		}
	}

	var parsed struct {
		Error []*ErrorInfo `json:"error"`
	}
	if err := c.post(ctx, "/accounts:batchCreate", req, &parsed); err != nil {
		return nil, err
	}
	result := &UserImportResult{
		SuccessCount: len(users) - len(parsed.Error),
		FailureCount: len(parsed.Error),
		Errors:       parsed.Error,
	}
	if len(parsed.Error) > 0 {
		return result, &ImportError{Errors: parsed.Error}
	}
	return result, nil
}
