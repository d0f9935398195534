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

// Package auth contains functions for minting custom authentication tokens,
// verifying Firebase ID tokens, and managing users in a Firebase project.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/transport"

	"github.com/firebase/firebase-admin-go/internal"
)

const (
	idToolkitV1Endpoint = "https://identitytoolkit.googleapis.com/v1"

	firebaseAudience = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"
	issuerPrefix     = "https://securetoken.google.com/"

	idTokenCertURL       = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	sessionCookieCertURL = "https://www.googleapis.com/service_accounts/v1/jwk/session-cookie-signer@system.gserviceaccount.com"

	clientVersionHeader = "X-Client-Version"

	defaultSessionCookieMinDuration = 5 * time.Minute
	defaultSessionCookieMaxDuration = 14 * 24 * time.Hour
)

// ErrTokenRevoked is returned by VerifyIDTokenAndCheckRevoked and
// VerifySessionCookieAndCheckRevoked when the token is valid but has been
// revoked for the user.
var ErrTokenRevoked = errors.New("token has been revoked")

// Token represents a decoded Firebase ID token.
//
// Token provides typed accessors to the common JWT fields such as Audience (aud) and Expires (exp).
// Additionally it provides a UID field, which indicates the user ID of the account to which this token
// belongs. Any additional JWT claims can be accessed via the Claims map of Token.
type Token struct {
	AuthTime int64                  `json:"auth_time"`
	Issuer   string                 `json:"iss"`
	Audience string                 `json:"aud"`
	Expires  int64                  `json:"exp"`
	IssuedAt int64                  `json:"iat"`
	Subject  string                 `json:"sub,omitempty"`
	UID      string                 `json:"uid,omitempty"`
	Firebase FirebaseInfo           `json:"firebase"`
	Claims   map[string]interface{} `json:"-"`
}

// FirebaseInfo represents the information about the sign-in event, including which auth provider
// was used and provider-specific identity details.
//
// This data is provided by the Firebase Auth service and is a reserved claim in the ID token.
type FirebaseInfo struct {
	SignInProvider string                 `json:"sign_in_provider"`
	Identities     map[string]interface{} `json:"identities"`
}

// Client is the interface for the Firebase auth service.
//
// Client facilitates generating custom JWT tokens for Firebase clients, verifying ID tokens issued
// by Firebase, and managing user accounts in a Firebase project.
type Client struct {
	// TenantManager manages the tenants of a multi-tenant project, and mints
	// TenantClient instances scoped to individual tenants.
	TenantManager *TenantManager

	hc              *internal.HTTPClient
	baseURL         string
	projectID       string
	tenantID        string // non-empty only on clients minted by AuthForTenant
	signer          cryptoSigner
	idTokenVerifier *tokenVerifier
	cookieVerifier  *tokenVerifier
	clock           internal.Clock
}

// NewClient creates a new instance of the Firebase Auth Client.
//
// This function can only be invoked from within the SDK. Client applications should access the
// Auth service through firebase.App.
func NewClient(ctx context.Context, conf *internal.AuthConfig) (*Client, error) {
	signer, err := newCryptoSigner(ctx, conf)
	if err != nil {
		return nil, err
	}

	hc, _, err := internal.NewHTTPClient(ctx, conf.Opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = internal.NewFirebaseErrorOnePlatform
	hc.Opts = []internal.HTTPOption{
		internal.WithHeader(clientVersionHeader, fmt.Sprintf("Go/Admin/%s", conf.Version)),
	}

	httpClient, _, err := transport.NewHTTPClient(ctx, conf.Opts...)
	if err != nil {
		return nil, err
	}

	clock := &internal.SystemClock{}
	client := &Client{
		hc:        hc,
		baseURL:   idToolkitV1Endpoint,
		projectID: conf.ProjectID,
		signer:    signer,
		idTokenVerifier: newTokenVerifier(
			conf.ProjectID, "ID token", idTokenCertURL, httpClient, clock),
		cookieVerifier: newTokenVerifier(
			conf.ProjectID, "session cookie", sessionCookieCertURL, httpClient, clock),
		clock: clock,
	}
	client.TenantManager = newTenantManager(client, conf)
	return client, nil
}

// CustomToken creates a signed custom authentication token with the specified user ID.
//
// The resulting JWT can be used in a Firebase client SDK to trigger an authentication flow. See
// https://firebase.google.com/docs/auth/admin/create-custom-tokens for more details on how to use
// custom tokens for client authentication.
func (c *Client) CustomToken(ctx context.Context, uid string) (string, error) {
	return c.CustomTokenWithClaims(ctx, uid, nil)
}

// CustomTokenWithClaims is similar to CustomToken, but in addition to the user ID, it also encodes
// all the key-value pairs in the provided map as claims in the resulting JWT.
func (c *Client) CustomTokenWithClaims(ctx context.Context, uid string, devClaims map[string]interface{}) (string, error) {
	if n := len(uid); n == 0 || n > 128 {
		return "", fmt.Errorf("uid must be non-empty, and not longer than 128 characters: %q", uid)
	}

	var disallowed []string
	for _, k := range reservedClaims {
		if _, ok := devClaims[k]; ok {
			disallowed = append(disallowed, k)
		}
	}
	if len(disallowed) == 1 {
		return "", fmt.Errorf("developer claim %q is reserved and cannot be specified", disallowed[0])
	} else if len(disallowed) > 1 {
		return "", fmt.Errorf("developer claims %q are reserved and cannot be specified", disallowed)
	}

	return c.signCustomToken(ctx, uid, devClaims)
}

// SessionCookie creates a new Firebase session cookie from the given ID token and expiry
// duration. The returned JWT can be set as a server-side session cookie with a custom cookie
// policy. Expiry duration must be at least five minutes but may not exceed 14 days.
func (c *Client) SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error) {
	if idToken == "" {
		return "", errors.New("id token must not be empty")
	}
	if expiresIn < defaultSessionCookieMinDuration || expiresIn > defaultSessionCookieMaxDuration {
		return "", errors.New("expiry duration must be between 5 minutes and 14 days")
	}

	url := fmt.Sprintf("%s/projects/%s:createSessionCookie", c.baseURL, c.projectID)
	body := map[string]interface{}{
		"idToken":       idToken,
		"validDuration": int64(expiresIn.Seconds()),
	}
	var result struct {
		SessionCookie string `json:"sessionCookie"`
	}
	req := &internal.Request{
		Method: "POST",
		URL:    url,
		Body:   internal.NewJSONEntity(body),
	}
	if _, err := c.hc.DoAndUnmarshal(ctx, req, &result); err != nil {
		return "", err
	}
	return result.SessionCookie, nil
}

// VerifyIDToken verifies the signature and payload of the provided ID token.
//
// VerifyIDToken accepts a signed JWT token string, and verifies that it is current, issued for the
// correct Firebase project, and signed by the Google Firebase services in the cloud. It returns
// a Token containing the decoded claims in the input JWT. See
// https://firebase.google.com/docs/auth/admin/verify-id-tokens for more details on how to use
// server-side ID token verification.
//
// In addition to the checks mentioned above, this function also validates that the token contains
// a valid UID. However, VerifyIDToken does not check whether a token has been revoked. Use
// VerifyIDTokenAndCheckRevoked for that.
func (c *Client) VerifyIDToken(ctx context.Context, idToken string) (*Token, error) {
	return c.idTokenVerifier.VerifyToken(ctx, idToken)
}

// VerifyIDTokenAndCheckRevoked verifies the provided ID token, and additionally checks that the
// token has not been revoked.
//
// Unlike VerifyIDToken, this function must make an RPC call to perform the revocation check.
func (c *Client) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*Token, error) {
	decoded, err := c.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	if err := c.checkRevoked(ctx, decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

// VerifySessionCookie verifies the signature and payload of the provided Firebase session cookie.
//
// VerifySessionCookie accepts a signed JWT token string, and verifies that it is current, issued
// for the correct Firebase project, and signed by the Google Firebase services in the cloud. It
// returns a Token containing the decoded claims in the input JWT.
func (c *Client) VerifySessionCookie(ctx context.Context, sessionCookie string) (*Token, error) {
	return c.cookieVerifier.VerifyToken(ctx, sessionCookie)
}

// VerifySessionCookieAndCheckRevoked verifies the provided session cookie, and additionally checks
// that the cookie has not been revoked.
func (c *Client) VerifySessionCookieAndCheckRevoked(ctx context.Context, sessionCookie string) (*Token, error) {
	decoded, err := c.VerifySessionCookie(ctx, sessionCookie)
	if err != nil {
		return nil, err
	}
	if err := c.checkRevoked(ctx, decoded); err != nil {
		return nil, err
	}
	return decoded, nil
}

func (c *Client) checkRevoked(ctx context.Context, token *Token) error {
	user, err := c.GetUser(ctx, token.UID)
	if err != nil {
		return err
	}
	if token.IssuedAt*1000 < user.TokensValidAfterMillis {
		return ErrTokenRevoked
	}
	return nil
}
