// Copyright 2018 Google Inc. All Rights Reserved.
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
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"github.com/firebase/firebase-admin-go/internal"
)

const jwksRefreshInterval = time.Hour

// tokenVerifier verifies signed JWTs issued by the Firebase Auth service, such as ID tokens
// and session cookies. Public keys are fetched from a JWKS endpoint and cached in memory by
// the keyfunc library, which handles refresh based on the configured interval.
type tokenVerifier struct {
	projectID string
	shortName string
	issuer    string
	jwksURL   string
	hc        *http.Client
	clock     internal.Clock

	mutex sync.Mutex
	jwks  *keyfunc.JWKS
}

func newTokenVerifier(projectID, shortName, jwksURL string, hc *http.Client, clock internal.Clock) *tokenVerifier {
	return &tokenVerifier{
		projectID: projectID,
		shortName: shortName,
		issuer:    issuerPrefix + projectID,
		jwksURL:   jwksURL,
		hc:        hc,
		clock:     clock,
	}
}

func (tv *tokenVerifier) keys() (*keyfunc.JWKS, error) {
	tv.mutex.Lock()
	defer tv.mutex.Unlock()
	if tv.jwks == nil {
		jwks, err := keyfunc.Get(tv.jwksURL, keyfunc.Options{
			Client:            tv.hc,
			RefreshInterval:   jwksRefreshInterval,
			RefreshUnknownKID: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s signing keys: %v", tv.shortName, err)
		}
		tv.jwks = jwks
	}
	return tv.jwks, nil
}

// VerifyToken checks the structure, claims and signature of the given token, in that order.
// Claim errors are reported before signature errors since they are cheaper to detect and
// more actionable for the caller.
func (tv *tokenVerifier) VerifyToken(_ context.Context, token string) (*Token, error) {
	if token == "" {
		return nil, fmt.Errorf("%s must be a non-empty string", tv.shortName)
	}
	if tv.projectID == "" {
		return nil, fmt.Errorf("project ID is required to verify %s", tv.shortName)
	}

	payload, err := tv.decodeUnverified(token)
	if err != nil {
		return nil, err
	}
	if err := tv.verifyClaims(payload); err != nil {
		return nil, err
	}
	if err := tv.verifySignature(token); err != nil {
		return nil, err
	}
	return payload, nil
}

// decodeUnverified decodes the token segments without checking the signature. The signature
// is verified separately after the claims have been validated.
func (tv *tokenVerifier) decodeUnverified(token string) (*Token, error) {
	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", tv.shortName, err)
	}

	if alg, _ := parsed.Header["alg"].(string); alg != jwt.SigningMethodRS256.Alg() {
		return nil, fmt.Errorf("%s has invalid algorithm; expected %q but got %q",
			tv.shortName, jwt.SigningMethodRS256.Alg(), alg)
	}
	if kid, _ := parsed.Header["kid"].(string); kid == "" {
		return nil, fmt.Errorf("%s has no 'kid' header", tv.shortName)
	}

	// Round trip through JSON to populate the typed claim fields.
	b, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	var payload Token
	if err := json.Unmarshal(b, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode %s claims: %v", tv.shortName, err)
	}
	var allClaims map[string]interface{}
	if err := json.Unmarshal(b, &allClaims); err != nil {
		return nil, err
	}
	payload.UID = payload.Subject
	payload.Claims = allClaims
	return &payload, nil
}

func (tv *tokenVerifier) verifyClaims(payload *Token) error {
	projectIDMsg := fmt.Sprintf("make sure the %s comes from the same Firebase project as the "+
		"credential used to authenticate this SDK", tv.shortName)
	now := tv.clock.Now().Unix()

	switch {
	case payload.Audience != tv.projectID:
		return fmt.Errorf("%s has invalid 'aud' (audience) claim; expected %q but got %q; %s",
			tv.shortName, tv.projectID, payload.Audience, projectIDMsg)
	case payload.Issuer != tv.issuer:
		return fmt.Errorf("%s has invalid 'iss' (issuer) claim; expected %q but got %q; %s",
			tv.shortName, tv.issuer, payload.Issuer, projectIDMsg)
	case payload.IssuedAt > now:
		return fmt.Errorf("%s issued at future timestamp: %d", tv.shortName, payload.IssuedAt)
	case payload.Expires <= now:
		return fmt.Errorf("%s has expired at: %d", tv.shortName, payload.Expires)
	case payload.Subject == "":
		return fmt.Errorf("%s has empty 'sub' (subject) claim", tv.shortName)
	case len(payload.Subject) > 128:
		return fmt.Errorf("%s has a 'sub' (subject) claim longer than 128 characters", tv.shortName)
	}
	return nil
}

func (tv *tokenVerifier) verifySignature(token string) error {
	jwks, err := tv.keys()
	if err != nil {
		return err
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.Parse(token, jwks.Keyfunc); err != nil {
		if strings.Contains(err.Error(), "the given key ID was not found in the JWKS") {
			return fmt.Errorf("failed to verify %s signature; the signing key is unknown", tv.shortName)
		}
		return fmt.Errorf("failed to verify %s signature: %v", tv.shortName, err)
	}
	return nil
}
