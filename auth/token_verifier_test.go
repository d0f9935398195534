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
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
)

const testKeyID = "test-key-id"

// newJWKSServer serves the public half of the given key in JWK set format, the way the
// Google securetoken JWKS endpoint does.
func newJWKSServer(t *testing.T, pub *rsa.PublicKey) *httptest.Server {
	t.Helper()
	jwks := map[string]interface{}{
		"keys": []map[string]interface{}{
			{
				"kty": "RSA",
				"alg": "RS256",
				"use": "sig",
				"kid": testKeyID,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(jwks); err != nil {
			t.Error(err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type mutateClaims func(claims jwt.MapClaims)

func signTestToken(t *testing.T, key *rsa.PrivateKey, kid string, mutate mutateClaims) string {
	t.Helper()
	now := testClock.Now().Unix()
	claims := jwt.MapClaims{
		"aud":       testProjectID,
		"iss":       issuerPrefix + testProjectID,
		"sub":       "user1",
		"iat":       now - 100,
		"exp":       now + 3500,
		"auth_time": now - 100,
		"admin":     true,
		"firebase": map[string]interface{}{
			"sign_in_provider": "custom",
		},
	}
	if mutate != nil {
		mutate(claims)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

// newTestVerifierClient wires a client's ID token verifier to a local JWKS server.
func newTestVerifierClient(t *testing.T) (*mockAuthServer, *rsa.PrivateKey) {
	s := newMockAuthServer(t)
	key := generateTestKey(t)
	jwksServer := newJWKSServer(t, &key.PublicKey)
	s.client.idTokenVerifier = newTokenVerifier(
		testProjectID, "ID token", jwksServer.URL, http.DefaultClient, testClock)
	s.client.cookieVerifier = newTokenVerifier(
		testProjectID, "session cookie", jwksServer.URL, http.DefaultClient, testClock)
	return s, key
}

func TestVerifyIDToken(t *testing.T) {
	s, key := newTestVerifierClient(t)
	idToken := signTestToken(t, key, testKeyID, nil)

	token, err := s.client.VerifyIDToken(context.Background(), idToken)
	if err != nil {
		t.Fatal(err)
	}
	if token.UID != "user1" || token.Subject != "user1" {
		t.Errorf("UID = %q, Subject = %q; want user1, user1", token.UID, token.Subject)
	}
	if token.Audience != testProjectID {
		t.Errorf("Audience = %q; want %q", token.Audience, testProjectID)
	}
	if token.Issuer != issuerPrefix+testProjectID {
		t.Errorf("Issuer = %q; want %q", token.Issuer, issuerPrefix+testProjectID)
	}
	if token.Firebase.SignInProvider != "custom" {
		t.Errorf("SignInProvider = %q; want custom", token.Firebase.SignInProvider)
	}
	if admin, ok := token.Claims["admin"].(bool); !ok || !admin {
		t.Errorf("Claims[admin] = %v; want true", token.Claims["admin"])
	}
}

func TestVerifyIDTokenInvalidClaims(t *testing.T) {
	s, key := newTestVerifierClient(t)
	now := testClock.Now().Unix()
	cases := []struct {
		name    string
		mutate  mutateClaims
		wantMsg string
	}{
		{
			"WrongAudience",
			func(c jwt.MapClaims) { c["aud"] = "other-project" },
			"'aud' (audience)",
		},
		{
			"WrongIssuer",
			func(c jwt.MapClaims) { c["iss"] = issuerPrefix + "other-project" },
			"'iss' (issuer)",
		},
		{
			"Expired",
			func(c jwt.MapClaims) { c["exp"] = now - 10 },
			"expired",
		},
		{
			"IssuedInFuture",
			func(c jwt.MapClaims) { c["iat"] = now + 1000 },
			"future",
		},
		{
			"EmptySubject",
			func(c jwt.MapClaims) { c["sub"] = "" },
			"'sub' (subject)",
		},
		{
			"LongSubject",
			func(c jwt.MapClaims) { c["sub"] = strings.Repeat("a", 129) },
			"'sub' (subject)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			idToken := signTestToken(t, key, testKeyID, tc.mutate)
			_, err := s.client.VerifyIDToken(context.Background(), idToken)
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("VerifyIDToken error = %v; want message containing %q", err, tc.wantMsg)
			}
		})
	}
}

func TestVerifyIDTokenStructuralErrors(t *testing.T) {
	s, key := newTestVerifierClient(t)

	t.Run("Empty", func(t *testing.T) {
		if _, err := s.client.VerifyIDToken(context.Background(), ""); err == nil {
			t.Error("VerifyIDToken(\"\") did not return an error")
		}
	})

	t.Run("NotAJWT", func(t *testing.T) {
		if _, err := s.client.VerifyIDToken(context.Background(), "not-a-token"); err == nil {
			t.Error("VerifyIDToken did not return an error for a malformed token")
		}
	})

	t.Run("NoKeyID", func(t *testing.T) {
		idToken := signTestToken(t, key, "", nil)
		_, err := s.client.VerifyIDToken(context.Background(), idToken)
		if err == nil || !strings.Contains(err.Error(), "kid") {
			t.Errorf("VerifyIDToken error = %v; want missing kid error", err)
		}
	})

	t.Run("WrongAlgorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"aud": testProjectID,
			"iss": issuerPrefix + testProjectID,
			"sub": "user1",
		})
		token.Header["kid"] = testKeyID
		signed, err := token.SignedString([]byte("secret"))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.client.VerifyIDToken(context.Background(), signed); err == nil ||
			!strings.Contains(err.Error(), "algorithm") {
			t.Errorf("VerifyIDToken error = %v; want algorithm error", err)
		}
	})

	t.Run("UnknownKeyID", func(t *testing.T) {
		idToken := signTestToken(t, key, "unknown-kid", nil)
		_, err := s.client.VerifyIDToken(context.Background(), idToken)
		if err == nil || !strings.Contains(err.Error(), "signature") {
			t.Errorf("VerifyIDToken error = %v; want signature error", err)
		}
	})

	t.Run("TamperedSignature", func(t *testing.T) {
		otherKey := generateTestKey(t)
		idToken := signTestToken(t, otherKey, testKeyID, nil)
		if _, err := s.client.VerifyIDToken(context.Background(), idToken); err == nil {
			t.Error("VerifyIDToken did not reject a token signed with the wrong key")
		}
	})
}

func TestVerifySessionCookie(t *testing.T) {
	s, key := newTestVerifierClient(t)
	cookie := signTestToken(t, key, testKeyID, nil)

	token, err := s.client.VerifySessionCookie(context.Background(), cookie)
	if err != nil {
		t.Fatal(err)
	}
	if token.UID != "user1" {
		t.Errorf("UID = %q; want user1", token.UID)
	}
}

func lookupResponseWithValidSince(validSince int64) map[string]interface{} {
	return map[string]interface{}{
		"users": []map[string]interface{}{
			{
				"localId":    "user1",
				"validSince": strconv.FormatInt(validSince, 10),
			},
		},
	}
}

func TestVerifyIDTokenAndCheckRevoked(t *testing.T) {
	s, key := newTestVerifierClient(t)
	idToken := signTestToken(t, key, testKeyID, nil)

	// Tokens valid from before this one was issued: not revoked.
	s.routes[":lookup"] = lookupResponseWithValidSince(testClock.Now().Unix() - 1000)
	if _, err := s.client.VerifyIDTokenAndCheckRevoked(context.Background(), idToken); err != nil {
		t.Fatalf("VerifyIDTokenAndCheckRevoked: %v", err)
	}

	s.routes[":lookup"] = lookupResponseWithValidSince(testClock.Now().Unix())
	_, err := s.client.VerifyIDTokenAndCheckRevoked(context.Background(), idToken)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("VerifyIDTokenAndCheckRevoked error = %v; want ErrTokenRevoked", err)
	}
}

func TestVerifySessionCookieAndCheckRevoked(t *testing.T) {
	s, key := newTestVerifierClient(t)
	cookie := signTestToken(t, key, testKeyID, nil)

	s.routes[":lookup"] = lookupResponseWithValidSince(testClock.Now().Unix())
	_, err := s.client.VerifySessionCookieAndCheckRevoked(context.Background(), cookie)
	if !errors.Is(err, ErrTokenRevoked) {
		t.Errorf("VerifySessionCookieAndCheckRevoked error = %v; want ErrTokenRevoked", err)
	}
}

// The verifier must keep working if the JWKS endpoint becomes unreachable after the initial
// key fetch; keyfunc serves cached keys in that case.
func TestVerifyIDTokenUsesCachedKeys(t *testing.T) {
	s := newMockAuthServer(t)
	key := generateTestKey(t)
	jwksServer := newJWKSServer(t, &key.PublicKey)
	s.client.idTokenVerifier = newTokenVerifier(
		testProjectID, "ID token", jwksServer.URL, http.DefaultClient, testClock)

	idToken := signTestToken(t, key, testKeyID, nil)
	if _, err := s.client.VerifyIDToken(context.Background(), idToken); err != nil {
		t.Fatal(err)
	}

	jwksServer.Close()
	if _, err := s.client.VerifyIDToken(context.Background(), idToken); err != nil {
		t.Fatalf("VerifyIDToken after JWKS server shutdown: %v", err)
	}
}
