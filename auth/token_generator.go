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
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/firebase/firebase-admin-go/internal"
)

const customTokenDuration = time.Hour

// reservedClaims are the JWT claims used by Firebase itself. Developer-provided
// custom claims may not shadow them.
var reservedClaims = []string{
	"acr", "amr", "at_hash", "aud", "auth_time", "azp", "cnf", "c_hash",
	"exp", "firebase", "iat", "iss", "jti", "nbf", "nonce", "sub",
}

// cryptoSigner is used to cryptographically sign data, and report the identity of the signer.
type cryptoSigner interface {
	Sign(context.Context, []byte) ([]byte, error)
	Email(context.Context) (string, error)
}

func (c *Client) signCustomToken(ctx context.Context, uid string, devClaims map[string]interface{}) (string, error) {
	email, err := c.signer.Email(ctx)
	if err != nil {
		return "", err
	}

	now := c.clock.Now()
	claims := jwt.MapClaims{
		"iss": email,
		"sub": email,
		"aud": firebaseAudience,
		"uid": uid,
		"iat": now.Unix(),
		"exp": now.Add(customTokenDuration).Unix(),
	}
	if len(devClaims) > 0 {
		claims["claims"] = devClaims
	}

	token := &jwt.Token{
		Header: map[string]interface{}{
			"alg": jwt.SigningMethodRS256.Alg(),
			"typ": "JWT",
		},
		Claims: claims,
		Method: jwt.SigningMethodRS256,
	}
	ss, err := token.SigningString()
	if err != nil {
		return "", err
	}
	sig, err := c.signer.Sign(ctx, []byte(ss))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.%s", ss, base64.RawURLEncoding.EncodeToString(sig)), nil
}

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// serviceAccountSigner signs tokens locally with the RSA private key of a
// service account.
type serviceAccountSigner struct {
	privateKey  *rsa.PrivateKey
	clientEmail string
}

func newServiceAccountSigner(sa serviceAccount) (*serviceAccountSigner, error) {
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account private key: %v", err)
	}
	return &serviceAccountSigner{
		privateKey:  privateKey,
		clientEmail: sa.ClientEmail,
	}, nil
}

func (s *serviceAccountSigner) Sign(_ context.Context, b []byte) ([]byte, error) {
	hash := sha256.Sum256(b)
	return rsa.SignPKCS1v15(rand.Reader, s.privateKey, crypto.SHA256, hash[:])
}

func (s *serviceAccountSigner) Email(_ context.Context) (string, error) {
	return s.clientEmail, nil
}

// iamSigner delegates signing to the IAM Credentials signBlob API. It is used
// when no service account private key is available locally.
type iamSigner struct {
	mutex        sync.Mutex
	hc           *internal.HTTPClient
	serviceAcct  string
	metadataHost string
	iamHost      string
}

func newIAMSigner(ctx context.Context, config *internal.AuthConfig) (*iamSigner, error) {
	hc, _, err := internal.NewHTTPClient(ctx, config.Opts...)
	if err != nil {
		return nil, err
	}
	return &iamSigner{
		hc:           hc,
		serviceAcct:  config.ServiceAccountID,
		metadataHost: "http://metadata.google.internal",
		iamHost:      "https://iamcredentials.googleapis.com",
	}, nil
}

func (s *iamSigner) Sign(ctx context.Context, b []byte) ([]byte, error) {
	account, err := s.Email(ctx)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1/projects/-/serviceAccounts/%s:signBlob", s.iamHost, account)
	body := map[string]interface{}{
		"payload": base64.StdEncoding.EncodeToString(b),
	}
	var signResponse struct {
		Signature string `json:"signedBlob"`
	}
	req := &internal.Request{
		Method: "POST",
		URL:    url,
		Body:   internal.NewJSONEntity(body),
	}
	if _, err := s.hc.DoAndUnmarshal(ctx, req, &signResponse); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(signResponse.Signature)
}

func (s *iamSigner) Email(ctx context.Context) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.serviceAcct != "" {
		return s.serviceAcct, nil
	}

	url := fmt.Sprintf("%s/computeMetadata/v1/instance/service-accounts/default/email", s.metadataHost)
	req := &internal.Request{
		Method: "GET",
		URL:    url,
		Opts: []internal.HTTPOption{
			internal.WithHeader("Metadata-Flavor", "Google"),
		},
	}
	resp, err := s.hc.Do(ctx, req)
	if err != nil {
		return "", errors.New("failed to determine service account: initialize the SDK with service " +
			"account credentials, or specify a service account with iam.serviceAccounts.signBlob " +
			"permission")
	}
	account := string(resp.Body)
	if account == "" {
		return "", errors.New("failed to determine service account: metadata service returned an empty response")
	}
	s.serviceAcct = account
	return account, nil
}

func signerFromCreds(credsJSON []byte) (cryptoSigner, error) {
	var sa serviceAccount
	if err := json.Unmarshal(credsJSON, &sa); err != nil {
		return nil, err
	}
	if sa.PrivateKey == "" || sa.ClientEmail == "" {
		return nil, errors.New("no valid service account credentials")
	}
	return newServiceAccountSigner(sa)
}
