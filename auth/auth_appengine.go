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

//go:build appengine
// +build appengine

package auth

import (
	"context"

	"google.golang.org/appengine/v2"

	"github.com/firebase/firebase-admin-go/internal"
)

func newCryptoSigner(ctx context.Context, config *internal.AuthConfig) (cryptoSigner, error) {
	return aeSigner{}, nil
}

// aeSigner signs tokens with the App Engine runtime's built-in service account.
type aeSigner struct{}

func (s aeSigner) Sign(ctx context.Context, b []byte) ([]byte, error) {
	_, sig, err := appengine.SignBytes(ctx, b)
	return sig, err
}

func (s aeSigner) Email(ctx context.Context) (string, error) {
	return appengine.ServiceAccount(ctx)
}
