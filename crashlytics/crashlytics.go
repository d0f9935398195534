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

// Package crashlytics provides administrative access to Firebase Crashlytics data.
package crashlytics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/firebase/firebase-admin-go/internal"
)

const crashlyticsEndpoint = "https://firebasecrashlytics.googleapis.com/v1alpha"

// Client is the interface for the Firebase Crashlytics service.
type Client struct {
	hc       *internal.HTTPClient
	endpoint string // To enable testing against arbitrary endpoints.
	project  string
}

// NewClient creates a new instance of the Crashlytics Client.
//
// This function can only be invoked from within the SDK. Client applications should
// access the Crashlytics service through firebase.App.
func NewClient(ctx context.Context, c *internal.CrashlyticsConfig) (*Client, error) {
	if c.ProjectID == "" {
		return nil, errors.New("project ID is required to access Crashlytics")
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
		endpoint: crashlyticsEndpoint,
		project:  c.ProjectID,
	}, nil
}

// DeleteCrashReports deletes all crash reports recorded for the given user of the
// given app.
//
// The app ID is the fully qualified Firebase app resource ID, e.g.
// "1:1234567890:android:321abc456def7890". Deleting reports for a user that has none
// is not an error.
func (c *Client) DeleteCrashReports(ctx context.Context, appID, userID string) error {
	if appID == "" {
		return errors.New("app ID must not be empty")
	}
	if userID == "" {
		return errors.New("user ID must not be empty")
	}

	_, err := c.hc.Do(ctx, &internal.Request{
		Method: http.MethodDelete,
		URL:    fmt.Sprintf("%s/projects/%s/apps/%s/users/%s/crashReports", c.endpoint, c.project, appID, userID),
		SuccessFn: func(r *internal.Response) bool {
			return internal.HasSuccessStatus(r) || r.Status == http.StatusNotFound
		},
	})
	return err
}
