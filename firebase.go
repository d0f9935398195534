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

// Package firebase is the entry point to the Firebase Admin SDK. It provides functionality for initializing App
// instances, which serve as the central entities that provide access to various other Firebase services exposed
// from the SDK.
package firebase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/transport"

	"github.com/firebase/firebase-admin-go/auth"
	"github.com/firebase/firebase-admin-go/crashlytics"
	"github.com/firebase/firebase-admin-go/firestore"
	"github.com/firebase/firebase-admin-go/internal"
	"github.com/firebase/firebase-admin-go/messaging"
	"github.com/firebase/firebase-admin-go/remoteconfig"
	"github.com/firebase/firebase-admin-go/storage"
)

var firebaseScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/devstorage.full_control",
	"https://www.googleapis.com/auth/firebase",
	"https://www.googleapis.com/auth/identitytoolkit",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Version of the Firebase Go Admin SDK.
const Version = "4.0.0"

// firebaseEnvName is the name of the environment variable with the Config.
const firebaseEnvName = "FIREBASE_CONFIG"

// An App holds configuration and state common to all Firebase services that are exposed from the SDK.
type App struct {
	creds            *google.Credentials
	projectID        string
	serviceAccountID string
	storageBucket    string
	opts             []option.ClientOption
}

// Config represents the configuration used to initialize an App.
type Config struct {
	ProjectID        string `json:"projectId"`
	ServiceAccountID string `json:"serviceAccountId"`
	StorageBucket    string `json:"storageBucket"`
}

// NewApp creates a new App from the provided config and client options.
//
// If the client options contain a valid credential (a service account file, a refresh token
// file or an oauth2.TokenSource) the App will be authenticated using that credential. Otherwise,
// NewApp attempts to authenticate the App with Google application default credentials.
// If `config` is nil, the SDK will attempt to load the config options from the
// `FIREBASE_CONFIG` environment variable. If the value in it starts with a `{` it is parsed as a
// JSON object, otherwise it is treated as a file name containing the JSON configuration.
func NewApp(ctx context.Context, config *Config, opts ...option.ClientOption) (*App, error) {
	o := []option.ClientOption{option.WithScopes(firebaseScopes...)}
	o = append(o, opts...)

	creds, _ := transport.Creds(ctx, o...)
	if config == nil {
		var err error
		if config, err = getConfigDefaults(); err != nil {
			return nil, err
		}
	}

	pid := projectID(config, creds)
	return &App{
		creds:            creds,
		projectID:        pid,
		serviceAccountID: config.ServiceAccountID,
		storageBucket:    config.StorageBucket,
		opts:             o,
	}, nil
}

// getConfigDefaults reads the default config file, defined by the FIREBASE_CONFIG
// env variable, used only when options are nil.
func getConfigDefaults() (*Config, error) {
	fbc := &Config{}
	confFileName := os.Getenv(firebaseEnvName)
	if confFileName == "" {
		return fbc, nil
	}
	var dat []byte
	if confFileName[0] == byte('{') {
		dat = []byte(confFileName)
	} else {
		var err error
		if dat, err = os.ReadFile(confFileName); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal(dat, fbc); err != nil {
		return nil, err
	}
	return fbc, nil
}

func projectID(config *Config, creds *google.Credentials) string {
	if config.ProjectID != "" {
		return config.ProjectID
	}
	if creds != nil && creds.ProjectID != "" {
		return creds.ProjectID
	}
	if pid := os.Getenv("GOOGLE_CLOUD_PROJECT"); pid != "" {
		return pid
	}
	return os.Getenv("GCLOUD_PROJECT")
}

// Auth returns an instance of auth.Client.
func (a *App) Auth(ctx context.Context) (*auth.Client, error) {
	conf := &internal.AuthConfig{
		ProjectID:        a.projectID,
		Opts:             a.opts,
		ServiceAccountID: a.serviceAccountID,
		Version:          Version,
	}
	return auth.NewClient(ctx, conf)
}

// Firestore returns an instance of firestore.Client.
func (a *App) Firestore(ctx context.Context) (*firestore.Client, error) {
	conf := &internal.FirestoreConfig{
		ProjectID: a.projectID,
		Opts:      a.opts,
		Version:   Version,
	}
	return firestore.NewClient(ctx, conf)
}

// FirestoreWithDatabase returns an instance of firestore.Client bound to the given database
// instead of the default one.
func (a *App) FirestoreWithDatabase(ctx context.Context, databaseID string) (*firestore.Client, error) {
	if strings.TrimSpace(databaseID) == "" {
		return nil, errors.New("database ID must not be empty")
	}
	conf := &internal.FirestoreConfig{
		ProjectID:  a.projectID,
		DatabaseID: databaseID,
		Opts:       a.opts,
		Version:    Version,
	}
	return firestore.NewClient(ctx, conf)
}

// Messaging returns an instance of messaging.Client.
func (a *App) Messaging(ctx context.Context) (*messaging.Client, error) {
	conf := &internal.MessagingConfig{
		ProjectID: a.projectID,
		Opts:      a.opts,
		Version:   Version,
	}
	return messaging.NewClient(ctx, conf)
}

// RemoteConfig returns an instance of remoteconfig.Client.
func (a *App) RemoteConfig(ctx context.Context) (*remoteconfig.Client, error) {
	conf := &internal.RemoteConfigClientConfig{
		ProjectID: a.projectID,
		Opts:      a.opts,
		Version:   Version,
	}
	return remoteconfig.NewClient(ctx, conf)
}

// Storage returns a new instance of storage.Client.
func (a *App) Storage(ctx context.Context) (*storage.Client, error) {
	conf := &internal.StorageConfig{
		Opts:   a.opts,
		Bucket: a.storageBucket,
	}
	return storage.NewClient(ctx, conf)
}

// Crashlytics returns an instance of crashlytics.Client.
func (a *App) Crashlytics(ctx context.Context) (*crashlytics.Client, error) {
	conf := &internal.CrashlyticsConfig{
		ProjectID: a.projectID,
		Opts:      a.opts,
		Version:   Version,
	}
	return crashlytics.NewClient(ctx, conf)
}
