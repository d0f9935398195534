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

package storage

import (
	"context"
	"testing"

	"github.com/firebase/firebase-admin-go/internal"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, bucket string) *Client {
	client, err := NewClient(context.Background(), &internal.StorageConfig{
		Opts: []option.ClientOption{
			option.WithTokenSource(&internal.MockTokenSource{AccessToken: "test-token"}),
		},
		Bucket: bucket,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func TestDefaultBucket(t *testing.T) {
	client := newTestClient(t, "test-bucket")
	bucket, err := client.DefaultBucket()
	if err != nil {
		t.Fatal(err)
	}
	if bucket == nil {
		t.Error("DefaultBucket() = nil; want bucket handle")
	}
}

func TestNoDefaultBucket(t *testing.T) {
	client := newTestClient(t, "")
	bucket, err := client.DefaultBucket()
	if bucket != nil || err == nil {
		t.Errorf("DefaultBucket() = (%v, %v); want (nil, error)", bucket, err)
	}
}

func TestBucket(t *testing.T) {
	client := newTestClient(t, "test-bucket")
	bucket, err := client.Bucket("other-bucket")
	if err != nil {
		t.Fatal(err)
	}
	if bucket == nil {
		t.Error("Bucket() = nil; want bucket handle")
	}
}

func TestBucketEmptyName(t *testing.T) {
	client := newTestClient(t, "test-bucket")
	bucket, err := client.Bucket("")
	if bucket != nil || err == nil {
		t.Errorf("Bucket('') = (%v, %v); want (nil, error)", bucket, err)
	}
}
