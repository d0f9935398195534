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

package messaging

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSubscribeToTopic(t *testing.T) {
	s := newMockFCMServer(t)
	s.resp = `{"results": [{}, {"error": "NOT_FOUND"}, {}]}`

	resp, err := s.client.SubscribeToTopic(context.Background(), []string{"t1", "t2", "t3"}, "news")
	if err != nil {
		t.Fatal(err)
	}

	if resp.SuccessCount != 2 || resp.FailureCount != 1 {
		t.Fatalf("response = %+v; want 2 successes, 1 failure", resp)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Index != 1 || resp.Errors[0].Reason != "NOT_FOUND" {
		t.Errorf("Errors = %+v", resp.Errors)
	}

	if s.req.URL.Path != "/iid/v1:batchAdd" {
		t.Errorf("path = %q; want /iid/v1:batchAdd", s.req.URL.Path)
	}
	if got := s.req.Header.Get("access_token_auth"); got != "true" {
		t.Errorf("access_token_auth = %q; want true", got)
	}

	var body struct {
		To     string   `json:"to"`
		Tokens []string `json:"registration_tokens"`
	}
	if err := json.Unmarshal(s.body, &body); err != nil {
		t.Fatal(err)
	}
	if body.To != "/topics/news" {
		t.Errorf("to = %q; want /topics/news", body.To)
	}
	if !cmp.Equal(body.Tokens, []string{"t1", "t2", "t3"}) {
		t.Errorf("tokens = %v", body.Tokens)
	}
}

func TestUnsubscribeFromTopic(t *testing.T) {
	s := newMockFCMServer(t)
	s.resp = `{"results": [{}]}`

	resp, err := s.client.UnsubscribeFromTopic(context.Background(), []string{"t1"}, "/topics/news")
	if err != nil {
		t.Fatal(err)
	}
	if resp.SuccessCount != 1 || resp.FailureCount != 0 {
		t.Errorf("response = %+v; want 1 success", resp)
	}
	if s.req.URL.Path != "/iid/v1:batchRemove" {
		t.Errorf("path = %q; want /iid/v1:batchRemove", s.req.URL.Path)
	}

	var body struct {
		To string `json:"to"`
	}
	if err := json.Unmarshal(s.body, &body); err != nil {
		t.Fatal(err)
	}
	if body.To != "/topics/news" {
		t.Errorf("to = %q; want /topics/news (prefix not doubled)", body.To)
	}
}

func TestTopicManagementValidation(t *testing.T) {
	s := newMockFCMServer(t)

	cases := []struct {
		name   string
		tokens []string
		topic  string
	}{
		{"NoTokens", nil, "news"},
		{"EmptyToken", []string{""}, "news"},
		{"TooManyTokens", make([]string, maxTopicMgtTokens+1), "news"},
		{"BadTopic", []string{"t1"}, "foo*bar"},
	}
	for i := range cases[2].tokens {
		cases[2].tokens[i] = "t"
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.client.SubscribeToTopic(context.Background(), tc.tokens, tc.topic); err == nil {
				t.Error("SubscribeToTopic() = nil; want error")
			}
		})
	}
	if s.req != nil {
		t.Error("requests sent for invalid input")
	}
}
