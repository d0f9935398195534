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
	"errors"
	"fmt"
	"net/http"

	"github.com/firebase/firebase-admin-go/internal"
)

const maxTopicMgtTokens = 1000

// TopicManagementResponse is the result of a topic subscription or unsubscription
// operation.
//
// The response contains the counts of tokens that were successfully subscribed or
// unsubscribed, along with per-token error details for the ones that failed.
type TopicManagementResponse struct {
	SuccessCount int
	FailureCount int
	Errors       []*ErrorInfo
}

// ErrorInfo is the error encountered when processing one device registration token
// during a topic management operation.
type ErrorInfo struct {
	Index  int
	Reason string
}

type iidRequest struct {
	Topic  string   `json:"to"`
	Tokens []string `json:"registration_tokens"`
	op     string
}

type iidResponse struct {
	Results []map[string]interface{} `json:"results"`
}

// SubscribeToTopic subscribes a list of registration tokens to a topic.
//
// The tokens list must not be empty, and may contain at most 1000 tokens.
func (c *Client) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*TopicManagementResponse, error) {
	req := &iidRequest{
		Topic:  "/topics/" + bareTopicName(topic),
		Tokens: tokens,
		op:     "iid/v1:batchAdd",
	}
	return c.makeTopicManagementRequest(ctx, req)
}

// UnsubscribeFromTopic unsubscribes a list of registration tokens from a topic.
//
// The tokens list must not be empty, and may contain at most 1000 tokens.
func (c *Client) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*TopicManagementResponse, error) {
	req := &iidRequest{
		Topic:  "/topics/" + bareTopicName(topic),
		Tokens: tokens,
		op:     "iid/v1:batchRemove",
	}
	return c.makeTopicManagementRequest(ctx, req)
}

func (c *Client) makeTopicManagementRequest(ctx context.Context, req *iidRequest) (*TopicManagementResponse, error) {
	if len(req.Tokens) == 0 {
		return nil, errors.New("tokens list must not be empty")
	}
	if len(req.Tokens) > maxTopicMgtTokens {
		return nil, fmt.Errorf("tokens list must not contain more than %d items", maxTopicMgtTokens)
	}
	for _, token := range req.Tokens {
		if token == "" {
			return nil, errors.New("tokens list must not contain empty strings")
		}
	}
	if !topicNamePattern.MatchString(req.Topic) {
		return nil, fmt.Errorf("malformed topic name %q", req.Topic)
	}

	var result iidResponse
	_, err := c.client.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s", c.iidEndpoint, req.op),
		Body:   internal.NewJSONEntity(req),
		Opts: []internal.HTTPOption{
			internal.WithHeader("access_token_auth", "true"),
			internal.WithHeader(firebaseClientHeader, c.version),
		},
	}, &result)
	if err != nil {
		return nil, err
	}

	resp := &TopicManagementResponse{}
	for idx, tr := range result.Results {
		if reason, ok := tr["error"]; ok {
			resp.FailureCount++
			resp.Errors = append(resp.Errors, &ErrorInfo{
				Index:  idx,
				Reason: fmt.Sprintf("%v", reason),
			})
		} else {
			resp.SuccessCount++
		}
	}
	return resp, nil
}
