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

// Package messaging contains functions for sending messages and managing
// device subscriptions with Firebase Cloud Messaging.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/firebase/firebase-admin-go/internal"
)

const (
	fcmEndpoint   = "https://fcm.googleapis.com/v1"
	batchEndpoint = "https://fcm.googleapis.com/batch"
	iidEndpoint   = "https://iid.googleapis.com"

	firebaseClientHeader   = "X-Firebase-Client"
	apiFormatVersionHeader = "X-GOOG-API-FORMAT-VERSION"
	apiFormatVersion       = "2"
)

var topicNamePattern = regexp.MustCompile(`^(/topics/)?(private/)?[a-zA-Z0-9-_.~%]+$`)

// Client is the interface for the Firebase Cloud Messaging service.
type Client struct {
	fcmEndpoint   string // To enable testing against arbitrary endpoints.
	batchEndpoint string
	iidEndpoint   string
	client        *internal.HTTPClient
	project       string
	version       string
}

// NewClient creates a new instance of the Firebase Cloud Messaging Client.
//
// This function can only be invoked from within the SDK. Client applications should
// access the Messaging service through firebase.App.
func NewClient(ctx context.Context, c *internal.MessagingConfig) (*Client, error) {
	if c.ProjectID == "" {
		return nil, errors.New("project ID is required to access Firebase Cloud Messaging client")
	}

	hc, _, err := internal.NewHTTPClient(ctx, c.Opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = handleFCMError

	return &Client{
		fcmEndpoint:   fcmEndpoint,
		batchEndpoint: batchEndpoint,
		iidEndpoint:   iidEndpoint,
		client:        hc,
		project:       c.ProjectID,
		version:       "fire-admin-go/" + c.Version,
	}, nil
}

// Message represents a message that can be sent via Firebase Cloud Messaging.
//
// Message contains payload data, recipient information and platform-specific
// configuration options. A Message must specify exactly one of Token, Topic or
// Condition fields.
type Message struct {
	Data         map[string]string `json:"data,omitempty"`
	Notification *Notification     `json:"notification,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
	Token        string            `json:"token,omitempty"`
	Topic        string            `json:"-"`
	Condition    string            `json:"condition,omitempty"`
}

// MarshalJSON marshals a Message, flattening the "/topics/" prefix off the Topic field
// as the backend expects bare topic names.
func (m *Message) MarshalJSON() ([]byte, error) {
	type messageInternal Message
	s := &struct {
		BareTopic string `json:"topic,omitempty"`
		*messageInternal
	}{
		BareTopic:       bareTopicName(m.Topic),
		messageInternal: (*messageInternal)(m),
	}
	return json.Marshal(s)
}

func bareTopicName(topic string) string {
	if len(topic) > 8 && topic[:8] == "/topics/" {
		return topic[8:]
	}
	return topic
}

// Notification is the basic notification template to use across all platforms.
type Notification struct {
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	ImageURL string `json:"image,omitempty"`
}

// AndroidConfig contains messaging options specific to the Android platform.
type AndroidConfig struct {
	CollapseKey           string               `json:"collapse_key,omitempty"`
	Priority              string               `json:"priority,omitempty"` // one of "normal" or "high"
	TTL                   string               `json:"ttl,omitempty"`
	RestrictedPackageName string               `json:"restricted_package_name,omitempty"`
	Data                  map[string]string    `json:"data,omitempty"`
	Notification          *AndroidNotification `json:"notification,omitempty"`
}

// AndroidNotification is a notification to send to Android devices.
type AndroidNotification struct {
	Title        string   `json:"title,omitempty"`
	Body         string   `json:"body,omitempty"`
	Icon         string   `json:"icon,omitempty"`
	Color        string   `json:"color,omitempty"`
	Sound        string   `json:"sound,omitempty"`
	Tag          string   `json:"tag,omitempty"`
	ClickAction  string   `json:"click_action,omitempty"`
	BodyLocKey   string   `json:"body_loc_key,omitempty"`
	BodyLocArgs  []string `json:"body_loc_args,omitempty"`
	TitleLocKey  string   `json:"title_loc_key,omitempty"`
	TitleLocArgs []string `json:"title_loc_args,omitempty"`
	ImageURL     string   `json:"image,omitempty"`
}

// WebpushConfig contains messaging options specific to the WebPush protocol.
type WebpushConfig struct {
	Headers      map[string]string    `json:"headers,omitempty"`
	Data         map[string]string    `json:"data,omitempty"`
	Notification *WebpushNotification `json:"notification,omitempty"`
}

// WebpushNotification is a notification to send via WebPush protocol.
type WebpushNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// APNSConfig contains messaging options specific to the Apple Push Notification
// Service. Payload carries the raw aps dictionary plus any custom keys.
type APNSConfig struct {
	Headers map[string]string      `json:"headers,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

type fcmRequest struct {
	ValidateOnly bool     `json:"validate_only,omitempty"`
	Message      *Message `json:"message,omitempty"`
}

type fcmResponse struct {
	Name string `json:"name"`
}

type fcmErrorResponse struct {
	Error struct {
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// Send sends a Message to Firebase Cloud Messaging.
//
// The Message must specify exactly one of Token, Topic and Condition fields. FCM will
// customize the message for each supported platform based on the platform-specific
// configurations set on the message.
func (c *Client) Send(ctx context.Context, message *Message) (string, error) {
	return c.send(ctx, &fcmRequest{Message: message})
}

// SendDryRun sends a Message to Firebase Cloud Messaging in the dry run (validation
// only) mode.
//
// This function does not actually deliver the message to target devices. Instead, it
// performs all the SDK-level and backend validations on the message, and emulates the
// send operation.
func (c *Client) SendDryRun(ctx context.Context, message *Message) (string, error) {
	return c.send(ctx, &fcmRequest{ValidateOnly: true, Message: message})
}

func (c *Client) send(ctx context.Context, req *fcmRequest) (string, error) {
	if err := validateMessage(req.Message); err != nil {
		return "", err
	}

	var result fcmResponse
	_, err := c.client.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/projects/%s/messages:send", c.fcmEndpoint, c.project),
		Body:   internal.NewJSONEntity(req),
		Opts: []internal.HTTPOption{
			internal.WithHeader(firebaseClientHeader, c.version),
			internal.WithHeader(apiFormatVersionHeader, apiFormatVersion),
		},
	}, &result)
	if err != nil {
		return "", err
	}
	return result.Name, nil
}

// validateMessage performs the SDK-level validations that do not require a network
// round trip: target exclusivity, topic name syntax and Android priority/TTL syntax.
func validateMessage(message *Message) error {
	if message == nil {
		return errors.New("message must not be nil")
	}

	targets := 0
	for _, t := range []string{message.Token, message.Topic, message.Condition} {
		if t != "" {
			targets++
		}
	}
	if targets != 1 {
		return errors.New("exactly one of token, topic or condition must be specified")
	}

	if message.Topic != "" && !topicNamePattern.MatchString(message.Topic) {
		return fmt.Errorf("malformed topic name %q", message.Topic)
	}

	if a := message.Android; a != nil {
		if a.Priority != "" && a.Priority != "normal" && a.Priority != "high" {
			return fmt.Errorf("priority must be %q or %q", "normal", "high")
		}
	}
	return nil
}

// handleFCMError maps an FCM error response to a platform error, additionally
// extracting the FCM-specific error code from the details list when present.
func handleFCMError(resp *internal.Response) error {
	base := internal.NewFirebaseErrorOnePlatform(resp).(*internal.FirebaseError)

	var fcmError fcmErrorResponse
	json.Unmarshal(resp.Body, &fcmError) // ignore any json parse errors at this level
	for _, d := range fcmError.Error.Details {
		if d.Type == "type.googleapis.com/google.firebase.fcm.v1.FcmError" {
			base.Ext["messagingErrorCode"] = d.ErrorCode
		}
	}

	return base
}

// IsRegistrationTokenNotRegistered reports whether the given error indicates that the
// targeted registration token is no longer valid.
func IsRegistrationTokenNotRegistered(err error) bool {
	fe, ok := err.(*internal.FirebaseError)
	return ok && fe.Ext["messagingErrorCode"] == "UNREGISTERED"
}

// IsSenderIDMismatch reports whether the given error indicates that the credential
// used to send the message is not tied to the token's sender ID.
func IsSenderIDMismatch(err error) bool {
	fe, ok := err.(*internal.FirebaseError)
	return ok && fe.Ext["messagingErrorCode"] == "SENDER_ID_MISMATCH"
}

// IsQuotaExceeded reports whether the given error was caused by exceeding the sending
// quota.
func IsQuotaExceeded(err error) bool {
	fe, ok := err.(*internal.FirebaseError)
	return ok && fe.Ext["messagingErrorCode"] == "QUOTA_EXCEEDED"
}

// IsThirdPartyAuthError reports whether the given error indicates invalid APNs or web
// push credentials.
func IsThirdPartyAuthError(err error) bool {
	fe, ok := err.(*internal.FirebaseError)
	return ok && fe.Ext["messagingErrorCode"] == "THIRD_PARTY_AUTH_ERROR"
}

// IsUnavailable reports whether the FCM backend was unavailable to serve the request.
func IsUnavailable(err error) bool {
	return internal.HasPlatformErrorCode(err, internal.Unavailable)
}
