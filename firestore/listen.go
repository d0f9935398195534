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

package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/firebase/firebase-admin-go/internal"
	"google.golang.org/api/iterator"
)

// ErrIncompleteStream is returned by ListenStream.Next when the server closed the
// connection in the middle of a JSON object.
var ErrIncompleteStream = errors.New("firestore: listen stream closed mid-object")

// ListenRequest is the body of a documents:listen call. Exactly one of AddTarget or
// RemoveTarget is set.
type ListenRequest struct {
	AddTarget    *Target           `json:"addTarget,omitempty"`
	RemoveTarget int32             `json:"removeTarget,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// Target describes what a listen stream watches: either an explicit set of documents
// or the results of a query.
type Target struct {
	TargetID    int32            `json:"targetId,omitempty"`
	Once        bool             `json:"once,omitempty"`
	Documents   *DocumentsTarget `json:"documents,omitempty"`
	Query       *QueryTarget     `json:"query,omitempty"`
	ResumeToken string           `json:"resumeToken,omitempty"`
}

// DocumentsTarget names the full resource paths of the documents to watch.
type DocumentsTarget struct {
	Documents []string `json:"documents"`
}

// QueryTarget watches the documents matching a structured query under a parent
// resource.
type QueryTarget struct {
	Parent          string           `json:"parent,omitempty"`
	StructuredQuery *StructuredQuery `json:"structuredQuery,omitempty"`
}

// ListenResponse is one message from a listen stream. Exactly one field is set.
type ListenResponse struct {
	TargetChange   *TargetChange   `json:"targetChange,omitempty"`
	DocumentChange *DocumentChange `json:"documentChange,omitempty"`
	DocumentDelete *DocumentDelete `json:"documentDelete,omitempty"`
	DocumentRemove *DocumentRemove `json:"documentRemove,omitempty"`
	Filter         *ExistenceFilter `json:"filter,omitempty"`
}

// TargetChange reports a change in the state of the watched targets. A change with
// an empty TargetIDs slice applies to all targets on the stream; its ResumeToken can
// be used to resume the stream without replaying earlier changes.
type TargetChange struct {
	TargetChangeType string  `json:"targetChangeType,omitempty"`
	TargetIDs        []int32 `json:"targetIds,omitempty"`
	ResumeToken      string  `json:"resumeToken,omitempty"`
	ReadTime         string  `json:"readTime,omitempty"`
}

// DocumentChange reports that a watched document was created or updated.
type DocumentChange struct {
	Document         *Document `json:"document,omitempty"`
	TargetIDs        []int32   `json:"targetIds,omitempty"`
	RemovedTargetIDs []int32   `json:"removedTargetIds,omitempty"`
}

// DocumentDelete reports that a watched document was deleted.
type DocumentDelete struct {
	Document         string  `json:"document,omitempty"`
	RemovedTargetIDs []int32 `json:"removedTargetIds,omitempty"`
	ReadTime         string  `json:"readTime,omitempty"`
}

// DocumentRemove reports that a document stopped matching a target without being
// deleted.
type DocumentRemove struct {
	Document         string  `json:"document,omitempty"`
	RemovedTargetIDs []int32 `json:"removedTargetIds,omitempty"`
	ReadTime         string  `json:"readTime,omitempty"`
}

// ExistenceFilter lets the client detect that its view of a target has drifted from
// the server's.
type ExistenceFilter struct {
	TargetID int32 `json:"targetId,omitempty"`
	Count    int32 `json:"count,omitempty"`
}

// jsonBoundary scans buf for the end of the first complete top-level JSON object or
// array. It returns the number of bytes up to and including the closing delimiter,
// or -1 if buf holds no complete value yet.
//
// The scanner tracks brace/bracket depth and JSON string state so that delimiters
// inside string literals (including behind backslash escapes) are ignored. Leading
// whitespace counts toward the returned length.
func jsonBoundary(buf []byte) int {
	var (
		started  bool
		depth    int
		inString bool
		escaped  bool
	)
	for i, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}
		switch b {
		case '"':
			inString = true
		case '{', '[':
			started = true
			depth++
		case '}', ']':
			depth--
			if started && depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// ListenStream is an open documents:listen stream. The server sends back-to-back
// JSON objects with no framing between them; Next carves them out of the byte
// stream one at a time.
//
// A ListenStream must be used from a single goroutine. Call Stop when done to
// release the underlying connection.
type ListenStream struct {
	body io.ReadCloser
	buf  []byte
}

// Next returns the next message from the stream. It blocks until a complete JSON
// object has arrived. When the server ends the stream cleanly at an object
// boundary, Next returns iterator.Done; if the stream ends with a partial object
// buffered, it returns ErrIncompleteStream.
func (s *ListenStream) Next() (*ListenResponse, error) {
	chunk := make([]byte, 8192)
	for {
		if n := jsonBoundary(s.buf); n >= 0 {
			raw := s.buf[:n]
			s.buf = append([]byte(nil), s.buf[n:]...)
			var resp ListenResponse
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("firestore: malformed listen message: %v", err)
			}
			return &resp, nil
		}

		n, err := s.body.Read(chunk)
		if n > 0 {
			s.buf = append(s.buf, chunk[:n]...)
			continue
		}
		if err == io.EOF {
			if jsonBoundary(s.buf) >= 0 {
				continue
			}
			if len(trimJSONSpace(s.buf)) > 0 {
				return nil, ErrIncompleteStream
			}
			return nil, iterator.Done
		}
		if err != nil {
			return nil, err
		}
	}
}

// Stop closes the stream and releases the connection.
func (s *ListenStream) Stop() error {
	return s.body.Close()
}

func trimJSONSpace(b []byte) []byte {
	for len(b) > 0 {
		switch b[0] {
		case ' ', '\t', '\n', '\r':
			b = b[1:]
		default:
			return b
		}
	}
	return b
}

// Listen opens a listen stream watching this document.
func (d *DocumentRef) Listen(ctx context.Context) (*ListenStream, error) {
	return d.c.listen(ctx, &Target{
		TargetID:  1,
		Documents: &DocumentsTarget{Documents: []string{d.Path}},
	})
}

// Listen opens a listen stream watching the results of the query.
func (q Query) Listen(ctx context.Context) (*ListenStream, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.c.listen(ctx, &Target{
		TargetID: 1,
		Query: &QueryTarget{
			Parent:          q.parent,
			StructuredQuery: &q.sq,
		},
	})
}

func (c *Client) listen(ctx context.Context, target *Target) (*ListenStream, error) {
	resp, err := c.hc.DoStream(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s:listen", c.endpoint, c.docsPath),
		Body:   internal.NewJSONEntity(&ListenRequest{AddTarget: target}),
	})
	if err != nil {
		return nil, err
	}
	return &ListenStream{body: resp.Body}, nil
}
