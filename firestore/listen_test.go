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
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/iterator"
)

func TestJSONBoundary(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want int
	}{
		{"Simple", `{"a":1}`, 7},
		{"LeadingWhitespace", `  {"a":1}  `, 9},
		{"Nested", `{"a":{"b":2}}`, 13},
		{"Truncated", `{"a":1`, -1},
		{"BraceInString", `{"a":"}"}`, 9},
		{"EscapedQuoteInString", `{"a":"\"}"}`, 11},
		{"Array", `{"a":[1,2]}`, 11},
		{"BackToBack", `{"a":1}{"b":2}`, 7},
		{"TopLevelArray", `[{"a":1}]`, 9},
		{"Empty", ``, -1},
		{"WhitespaceOnly", "  \n\t", -1},
		{"OpenString", `{"a":"unterminated`, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := jsonBoundary([]byte(tc.in)); got != tc.want {
				t.Errorf("jsonBoundary(%q) = %d; want %d", tc.in, got, tc.want)
			}
		})
	}
}

// chunkedReader returns its chunks one Read call at a time, simulating network
// fragmentation that ignores JSON boundaries.
type chunkedReader struct {
	chunks []string
}

func (r *chunkedReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func (r *chunkedReader) Close() error { return nil }

func newTestStream(chunks ...string) *ListenStream {
	return &ListenStream{body: &chunkedReader{chunks: chunks}}
}

func TestListenStreamNext(t *testing.T) {
	s := newTestStream(
		`{"targetChange": {"targetChangeType": "ADD", "targetIds": [1]}}`,
		// One object split across two chunks, followed by the start of another in
		// the same chunk as the tail of the first.
		`{"documentChange": {"document": {"name": "`,
		testDocsPath+`/users/alice"}, "targetIds": [1]}}{"documentDelete": {"document": "`+testDocsPath+`/users/bob"}}`,
	)

	first, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.TargetChange == nil || first.TargetChange.TargetChangeType != "ADD" {
		t.Errorf("first = %+v; want target change", first)
	}

	second, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.DocumentChange == nil || second.DocumentChange.Document.Name != testDocsPath+"/users/alice" {
		t.Errorf("second = %+v; want document change for alice", second)
	}

	third, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if third.DocumentDelete == nil || third.DocumentDelete.Document != testDocsPath+"/users/bob" {
		t.Errorf("third = %+v; want document delete for bob", third)
	}

	if _, err := s.Next(); err != iterator.Done {
		t.Errorf("Next() after end = %v; want iterator.Done", err)
	}
}

func TestListenStreamTrailingWhitespaceCleanClose(t *testing.T) {
	s := newTestStream(`{"filter": {"targetId": 1, "count": 2}}`, "  \n  ")

	msg, err := s.Next()
	if err != nil {
		t.Fatal(err)
	}
	if msg.Filter == nil || msg.Filter.Count != 2 {
		t.Errorf("msg = %+v; want existence filter", msg)
	}
	if _, err := s.Next(); err != iterator.Done {
		t.Errorf("Next() = %v; want iterator.Done", err)
	}
}

func TestListenStreamIncompleteAtClose(t *testing.T) {
	s := newTestStream(`{"targetChange": {}}`, `{"documentChange": {"docu`)

	if _, err := s.Next(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Next(); !errors.Is(err, ErrIncompleteStream) {
		t.Errorf("Next() = %v; want ErrIncompleteStream", err)
	}
}

func TestListenStreamMalformedObject(t *testing.T) {
	s := newTestStream(`{"targetChange": 5}`)
	if _, err := s.Next(); err == nil {
		t.Error("Next() = nil; want parse error")
	}
}

func TestDocumentListen(t *testing.T) {
	s := newMockServer(t)
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"targetChange": {"targetChangeType": "ADD", "targetIds": [1], "resumeToken": "rt-1"}}`))
		f.Flush()
		w.Write([]byte(`{"documentChange": {"document": {"name": "` + testDocsPath + `/users/alice", "fields": {"age": {"integerValue": "30"}}}, "targetIds": [1]}}`))
		f.Flush()
	}

	doc, err := s.client.Doc("users/alice")
	if err != nil {
		t.Fatal(err)
	}
	stream, err := doc.Listen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Stop()

	first, err := stream.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.TargetChange == nil || first.TargetChange.ResumeToken != "rt-1" {
		t.Errorf("first = %+v; want target change with resume token", first)
	}

	second, err := stream.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.DocumentChange == nil {
		t.Fatalf("second = %+v; want document change", second)
	}
	age, err := decodeValue(second.DocumentChange.Document.Fields["age"])
	if err != nil {
		t.Fatal(err)
	}
	if age != int64(30) {
		t.Errorf("age = %v; want 30", age)
	}

	if _, err := stream.Next(); err != iterator.Done {
		t.Errorf("Next() = %v; want iterator.Done", err)
	}

	req := s.requests[0]
	if req.Method != http.MethodPost || !strings.HasSuffix(req.Path, ":listen") {
		t.Fatalf("request = %s %s", req.Method, req.Path)
	}
	var body ListenRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		t.Fatal(err)
	}
	wantDocs := []string{testDocsPath + "/users/alice"}
	if body.AddTarget == nil || !cmp.Equal(body.AddTarget.Documents.Documents, wantDocs) {
		t.Errorf("addTarget = %+v; want documents target for alice", body.AddTarget)
	}
}

func TestQueryListen(t *testing.T) {
	s := newMockServer(t)
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"targetChange": {"targetChangeType": "NO_CHANGE"}}`))
	}

	coll, err := s.client.Collection("users")
	if err != nil {
		t.Fatal(err)
	}
	stream, err := coll.Where("age", ">", 21).Listen(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Stop()

	if _, err := stream.Next(); err != nil {
		t.Fatal(err)
	}

	var body ListenRequest
	if err := json.Unmarshal(s.requests[0].Body, &body); err != nil {
		t.Fatal(err)
	}
	qt := body.AddTarget.Query
	if qt == nil || qt.Parent != testDocsPath {
		t.Fatalf("query target = %+v; want parent %q", qt, testDocsPath)
	}
	if qt.StructuredQuery.Where.FieldFilter.Op != "GREATER_THAN" {
		t.Errorf("filter = %+v", qt.StructuredQuery.Where)
	}
}

func TestQueryListenDeferredError(t *testing.T) {
	s := newMockServer(t)
	coll, err := s.client.Collection("users")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := coll.Where("a", "bogus", 1).Listen(context.Background()); err == nil {
		t.Error("Listen() = nil; want deferred operator error")
	}
	if len(s.requests) != 0 {
		t.Errorf("%d requests; want 0", len(s.requests))
	}
}

func TestListenStreamErrorResponse(t *testing.T) {
	s := newMockServer(t)
	s.handler = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "status": "PERMISSION_DENIED", "message": "no listen for you"}}`))
	}

	doc, err := s.client.Doc("users/alice")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := doc.Listen(context.Background()); err == nil {
		t.Error("Listen() = nil; want error for non-2xx response")
	}
}
