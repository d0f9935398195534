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
	"net/http"
	"strings"
	"testing"

	"github.com/firebase/firebase-admin-go/internal"
	"github.com/google/go-cmp/cmp"
)

func mustErr(t *testing.T, status int, body string) error {
	t.Helper()
	return internal.NewFirebaseErrorOnePlatform(&internal.Response{Status: status, Body: []byte(body)})
}

// txnServer routes transaction traffic by URL suffix and counts calls per endpoint.
type txnServer struct {
	*mockFirestoreServer
	begins    int
	commits   int
	rollbacks int
	reads     int

	commitStatus func(attempt int) int
}

func newTxnServer(t *testing.T) *txnServer {
	ts := &txnServer{mockFirestoreServer: newMockServer(t)}
	ts.handler = func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":beginTransaction"):
			ts.begins++
			w.Write([]byte(`{"transaction": "t1"}`))
		case strings.HasSuffix(r.URL.Path, ":rollback"):
			ts.rollbacks++
			w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, ":commit"):
			ts.commits++
			status := http.StatusOK
			if ts.commitStatus != nil {
				status = ts.commitStatus(ts.commits)
			}
			if status == http.StatusOK {
				w.Write([]byte(`{"writeResults": [{"updateTime": "2025-06-01T00:00:00Z"}], "commitTime": "2025-06-01T00:00:00Z"}`))
				return
			}
			w.WriteHeader(status)
			w.Write([]byte(`{"error": {"code": 409, "status": "ABORTED", "message": "contention"}}`))
		default:
			ts.reads++
			w.Write([]byte(`{
				"name": "` + testDocsPath + `/users/alice",
				"fields": {"age": {"integerValue": "30"}}
			}`))
		}
	}
	return ts
}

func TestRunTransactionCommitSuccess(t *testing.T) {
	ts := newTxnServer(t)

	var result int64
	err := ts.client.RunTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		snap, err := tx.Get(ctx, "users/alice")
		if err != nil {
			return err
		}
		age, err := snap.Get("age")
		if err != nil {
			return err
		}
		result = age.(int64) + 1
		return tx.Update("users/alice", map[string]interface{}{"age": result})
	})
	if err != nil {
		t.Fatal(err)
	}

	if result != 31 {
		t.Errorf("result = %d; want 31", result)
	}
	if ts.begins != 1 || ts.reads != 1 || ts.commits != 1 || ts.rollbacks != 0 {
		t.Errorf("calls = begin:%d read:%d commit:%d rollback:%d; want 1/1/1/0",
			ts.begins, ts.reads, ts.commits, ts.rollbacks)
	}

	// The read must carry the transaction ID so the server tracks the read-set.
	var readReq *capturedRequest
	for _, r := range ts.requests {
		if r.Method == http.MethodGet {
			readReq = r
		}
	}
	if readReq == nil {
		t.Fatal("no GET request captured")
	}
	if got := readReq.Query["transaction"]; !cmp.Equal(got, []string{"t1"}) {
		t.Errorf("read transaction param = %v; want [t1]", got)
	}

	commitReq := ts.requests[len(ts.requests)-1]
	var body struct {
		Transaction string `json:"transaction"`
		Writes      []struct {
			Update struct {
				Name   string            `json:"name"`
				Fields map[string]*Value `json:"fields"`
			} `json:"update"`
			UpdateMask struct {
				FieldPaths []string `json:"fieldPaths"`
			} `json:"updateMask"`
			CurrentDocument struct {
				Exists *bool `json:"exists"`
			} `json:"currentDocument"`
		} `json:"writes"`
	}
	if err := json.Unmarshal(commitReq.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body.Transaction != "t1" {
		t.Errorf("commit transaction = %q; want t1", body.Transaction)
	}
	if len(body.Writes) != 1 {
		t.Fatalf("%d writes; want 1", len(body.Writes))
	}
	w := body.Writes[0]
	if w.Update.Name != testDocsPath+"/users/alice" {
		t.Errorf("write name = %q", w.Update.Name)
	}
	if got := w.Update.Fields["age"].IntegerValue; got != "31" {
		t.Errorf("staged age = %q; want 31", got)
	}
	if !cmp.Equal(w.UpdateMask.FieldPaths, []string{"age"}) {
		t.Errorf("update mask = %v; want [age]", w.UpdateMask.FieldPaths)
	}
	if w.CurrentDocument.Exists == nil || !*w.CurrentDocument.Exists {
		t.Error("update write missing exists precondition")
	}
}

func TestRunTransactionContentionRetriesExhausted(t *testing.T) {
	ts := newTxnServer(t)
	ts.commitStatus = func(attempt int) int { return http.StatusConflict }

	var runs int
	err := ts.client.RunTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		runs++
		if _, err := tx.Get(ctx, "users/alice"); err != nil {
			return err
		}
		return tx.Set("users/alice", map[string]interface{}{"age": 31})
	})

	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("RunTransaction() = %v; want ErrRetriesExhausted", err)
	}
	if runs != 5 || ts.begins != 5 || ts.reads != 5 || ts.commits != 5 {
		t.Errorf("calls = runs:%d begin:%d read:%d commit:%d; want 5 each",
			runs, ts.begins, ts.reads, ts.commits)
	}
	if ts.rollbacks != 0 {
		t.Errorf("rollbacks = %d; want 0 (aborted commits need no rollback)", ts.rollbacks)
	}
}

func TestRunTransactionContentionThenSuccess(t *testing.T) {
	ts := newTxnServer(t)
	ts.commitStatus = func(attempt int) int {
		if attempt < 3 {
			return http.StatusConflict
		}
		return http.StatusOK
	}

	err := ts.client.RunTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		if _, err := tx.Get(ctx, "users/alice"); err != nil {
			return err
		}
		return tx.Set("users/alice", map[string]interface{}{"age": 31})
	})
	if err != nil {
		t.Fatal(err)
	}
	if ts.begins != 3 || ts.commits != 3 {
		t.Errorf("calls = begin:%d commit:%d; want 3/3", ts.begins, ts.commits)
	}
}

func TestRunTransactionOperationErrorRollsBack(t *testing.T) {
	ts := newTxnServer(t)

	opErr := errors.New("user decided not to")
	err := ts.client.RunTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		if _, err := tx.Get(ctx, "users/alice"); err != nil {
			return err
		}
		return opErr
	})

	if !errors.Is(err, opErr) {
		t.Fatalf("RunTransaction() = %v; want operation error unchanged", err)
	}
	if ts.commits != 0 {
		t.Errorf("commits = %d; want 0", ts.commits)
	}
	if ts.rollbacks != 1 {
		t.Errorf("rollbacks = %d; want 1", ts.rollbacks)
	}

	var rb *capturedRequest
	for _, r := range ts.requests {
		if strings.HasSuffix(r.Path, ":rollback") {
			rb = r
		}
	}
	var body struct {
		Transaction string `json:"transaction"`
	}
	if err := json.Unmarshal(rb.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body.Transaction != "t1" {
		t.Errorf("rollback transaction = %q; want t1", body.Transaction)
	}
}

func TestRunTransactionNonContentionCommitError(t *testing.T) {
	ts := newTxnServer(t)
	var commitCalls int
	ts.handler = func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":beginTransaction"):
			ts.begins++
			w.Write([]byte(`{"transaction": "t1"}`))
		case strings.HasSuffix(r.URL.Path, ":commit"):
			commitCalls++
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": {"code": 400, "status": "INVALID_ARGUMENT", "message": "bad write"}}`))
		}
	}

	err := ts.client.RunTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		return tx.Set("users/alice", map[string]interface{}{"age": 31})
	})
	if err == nil {
		t.Fatal("RunTransaction() = nil; want error")
	}
	if commitCalls != 1 {
		t.Errorf("commit calls = %d; want 1 (no retry on non-contention errors)", commitCalls)
	}
}

func TestIsContention(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"StructuredAborted", mustErr(t, http.StatusConflict, `{"error": {"code": 409, "status": "ABORTED", "message": "x"}}`), true},
		{"BareConflict", mustErr(t, http.StatusConflict, `conflict`), true},
		{"SubstringFallback", errors.New("commit failed: ABORTED by peer"), true},
		{"NotFound", mustErr(t, http.StatusNotFound, `{"error": {"code": 404, "status": "NOT_FOUND", "message": "x"}}`), false},
		{"Plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isContention(tc.err); got != tc.want {
				t.Errorf("isContention() = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestTransactionBuffersWriteKinds(t *testing.T) {
	ts := newTxnServer(t)

	err := ts.client.RunTransaction(context.Background(), func(ctx context.Context, tx *Transaction) error {
		if err := tx.Set("users/a", map[string]interface{}{"x": 1}); err != nil {
			return err
		}
		if err := tx.Create("users/b", map[string]interface{}{"x": 2}); err != nil {
			return err
		}
		if err := tx.Update("users/c", map[string]interface{}{"x": 3}); err != nil {
			return err
		}
		return tx.Delete("users/d")
	})
	if err != nil {
		t.Fatal(err)
	}

	commitReq := ts.requests[len(ts.requests)-1]
	var body struct {
		Writes []map[string]json.RawMessage `json:"writes"`
	}
	if err := json.Unmarshal(commitReq.Body, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Writes) != 4 {
		t.Fatalf("%d writes; want 4", len(body.Writes))
	}
	if _, ok := body.Writes[3]["delete"]; !ok {
		t.Error("fourth write is not a delete")
	}
	if _, ok := body.Writes[1]["currentDocument"]; !ok {
		t.Error("create write missing precondition")
	}
}
