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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/firebase/firebase-admin-go/internal"
)

// maxTxnAttempts bounds how many times a transaction is retried on contention.
const maxTxnAttempts = 5

// ErrRetriesExhausted is returned by RunTransaction when the transaction kept being
// aborted by contention and the retry ceiling was reached.
var ErrRetriesExhausted = errors.New("firestore: transaction contention, retries exhausted")

// Transaction represents a Firestore transaction.
//
// Reads performed through a Transaction are tagged with its server-issued ID so the
// server can track the transaction's read-set for conflict detection. Writes are
// buffered in memory and sent atomically on commit.
//
// A Transaction is owned by the function passed to RunTransaction and must not be
// used concurrently or retained after that function returns.
type Transaction struct {
	c      *Client
	id     string
	writes []*Write
}

// ID returns the opaque server-issued transaction token.
func (t *Transaction) ID() string {
	return t.id
}

// Get reads the document at the given slash-separated path as part of the
// transaction. A read of a non-existent document returns a snapshot with
// Exists() == false, not an error.
func (t *Transaction) Get(ctx context.Context, docPath string) (*DocumentSnapshot, error) {
	ref, err := t.c.Doc(docPath)
	if err != nil {
		return nil, err
	}
	return t.c.getDocument(ctx, ref, t.id)
}

// Set stages an unconditional overwrite of the document at the given path. No network
// call is made until the transaction commits.
func (t *Transaction) Set(docPath string, data interface{}) error {
	name, fields, err := t.prepare(docPath, data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, setWrite(name, fields))
	return nil
}

// Create stages a strict create of the document at the given path. The commit fails
// if the document already exists.
func (t *Transaction) Create(docPath string, data interface{}) error {
	name, fields, err := t.prepare(docPath, data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, createWrite(name, fields))
	return nil
}

// Update stages a strict update of the document at the given path. The update mask is
// derived from the top-level keys of data, and the commit fails if the document does
// not exist.
func (t *Transaction) Update(docPath string, data interface{}) error {
	name, fields, err := t.prepare(docPath, data)
	if err != nil {
		return err
	}
	t.writes = append(t.writes, updateWrite(name, fields))
	return nil
}

// Delete stages a delete of the document at the given path.
func (t *Transaction) Delete(docPath string) error {
	if err := checkDocumentPath(docPath); err != nil {
		return err
	}
	t.writes = append(t.writes, deleteWrite(t.c.docsPath+"/"+docPath))
	return nil
}

func (t *Transaction) prepare(docPath string, data interface{}) (string, map[string]*Value, error) {
	if err := checkDocumentPath(docPath); err != nil {
		return "", nil, err
	}
	fields, err := encodeDocumentData(data)
	if err != nil {
		return "", nil, err
	}
	return t.c.docsPath + "/" + docPath, fields, nil
}

type beginTransactionRequest struct {
	Options *transactionOptions `json:"options,omitempty"`
}

type transactionOptions struct {
	ReadOnly  *struct{} `json:"readOnly,omitempty"`
	ReadWrite *struct{} `json:"readWrite,omitempty"`
}

type beginTransactionResponse struct {
	Transaction string `json:"transaction"`
}

type rollbackRequest struct {
	Transaction string `json:"transaction"`
}

func (c *Client) beginTransaction(ctx context.Context) (*Transaction, error) {
	var result beginTransactionResponse
	_, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s:beginTransaction", c.endpoint, c.docsPath),
		Body:   internal.NewJSONEntity(&beginTransactionRequest{}),
	}, &result)
	if err != nil {
		return nil, err
	}
	return &Transaction{c: c, id: result.Transaction}, nil
}

func (c *Client) rollback(ctx context.Context, transaction string) error {
	_, err := c.hc.Do(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s:rollback", c.endpoint, c.docsPath),
		Body:   internal.NewJSONEntity(&rollbackRequest{Transaction: transaction}),
	})
	return err
}

// RunTransaction runs f in a transaction.
//
// A new transaction is begun on the server, f is invoked with it, and the writes it
// staged are committed atomically. If the commit is aborted because a concurrent
// write invalidated the transaction's read-set, the whole of f is re-run against a
// brand-new transaction, up to a fixed number of attempts; staged writes from the
// failed attempt are discarded. When the retry ceiling is reached, RunTransaction
// returns ErrRetriesExhausted.
//
// If f itself returns an error, the transaction is rolled back on a best-effort
// basis (a failure of the rollback call is ignored; the server expires abandoned
// transactions on its own) and f's error is returned unchanged. Results computed by
// f should be captured by the closure; they are valid only if RunTransaction returns
// nil.
//
// f may be called multiple times and therefore must not hold on to state across
// invocations other than through its reads.
func (c *Client) RunTransaction(ctx context.Context, f func(context.Context, *Transaction) error) error {
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		tx, err := c.beginTransaction(ctx)
		if err != nil {
			return err
		}

		if err := f(ctx, tx); err != nil {
			// Not a commit conflict: propagate f's error, discarding any rollback
			// failure.
			c.rollback(ctx, tx.id)
			return err
		}

		_, err = c.commit(ctx, tx.id, tx.writes)
		if err == nil {
			return nil
		}
		if !isContention(err) {
			return err
		}
	}
	return ErrRetriesExhausted
}

// isContention reports whether an error is the server's signal that the transaction's
// read-set was invalidated by a concurrent write.
//
// The platform error code from the error envelope is authoritative (ABORTED, or a
// bare HTTP 409 surfaced as CONFLICT). The message substring match is only a fallback
// for error shapes that carry no structured status.
func isContention(err error) bool {
	if internal.HasPlatformErrorCode(err, internal.Aborted) ||
		internal.HasPlatformErrorCode(err, internal.Conflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "ABORTED") || strings.Contains(msg, "status: 409")
}
