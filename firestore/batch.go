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
	"sync"
)

// WriteBatch accumulates document writes and applies them in a single atomic
// commit. Unlike a Transaction it performs no reads and carries no transaction ID,
// so staging writes never touches the network.
//
// Set, Create, Update and Delete return the batch to permit chaining. Errors
// encountered while staging a write (an invalid path, unencodable data) are
// deferred and returned by Commit; once a batch records an error, subsequent
// writes are discarded.
//
// A WriteBatch is safe for concurrent use: multiple goroutines may stage writes
// into the same batch.
type WriteBatch struct {
	c *Client

	mu     sync.Mutex
	writes []*Write
	err    error
}

func newWriteBatch(c *Client) *WriteBatch {
	return &WriteBatch{c: c}
}

// Set stages an unconditional overwrite of the document at the given
// slash-separated path.
func (b *WriteBatch) Set(docPath string, data interface{}) *WriteBatch {
	name, fields, err := b.prepare(docPath, data)
	if err != nil {
		return b.fail(err)
	}
	return b.append(setWrite(name, fields))
}

// Create stages a strict create; the commit fails if the document already exists.
func (b *WriteBatch) Create(docPath string, data interface{}) *WriteBatch {
	name, fields, err := b.prepare(docPath, data)
	if err != nil {
		return b.fail(err)
	}
	return b.append(createWrite(name, fields))
}

// Update stages a strict update masked to the top-level keys of data; the commit
// fails if the document does not exist.
func (b *WriteBatch) Update(docPath string, data interface{}) *WriteBatch {
	name, fields, err := b.prepare(docPath, data)
	if err != nil {
		return b.fail(err)
	}
	return b.append(updateWrite(name, fields))
}

// Delete stages a delete of the document at the given path.
func (b *WriteBatch) Delete(docPath string) *WriteBatch {
	if err := checkDocumentPath(docPath); err != nil {
		return b.fail(err)
	}
	return b.append(deleteWrite(b.c.docsPath + "/" + docPath))
}

// Len reports the number of staged writes.
func (b *WriteBatch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.writes)
}

// Commit sends all staged writes in one atomic commit and clears the batch, so the
// same WriteBatch can be reused afterwards. If any staged write failed to encode,
// Commit returns that error and sends nothing. Committing an empty batch is a
// no-op that makes no network call and returns no results.
func (b *WriteBatch) Commit(ctx context.Context) ([]*WriteResult, error) {
	b.mu.Lock()
	writes, err := b.writes, b.err
	b.writes, b.err = nil, nil
	b.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if len(writes) == 0 {
		return nil, nil
	}
	return b.c.commit(ctx, "", writes)
}

func (b *WriteBatch) prepare(docPath string, data interface{}) (string, map[string]*Value, error) {
	if err := checkDocumentPath(docPath); err != nil {
		return "", nil, err
	}
	fields, err := encodeDocumentData(data)
	if err != nil {
		return "", nil, err
	}
	return b.c.docsPath + "/" + docPath, fields, nil
}

func (b *WriteBatch) append(w *Write) *WriteBatch {
	b.mu.Lock()
	if b.err == nil {
		b.writes = append(b.writes, w)
	}
	b.mu.Unlock()
	return b
}

func (b *WriteBatch) fail(err error) *WriteBatch {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	return b
}
