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

// Package firestore contains functions for reading, writing and listening to documents
// in a Cloud Firestore database over its REST API.
//
// This package provides document and collection references, structured queries,
// atomic write batches, optimistic-concurrency transactions with automatic retries,
// and real-time listen streams.
package firestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/iterator"

	"github.com/firebase/firebase-admin-go/internal"
)

const (
	firestoreEndpoint = "https://firestore.googleapis.com/v1"
	defaultDatabaseID = "(default)"
)

// ErrDocumentNotFound is returned when data is requested from a snapshot of a
// document that does not exist.
var ErrDocumentNotFound = errors.New("firestore: document does not exist")

// Client is the interface for the Cloud Firestore service.
type Client struct {
	hc       *internal.HTTPClient
	endpoint string // To enable testing against arbitrary endpoints.
	basePath string // "projects/{project}/databases/{database}"
	docsPath string // basePath + "/documents"
}

// NewClient creates a new instance of the Firestore Client.
//
// This function can only be invoked from within the SDK. Client applications should
// access the Firestore service through firebase.App.
func NewClient(ctx context.Context, conf *internal.FirestoreConfig) (*Client, error) {
	if conf.ProjectID == "" {
		return nil, errors.New("project id is required to access Firestore")
	}
	db := conf.DatabaseID
	if db == "" {
		db = defaultDatabaseID
	}

	hc, _, err := internal.NewHTTPClient(ctx, conf.Opts...)
	if err != nil {
		return nil, err
	}
	hc.CreateErrFn = internal.NewFirebaseErrorOnePlatform
	hc.Opts = []internal.HTTPOption{
		internal.WithHeader("X-Client-Version", fmt.Sprintf("Go/Admin/%s", conf.Version)),
	}

	basePath := fmt.Sprintf("projects/%s/databases/%s", conf.ProjectID, db)
	return &Client{
		hc:       hc,
		endpoint: firestoreEndpoint,
		basePath: basePath,
		docsPath: basePath + "/documents",
	}, nil
}

// Collection creates a reference to the collection at the given path. The path must
// refer to a collection, i.e. contain an odd number of non-empty slash-separated
// segments.
func (c *Client) Collection(path string) (*CollectionRef, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs)%2 == 0 {
		return nil, fmt.Errorf("firestore: %q is not a collection path", path)
	}
	return newCollectionRef(c, segs), nil
}

// Doc creates a reference to the document at the given path. The path must refer to
// a document, i.e. contain an even number of non-empty slash-separated segments.
func (c *Client) Doc(path string) (*DocumentRef, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(segs)%2 != 0 {
		return nil, fmt.Errorf("firestore: %q is not a document path", path)
	}
	return newDocumentRef(c, segs), nil
}

// Batch creates a write batch for performing multiple writes as a single atomic
// operation. The returned handle may be shared across goroutines.
func (c *Client) Batch() *WriteBatch {
	return newWriteBatch(c)
}

// Collections lists the root collections of the database.
func (c *Client) Collections(ctx context.Context) ([]*CollectionRef, error) {
	ids, err := c.listCollectionIDs(ctx, c.basePath+"/documents")
	if err != nil {
		return nil, err
	}
	refs := make([]*CollectionRef, len(ids))
	for i, id := range ids {
		refs[i] = newCollectionRef(c, []string{id})
	}
	return refs, nil
}

type listCollectionIDsRequest struct {
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

type listCollectionIDsResponse struct {
	CollectionIDs []string `json:"collectionIds"`
	NextPageToken string   `json:"nextPageToken,omitempty"`
}

func (c *Client) listCollectionIDs(ctx context.Context, parent string) ([]string, error) {
	var ids []string
	var pageToken string
	for {
		var result listCollectionIDsResponse
		_, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
			Method: http.MethodPost,
			URL:    fmt.Sprintf("%s/%s:listCollectionIds", c.endpoint, parent),
			Body: internal.NewJSONEntity(&listCollectionIDsRequest{
				PageSize:  100,
				PageToken: pageToken,
			}),
		}, &result)
		if err != nil {
			return nil, err
		}

		ids = append(ids, result.CollectionIDs...)
		if result.NextPageToken == "" {
			break
		}
		pageToken = result.NextPageToken
	}
	return ids, nil
}

func (c *Client) commit(ctx context.Context, transaction string, writes []*Write) ([]*WriteResult, error) {
	var result commitResponse
	_, err := c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s:commit", c.endpoint, c.docsPath),
		Body: internal.NewJSONEntity(&commitRequest{
			Transaction: transaction,
			Writes:      writes,
		}),
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.WriteResults, nil
}

// A DocumentRef is a reference to a Firestore document.
type DocumentRef struct {
	c *Client

	// Parent is the collection this document belongs to.
	Parent *CollectionRef

	// Path is the full resource path of the document.
	Path string

	// ID is the last component of the path.
	ID string
}

func newDocumentRef(c *Client, segs []string) *DocumentRef {
	return &DocumentRef{
		c:      c,
		Parent: newCollectionRef(c, segs[:len(segs)-1]),
		Path:   c.docsPath + "/" + strings.Join(segs, "/"),
		ID:     segs[len(segs)-1],
	}
}

// Collection returns a reference to the subcollection with the given ID.
func (d *DocumentRef) Collection(id string) (*CollectionRef, error) {
	if err := checkPathSegment(id); err != nil {
		return nil, err
	}
	return &CollectionRef{
		c:          d.c,
		parentPath: d.Path,
		Path:       d.Path + "/" + id,
		ID:         id,
	}, nil
}

// Get reads the referenced document. If the document does not exist, the returned
// snapshot reports Exists() == false and carries no error.
func (d *DocumentRef) Get(ctx context.Context) (*DocumentSnapshot, error) {
	return d.c.getDocument(ctx, d, "")
}

func (c *Client) getDocument(ctx context.Context, d *DocumentRef, transaction string) (*DocumentSnapshot, error) {
	req := &internal.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s", c.endpoint, d.Path),
		SuccessFn: func(r *internal.Response) bool {
			return internal.HasSuccessStatus(r) || r.Status == http.StatusNotFound
		},
	}
	if transaction != "" {
		req.Opts = []internal.HTTPOption{internal.WithQueryParam("transaction", transaction)}
	}

	resp, err := c.hc.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Status == http.StatusNotFound {
		return &DocumentSnapshot{Ref: d}, nil
	}

	var doc Document
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("firestore: error while parsing document: %v", err)
	}
	return &DocumentSnapshot{
		Ref:      d,
		ReadTime: time.Now().UTC().Format(time.RFC3339Nano),
		doc:      &doc,
	}, nil
}

// Set writes to the referenced document. If the document does not exist it is created;
// if it does exist it is overwritten entirely.
func (d *DocumentRef) Set(ctx context.Context, data interface{}) (*WriteResult, error) {
	return d.patch(ctx, data, nil)
}

// Create creates the referenced document. The write fails if the document already
// exists.
func (d *DocumentRef) Create(ctx context.Context, data interface{}) (*WriteResult, error) {
	return d.patch(ctx, data, []internal.HTTPOption{
		internal.WithQueryParam("currentDocument.exists", "false"),
	})
}

// Update updates the given fields of the referenced document. The update mask is
// derived from the top-level keys of data, and the write fails if the document does
// not exist.
func (d *DocumentRef) Update(ctx context.Context, data interface{}) (*WriteResult, error) {
	fields, err := encodeDocumentData(data)
	if err != nil {
		return nil, err
	}
	opts := []internal.HTTPOption{
		internal.WithQueryParam("currentDocument.exists", "true"),
	}
	for _, w := range updateWrite(d.Path, fields).UpdateMask.FieldPaths {
		opts = append(opts, internal.WithQueryParam("updateMask.fieldPaths", w))
	}
	return d.patchFields(ctx, fields, opts)
}

func (d *DocumentRef) patch(ctx context.Context, data interface{}, opts []internal.HTTPOption) (*WriteResult, error) {
	fields, err := encodeDocumentData(data)
	if err != nil {
		return nil, err
	}
	return d.patchFields(ctx, fields, opts)
}

func (d *DocumentRef) patchFields(ctx context.Context, fields map[string]*Value, opts []internal.HTTPOption) (*WriteResult, error) {
	var doc Document
	_, err := d.c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPatch,
		URL:    fmt.Sprintf("%s/%s", d.c.endpoint, d.Path),
		Body:   internal.NewJSONEntity(&Document{Fields: fields}),
		Opts:   opts,
	}, &doc)
	if err != nil {
		return nil, err
	}
	return &WriteResult{UpdateTime: doc.UpdateTime}, nil
}

// Delete deletes the referenced document. Deleting a non-existent document is not an
// error.
func (d *DocumentRef) Delete(ctx context.Context) error {
	_, err := d.c.hc.Do(ctx, &internal.Request{
		Method: http.MethodDelete,
		URL:    fmt.Sprintf("%s/%s", d.c.endpoint, d.Path),
	})
	return err
}

// Collections lists the subcollections of the referenced document.
func (d *DocumentRef) Collections(ctx context.Context) ([]*CollectionRef, error) {
	ids, err := d.c.listCollectionIDs(ctx, d.Path)
	if err != nil {
		return nil, err
	}
	refs := make([]*CollectionRef, len(ids))
	for i, id := range ids {
		refs[i] = &CollectionRef{
			c:          d.c,
			parentPath: d.Path,
			Path:       d.Path + "/" + id,
			ID:         id,
		}
	}
	return refs, nil
}

// A CollectionRef is a reference to a Firestore collection.
type CollectionRef struct {
	c *Client

	// parentPath is the resource path of the parent document, or the root documents
	// path for top-level collections.
	parentPath string

	// Path is the full resource path of the collection.
	Path string

	// ID is the last component of the path.
	ID string
}

func newCollectionRef(c *Client, segs []string) *CollectionRef {
	parent := c.docsPath
	if len(segs) > 1 {
		parent = c.docsPath + "/" + strings.Join(segs[:len(segs)-1], "/")
	}
	return &CollectionRef{
		c:          c,
		parentPath: parent,
		Path:       c.docsPath + "/" + strings.Join(segs, "/"),
		ID:         segs[len(segs)-1],
	}
}

// Doc returns a reference to the document with the given ID within the collection.
func (r *CollectionRef) Doc(id string) (*DocumentRef, error) {
	if err := checkPathSegment(id); err != nil {
		return nil, err
	}
	parent := r
	return &DocumentRef{
		c:      r.c,
		Parent: parent,
		Path:   r.Path + "/" + id,
		ID:     id,
	}, nil
}

// Add creates a new document in the collection with a server-assigned ID.
func (r *CollectionRef) Add(ctx context.Context, data interface{}) (*DocumentRef, *WriteResult, error) {
	fields, err := encodeDocumentData(data)
	if err != nil {
		return nil, nil, err
	}

	var doc Document
	_, err = r.c.hc.DoAndUnmarshal(ctx, &internal.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s", r.c.endpoint, r.Path),
		Body:   internal.NewJSONEntity(&Document{Fields: fields}),
	}, &doc)
	if err != nil {
		return nil, nil, err
	}

	id := doc.Name[strings.LastIndex(doc.Name, "/")+1:]
	ref := &DocumentRef{
		c:      r.c,
		Parent: r,
		Path:   r.Path + "/" + id,
		ID:     id,
	}
	return ref, &WriteResult{UpdateTime: doc.UpdateTime}, nil
}

type listDocumentsResponse struct {
	Documents     []*Document `json:"documents"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// DocumentSnapshots lists the documents in the collection, following pagination until
// the collection is exhausted.
func (r *CollectionRef) DocumentSnapshots(ctx context.Context) ([]*DocumentSnapshot, error) {
	var snaps []*DocumentSnapshot
	var pageToken string
	for {
		opts := []internal.HTTPOption{internal.WithQueryParam("pageSize", "100")}
		if pageToken != "" {
			opts = append(opts, internal.WithQueryParam("pageToken", pageToken))
		}

		var result listDocumentsResponse
		_, err := r.c.hc.DoAndUnmarshal(ctx, &internal.Request{
			Method: http.MethodGet,
			URL:    fmt.Sprintf("%s/%s", r.c.endpoint, r.Path),
			Opts:   opts,
		}, &result)
		if err != nil {
			return nil, err
		}

		for _, doc := range result.Documents {
			snaps = append(snaps, r.c.snapshotForDocument(doc, ""))
		}
		if result.NextPageToken == "" {
			return snaps, nil
		}
		pageToken = result.NextPageToken
	}
}

// DocumentRefs returns an iterator over the references of the documents in the
// collection.
func (r *CollectionRef) DocumentRefs(ctx context.Context) *DocumentRefIterator {
	it := &DocumentRefIterator{ctx: ctx, ref: r}
	it.pageInfo, it.nextFunc = iterator.NewPageInfo(
		it.fetch,
		func() int { return len(it.refs) },
		func() interface{} { b := it.refs; it.refs = nil; return b })
	it.pageInfo.MaxSize = 100
	return it
}

// DocumentRefIterator is an iterator over DocumentRefs.
type DocumentRefIterator struct {
	ref      *CollectionRef
	ctx      context.Context
	nextFunc func() error
	pageInfo *iterator.PageInfo
	refs     []*DocumentRef
}

func (it *DocumentRefIterator) fetch(pageSize int, pageToken string) (string, error) {
	opts := []internal.HTTPOption{internal.WithQueryParam("pageSize", strconv.Itoa(pageSize))}
	if pageToken != "" {
		opts = append(opts, internal.WithQueryParam("pageToken", pageToken))
	}

	var result listDocumentsResponse
	if _, err := it.ref.c.hc.DoAndUnmarshal(it.ctx, &internal.Request{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s", it.ref.c.endpoint, it.ref.Path),
		Opts:   opts,
	}, &result); err != nil {
		return "", err
	}
	for _, doc := range result.Documents {
		it.refs = append(it.refs, &DocumentRef{
			c:      it.ref.c,
			Parent: it.ref,
			Path:   doc.Name,
			ID:     doc.Name[strings.LastIndex(doc.Name, "/")+1:],
		})
	}
	return result.NextPageToken, nil
}

// PageInfo supports pagination. See the google.golang.org/api/iterator package for details.
func (it *DocumentRefIterator) PageInfo() *iterator.PageInfo { return it.pageInfo }

// Next returns the next result. Its second return value is iterator.Done if there are
// no more results. Once Next returns iterator.Done, all subsequent calls will return
// iterator.Done.
func (it *DocumentRefIterator) Next() (*DocumentRef, error) {
	if err := it.nextFunc(); err != nil {
		return nil, err
	}
	ref := it.refs[0]
	it.refs = it.refs[1:]
	return ref, nil
}

func (c *Client) snapshotForDocument(doc *Document, readTime string) *DocumentSnapshot {
	id := doc.Name[strings.LastIndex(doc.Name, "/")+1:]
	return &DocumentSnapshot{
		Ref: &DocumentRef{
			c:    c,
			Path: doc.Name,
			ID:   id,
		},
		ReadTime: readTime,
		doc:      doc,
	}
}

func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, errors.New("firestore: path is empty")
	}
	segs := strings.Split(path, "/")
	for _, s := range segs {
		if err := checkPathSegment(s); err != nil {
			return nil, err
		}
	}
	return segs, nil
}

// checkDocumentPath validates a slash-separated path that must name a document.
func checkDocumentPath(path string) error {
	segs, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(segs)%2 != 0 {
		return fmt.Errorf("firestore: %q is not a document path", path)
	}
	return nil
}

func checkPathSegment(s string) error {
	if s == "" {
		return errors.New("firestore: path contains an empty segment")
	}
	return nil
}
