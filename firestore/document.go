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

import "sort"

// Document is the Firestore resource representation of a document.
//
// Name is the full resource path of the document, in the form
// "projects/{project}/databases/{database}/documents/{collection}/{id}". It is assigned
// by the server; clients only construct names by joining a known parent path with a
// document ID.
type Document struct {
	Name       string            `json:"name,omitempty"`
	Fields     map[string]*Value `json:"fields,omitempty"`
	CreateTime string            `json:"createTime,omitempty"`
	UpdateTime string            `json:"updateTime,omitempty"`
}

// Precondition is a server-enforced assertion attached to a write.
type Precondition struct {
	Exists     *bool  `json:"exists,omitempty"`
	UpdateTime string `json:"updateTime,omitempty"`
}

// DocumentMask restricts the field paths a write applies to.
type DocumentMask struct {
	FieldPaths []string `json:"fieldPaths,omitempty"`
}

// Write is a single write intent: an update (which doubles as set and create, depending
// on mask and precondition), a delete, or a field transform.
type Write struct {
	Update          *Document       `json:"update,omitempty"`
	Delete          string          `json:"delete,omitempty"`
	Transform       *DocumentTransform `json:"transform,omitempty"`
	UpdateMask      *DocumentMask   `json:"updateMask,omitempty"`
	UpdateTransforms []*FieldTransform `json:"updateTransforms,omitempty"`
	CurrentDocument *Precondition   `json:"currentDocument,omitempty"`
}

// DocumentTransform applies server-side transformations to a document.
type DocumentTransform struct {
	Document        string            `json:"document,omitempty"`
	FieldTransforms []*FieldTransform `json:"fieldTransforms,omitempty"`
}

// FieldTransform is a single server-side field transformation.
type FieldTransform struct {
	FieldPath            string      `json:"fieldPath,omitempty"`
	SetToServerValue     string      `json:"setToServerValue,omitempty"`
	Increment            *Value      `json:"increment,omitempty"`
	Maximum              *Value      `json:"maximum,omitempty"`
	Minimum              *Value      `json:"minimum,omitempty"`
	AppendMissingElements *ArrayValue `json:"appendMissingElements,omitempty"`
	RemoveAllFromArray   *ArrayValue `json:"removeAllFromArray,omitempty"`
}

// ServerTimestamp is the server value enum for FieldTransform.SetToServerValue.
const ServerTimestamp = "REQUEST_TIME"

// WriteResult is the outcome of a single write.
type WriteResult struct {
	UpdateTime string `json:"updateTime,omitempty"`
}

type commitRequest struct {
	Transaction string   `json:"transaction,omitempty"`
	Writes      []*Write `json:"writes"`
}

type commitResponse struct {
	WriteResults []*WriteResult `json:"writeResults"`
	CommitTime   string         `json:"commitTime,omitempty"`
}

// setWrite builds an unconditional overwrite of the named document.
func setWrite(name string, fields map[string]*Value) *Write {
	return &Write{
		Update: &Document{Name: name, Fields: fields},
	}
}

// createWrite builds a strict create: the write fails if the document already exists.
func createWrite(name string, fields map[string]*Value) *Write {
	exists := false
	return &Write{
		Update:          &Document{Name: name, Fields: fields},
		CurrentDocument: &Precondition{Exists: &exists},
	}
}

// updateWrite builds a strict update. The field mask is derived from the top-level keys
// of fields, so the mask and the value key set are equal by construction, and the
// exists precondition makes an update of a missing document fail rather than create it.
func updateWrite(name string, fields map[string]*Value) *Write {
	paths := make([]string, 0, len(fields))
	for k := range fields {
		paths = append(paths, k)
	}
	sort.Strings(paths)
	exists := true
	return &Write{
		Update:          &Document{Name: name, Fields: fields},
		UpdateMask:      &DocumentMask{FieldPaths: paths},
		CurrentDocument: &Precondition{Exists: &exists},
	}
}

// deleteWrite builds an unconditional delete of the named document.
func deleteWrite(name string) *Write {
	return &Write{Delete: name}
}
