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

// A DocumentSnapshot contains data read from a document in a Firestore database.
type DocumentSnapshot struct {
	// Ref is the reference of the document this snapshot was read from.
	Ref *DocumentRef

	// ReadTime is the time this snapshot was read, when known.
	ReadTime string

	doc *Document
}

// Exists reports whether the document existed at the time the snapshot was read.
func (s *DocumentSnapshot) Exists() bool {
	return s.doc != nil
}

// CreateTime returns the time the document was created, or the empty string if the
// document does not exist.
func (s *DocumentSnapshot) CreateTime() string {
	if s.doc == nil {
		return ""
	}
	return s.doc.CreateTime
}

// UpdateTime returns the time the document was last updated, or the empty string if
// the document does not exist.
func (s *DocumentSnapshot) UpdateTime() string {
	if s.doc == nil {
		return ""
	}
	return s.doc.UpdateTime
}

// Data returns all fields of the document as generic Go values. Returns nil if the
// document does not exist.
func (s *DocumentSnapshot) Data() (map[string]interface{}, error) {
	if s.doc == nil {
		return nil, nil
	}
	return decodeFields(s.doc.Fields)
}

// DataTo unmarshals the document fields into the value pointed to by v, with the same
// conventions as the encoding/json package. Returns ErrDocumentNotFound if the document
// does not exist.
func (s *DocumentSnapshot) DataTo(v interface{}) error {
	if s.doc == nil {
		return ErrDocumentNotFound
	}
	return decodeInto(s.doc.Fields, v)
}

// Get returns the value of the given top-level field, or nil if the field is not
// present or the document does not exist.
func (s *DocumentSnapshot) Get(field string) (interface{}, error) {
	if s.doc == nil {
		return nil, nil
	}
	v, ok := s.doc.Fields[field]
	if !ok {
		return nil, nil
	}
	return decodeValue(v)
}

// A QuerySnapshot contains zero or more DocumentSnapshots representing the results of
// a query, in the order the server emitted them.
type QuerySnapshot struct {
	// Documents are the documents matched by the query.
	Documents []*DocumentSnapshot

	// ReadTime is the time the last result was read.
	ReadTime string
}

// Size returns the number of documents in the snapshot.
func (s *QuerySnapshot) Size() int {
	return len(s.Documents)
}

// Empty reports whether the snapshot contains no documents.
func (s *QuerySnapshot) Empty() bool {
	return len(s.Documents) == 0
}
