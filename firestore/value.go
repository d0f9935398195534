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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Value is the Firestore wire representation of a single dynamically typed value.
//
// Exactly one field is populated. Integers are transmitted as decimal strings to avoid
// losing 64-bit precision in JSON number parsing; this is a convention of the Firestore
// REST API itself.
type Value struct {
	NullValue      string      `json:"nullValue,omitempty"`
	BooleanValue   *bool       `json:"booleanValue,omitempty"`
	IntegerValue   string      `json:"integerValue,omitempty"`
	DoubleValue    *float64    `json:"doubleValue,omitempty"`
	TimestampValue string      `json:"timestampValue,omitempty"`
	StringValue    *string     `json:"stringValue,omitempty"`
	BytesValue     string      `json:"bytesValue,omitempty"`
	ReferenceValue string      `json:"referenceValue,omitempty"`
	GeoPointValue  *LatLng     `json:"geoPointValue,omitempty"`
	ArrayValue     *ArrayValue `json:"arrayValue,omitempty"`
	MapValue       *MapValue   `json:"mapValue,omitempty"`
}

// nullValue is the enum name the REST API uses for the null variant.
const nullValue = "NULL_VALUE"

// LatLng represents a geographical point.
type LatLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ArrayValue represents an ordered list of values.
type ArrayValue struct {
	Values []*Value `json:"values,omitempty"`
}

// MapValue represents a map of string keys to values.
type MapValue struct {
	Fields map[string]*Value `json:"fields,omitempty"`
}

// encodeDocumentData converts arbitrary document data into a Firestore field map.
//
// The data may be a map with string keys or anything that serializes to a JSON object.
// Passing any other kind of value is an error: documents are maps at the root.
func encodeDocumentData(data interface{}) (map[string]*Value, error) {
	m, ok := data.(map[string]interface{})
	if !ok {
		normalized, err := normalizeThroughJSON(data)
		if err != nil {
			return nil, err
		}
		m, ok = normalized.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("firestore: document data must serialize to a JSON object, got %T", data)
		}
	}
	return encodeFields(m)
}

func encodeFields(m map[string]interface{}) (map[string]*Value, error) {
	fields := make(map[string]*Value, len(m))
	for k, v := range m {
		ev, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		fields[k] = ev
	}
	return fields, nil
}

// encodeValue converts a generic Go value into its Firestore wire representation.
func encodeValue(v interface{}) (*Value, error) {
	switch val := v.(type) {
	case nil:
		return &Value{NullValue: nullValue}, nil
	case bool:
		return &Value{BooleanValue: &val}, nil
	case string:
		return &Value{StringValue: &val}, nil
	case int:
		return integerValue(int64(val)), nil
	case int8:
		return integerValue(int64(val)), nil
	case int16:
		return integerValue(int64(val)), nil
	case int32:
		return integerValue(int64(val)), nil
	case int64:
		return integerValue(val), nil
	case uint8:
		return integerValue(int64(val)), nil
	case uint16:
		return integerValue(int64(val)), nil
	case uint32:
		return integerValue(int64(val)), nil
	case float32:
		f := float64(val)
		return &Value{DoubleValue: &f}, nil
	case float64:
		return &Value{DoubleValue: &val}, nil
	case json.Number:
		if i, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return integerValue(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("firestore: cannot encode number %q: %v", val, err)
		}
		return &Value{DoubleValue: &f}, nil
	case []interface{}:
		values := make([]*Value, len(val))
		for i, elem := range val {
			ev, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			values[i] = ev
		}
		return &Value{ArrayValue: &ArrayValue{Values: values}}, nil
	case map[string]interface{}:
		fields, err := encodeFields(val)
		if err != nil {
			return nil, err
		}
		return &Value{MapValue: &MapValue{Fields: fields}}, nil
	default:
		normalized, err := normalizeThroughJSON(v)
		if err != nil {
			return nil, err
		}
		return encodeValue(normalized)
	}
}

func integerValue(i int64) *Value {
	return &Value{IntegerValue: strconv.FormatInt(i, 10)}
}

// normalizeThroughJSON reduces an arbitrary serializable value (typically a struct) to the
// generic JSON domain. Numbers are decoded as json.Number so that integers survive the
// round trip without being coerced to floats.
func normalizeThroughJSON(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("firestore: cannot encode value of type %T: %v", v, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("firestore: cannot encode value of type %T: %v", v, err)
	}
	return out, nil
}

// decodeFields converts a Firestore field map back into generic Go values.
func decodeFields(fields map[string]*Value) (map[string]interface{}, error) {
	m := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		dv, err := decodeValue(v)
		if err != nil {
			return nil, err
		}
		m[k] = dv
	}
	return m, nil
}

// decodeValue converts a Firestore wire value into a generic Go value.
//
// Integers come back as int64, doubles as float64. Timestamps, bytes and references are
// opaque strings; geo points decode to a {latitude, longitude} map. The decoder performs
// no timezone or geodesy interpretation.
func decodeValue(v *Value) (interface{}, error) {
	switch {
	case v == nil:
		return nil, fmt.Errorf("firestore: cannot decode a nil value")
	case v.BooleanValue != nil:
		return *v.BooleanValue, nil
	case v.IntegerValue != "":
		i, err := strconv.ParseInt(v.IntegerValue, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("firestore: invalid integer value %q: %v", v.IntegerValue, err)
		}
		return i, nil
	case v.DoubleValue != nil:
		return *v.DoubleValue, nil
	case v.StringValue != nil:
		return *v.StringValue, nil
	case v.MapValue != nil:
		return decodeFields(v.MapValue.Fields)
	case v.ArrayValue != nil:
		out := make([]interface{}, len(v.ArrayValue.Values))
		for i, elem := range v.ArrayValue.Values {
			dv, err := decodeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case v.TimestampValue != "":
		return v.TimestampValue, nil
	case v.GeoPointValue != nil:
		return map[string]interface{}{
			"latitude":  v.GeoPointValue.Latitude,
			"longitude": v.GeoPointValue.Longitude,
		}, nil
	case v.BytesValue != "":
		return v.BytesValue, nil
	case v.ReferenceValue != "":
		return v.ReferenceValue, nil
	default:
		// The only remaining variant is null. Some servers send {"nullValue": null}
		// rather than the NULL_VALUE enum name; both end up here.
		return nil, nil
	}
}

// decodeInto unmarshals a decoded field map into the value pointed to by v, using JSON
// as the intermediate representation.
func decodeInto(fields map[string]*Value, v interface{}) error {
	m, err := decodeFields(fields)
	if err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
