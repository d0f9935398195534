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
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestEncodeValue(t *testing.T) {
	cases := []struct {
		name string
		in   interface{}
		want *Value
	}{
		{"Null", nil, &Value{NullValue: "NULL_VALUE"}},
		{"Bool", true, &Value{BooleanValue: boolPtr(true)}},
		{"String", "hello", &Value{StringValue: strPtr("hello")}},
		{"EmptyString", "", &Value{StringValue: strPtr("")}},
		{"Int", 42, &Value{IntegerValue: "42"}},
		{"Int64Max", int64(math.MaxInt64), &Value{IntegerValue: "9223372036854775807"}},
		{"Int64Min", int64(math.MinInt64), &Value{IntegerValue: "-9223372036854775808"}},
		{"Zero", 0, &Value{IntegerValue: "0"}},
		{"Float", 3.5, &Value{DoubleValue: floatPtr(3.5)}},
		{"JSONNumberInt", json.Number("7"), &Value{IntegerValue: "7"}},
		{"JSONNumberFloat", json.Number("2.25"), &Value{DoubleValue: floatPtr(2.25)}},
		{
			"Array",
			[]interface{}{int64(1), "two"},
			&Value{ArrayValue: &ArrayValue{Values: []*Value{
				{IntegerValue: "1"},
				{StringValue: strPtr("two")},
			}}},
		},
		{
			"Map",
			map[string]interface{}{"k": int64(5)},
			&Value{MapValue: &MapValue{Fields: map[string]*Value{
				"k": {IntegerValue: "5"},
			}}},
		},
		{
			"Struct",
			struct {
				Name string `json:"name"`
				Age  int64  `json:"age"`
			}{Name: "Alice", Age: 30},
			&Value{MapValue: &MapValue{Fields: map[string]*Value{
				"name": {StringValue: strPtr("Alice")},
				"age":  {IntegerValue: "30"},
			}}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := encodeValue(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("encodeValue(%v) mismatch (-want +got):\n%s", tc.in, diff)
			}
		})
	}
}

func TestEncodeValueLargeIntegerThroughStruct(t *testing.T) {
	// Integers above 2^53 cannot survive a trip through float64. The struct
	// normalization path must keep them exact.
	in := struct {
		N int64 `json:"n"`
	}{N: 1<<62 + 1}
	got, err := encodeValue(in)
	if err != nil {
		t.Fatal(err)
	}
	want := "4611686018427387905"
	if got.MapValue.Fields["n"].IntegerValue != want {
		t.Errorf("IntegerValue = %q; want %q", got.MapValue.Fields["n"].IntegerValue, want)
	}
}

func TestDecodeValue(t *testing.T) {
	cases := []struct {
		name string
		in   *Value
		want interface{}
	}{
		{"Null", &Value{NullValue: "NULL_VALUE"}, nil},
		{"Empty", &Value{}, nil},
		{"Bool", &Value{BooleanValue: boolPtr(false)}, false},
		{"Integer", &Value{IntegerValue: "-17"}, int64(-17)},
		{"Double", &Value{DoubleValue: floatPtr(1.5)}, 1.5},
		{"String", &Value{StringValue: strPtr("x")}, "x"},
		{"Timestamp", &Value{TimestampValue: "2025-01-01T00:00:00Z"}, "2025-01-01T00:00:00Z"},
		{"Bytes", &Value{BytesValue: "aGVsbG8="}, "aGVsbG8="},
		{"Reference", &Value{ReferenceValue: testDocsPath + "/users/alice"}, testDocsPath + "/users/alice"},
		{
			"GeoPoint",
			&Value{GeoPointValue: &LatLng{Latitude: 1.5, Longitude: -2.5}},
			map[string]interface{}{"latitude": 1.5, "longitude": -2.5},
		},
		{
			"Nested",
			&Value{MapValue: &MapValue{Fields: map[string]*Value{
				"list": {ArrayValue: &ArrayValue{Values: []*Value{{IntegerValue: "1"}}}},
			}}},
			map[string]interface{}{"list": []interface{}{int64(1)}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeValue(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("decodeValue() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeValueInvalidInteger(t *testing.T) {
	for _, bad := range []string{"abc", "1.5", "9223372036854775808"} {
		if _, err := decodeValue(&Value{IntegerValue: bad}); err == nil {
			t.Errorf("decodeValue(IntegerValue: %q) = nil; want error", bad)
		}
	}
}

func TestEncodeDocumentDataRejectsNonObject(t *testing.T) {
	for _, bad := range []interface{}{42, "str", []interface{}{1}, true} {
		if _, err := encodeDocumentData(bad); err == nil {
			t.Errorf("encodeDocumentData(%v) = nil; want error", bad)
		}
	}
}

func TestValueWireFormat(t *testing.T) {
	v, err := encodeValue(map[string]interface{}{
		"n":    int64(7),
		"f":    2.5,
		"s":    "x",
		"null": nil,
	})
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"mapValue":{"fields":{` +
		`"f":{"doubleValue":2.5},` +
		`"n":{"integerValue":"7"},` +
		`"null":{"nullValue":"NULL_VALUE"},` +
		`"s":{"stringValue":"x"}}}}`
	if string(b) != want {
		t.Errorf("wire form = %s; want %s", b, want)
	}
}

var interfaceType = reflect.TypeOf((*interface{})(nil)).Elem()

// asInterface re-types a generator's values as interface{} so that generators of
// different concrete types can be combined under OneGenOf, SliceOf and MapOf.
func asInterface(g gopter.Gen) gopter.Gen {
	return func(params *gopter.GenParameters) *gopter.GenResult {
		value, ok := g(params).Retrieve()
		if !ok {
			return gopter.NewEmptyResult(interfaceType)
		}
		return &gopter.GenResult{
			Shrinker:   gopter.NoShrinker,
			ResultType: interfaceType,
			Result:     value,
		}
	}
}

func genScalarValue() gopter.Gen {
	return gen.OneGenOf(
		asInterface(gen.Bool()),
		asInterface(gen.Int64()),
		asInterface(gen.Float64().SuchThat(func(v interface{}) bool {
			return !math.IsNaN(v.(float64))
		})),
		asInterface(gen.AlphaString()),
	)
}

func genGenericValue(depth int) gopter.Gen {
	if depth <= 0 {
		return genScalarValue()
	}
	return gen.OneGenOf(
		genScalarValue(),
		asInterface(gen.SliceOf(genGenericValue(depth-1))),
		asInterface(gen.MapOf(gen.Identifier(), genGenericValue(depth-1))),
	)
}

func TestValueRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("decode(encode(v)) == v", prop.ForAll(
		func(v interface{}) bool {
			encoded, err := encodeValue(v)
			if err != nil {
				return false
			}
			decoded, err := decodeValue(encoded)
			if err != nil {
				return false
			}
			return cmp.Equal(v, decoded, cmpopts.EquateEmpty())
		},
		genGenericValue(2),
	))

	properties.TestingRun(t)
}
