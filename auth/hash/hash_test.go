// Copyright 2018 Google Inc. All Rights Reserved.
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

package hash

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/firebase/firebase-admin-go/auth"
	"github.com/firebase/firebase-admin-go/internal"
)

var signerKey = []byte("signer-key")

func TestValidHashConfigs(t *testing.T) {
	cases := []struct {
		name string
		alg  auth.UserImportHash
		want internal.HashConfig
	}{
		{
			"Bcrypt",
			Bcrypt{},
			internal.HashConfig{"hashAlgorithm": "BCRYPT"},
		},
		{
			"StandardScrypt",
			StandardScrypt{
				BlockSize:        1,
				DerivedKeyLength: 32,
				MemoryCost:       4,
				Parallelization:  2,
			},
			internal.HashConfig{
				"hashAlgorithm":   "STANDARD_SCRYPT",
				"blockSize":       1,
				"dkLen":           32,
				"memoryCost":      4,
				"parallelization": 2,
			},
		},
		{
			"Scrypt",
			Scrypt{
				Key:           signerKey,
				SaltSeparator: []byte("sep"),
				Rounds:        8,
				MemoryCost:    14,
			},
			internal.HashConfig{
				"hashAlgorithm": "SCRYPT",
				"signerKey":     "c2lnbmVyLWtleQ",
				"saltSeparator": "c2Vw",
				"rounds":        8,
				"memoryCost":    14,
			},
		},
		{
			"HMACSHA256",
			HMACSHA256{Key: signerKey},
			internal.HashConfig{
				"hashAlgorithm": "HMAC_SHA256",
				"signerKey":     "c2lnbmVyLWtleQ",
			},
		},
		{
			"HMACSHA512",
			HMACSHA512{Key: signerKey},
			internal.HashConfig{
				"hashAlgorithm": "HMAC_SHA512",
				"signerKey":     "c2lnbmVyLWtleQ",
			},
		},
		{
			"SHA256",
			SHA256{Rounds: 100},
			internal.HashConfig{"hashAlgorithm": "SHA256", "rounds": 100},
		},
		{
			"SHA512",
			SHA512{Rounds: 8192},
			internal.HashConfig{"hashAlgorithm": "SHA512", "rounds": 8192},
		},
		{
			"PBKDF2SHA256",
			PBKDF2SHA256{Rounds: 120000},
			internal.HashConfig{"hashAlgorithm": "PBKDF2_SHA256", "rounds": 120000},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.alg.Config()
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Config() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInvalidHashConfigs(t *testing.T) {
	cases := []struct {
		name string
		alg  auth.UserImportHash
	}{
		{"ScryptNoKey", Scrypt{Rounds: 8, MemoryCost: 14}},
		{"ScryptRoundsTooHigh", Scrypt{Key: signerKey, Rounds: 9, MemoryCost: 14}},
		{"ScryptMemoryCostTooHigh", Scrypt{Key: signerKey, Rounds: 8, MemoryCost: 15}},
		{"HMACSHA256NoKey", HMACSHA256{}},
		{"HMACSHA512NoKey", HMACSHA512{}},
		{"SHA256NoRounds", SHA256{}},
		{"SHA512RoundsTooHigh", SHA512{Rounds: 8193}},
		{"PBKDF2RoundsTooHigh", PBKDF2SHA256{Rounds: 120001}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.alg.Config(); err == nil {
				t.Error("Config() did not return an error")
			}
		})
	}
}
