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

// Package hash contains a collection of password hash algorithms that can be used with the
// auth.ImportUsers() API. Refer to https://firebase.google.com/docs/auth/admin/import-users for
// more details about supported hash algorithms.
package hash

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/firebase/firebase-admin-go/internal"
)

// Bcrypt represents the BCRYPT hash algorithm.
type Bcrypt struct{}

// Config returns the validated hash configuration.
func (b Bcrypt) Config() (internal.HashConfig, error) {
	return internal.HashConfig{"hashAlgorithm": "BCRYPT"}, nil
}

// StandardScrypt represents the standard scrypt hash algorithm.
type StandardScrypt struct {
	BlockSize        int
	DerivedKeyLength int
	MemoryCost       int
	Parallelization  int
}

// Config returns the validated hash configuration.
func (s StandardScrypt) Config() (internal.HashConfig, error) {
	return internal.HashConfig{
		"hashAlgorithm":   "STANDARD_SCRYPT",
		"dkLen":           s.DerivedKeyLength,
		"blockSize":       s.BlockSize,
		"parallelization": s.Parallelization,
		"memoryCost":      s.MemoryCost,
	}, nil
}

// Scrypt represents the scrypt hash algorithm.
//
// This is the modified scrypt used by Firebase Auth (https://github.com/firebase/scrypt).
// Rounds must be between 1 and 8, and the MemoryCost must be between 1 and 14. Key is required.
type Scrypt struct {
	Key           []byte
	SaltSeparator []byte
	Rounds        int
	MemoryCost    int
}

// Config returns the validated hash configuration.
func (s Scrypt) Config() (internal.HashConfig, error) {
	if len(s.Key) == 0 {
		return nil, errors.New("signer key not specified")
	}
	if s.Rounds < 1 || s.Rounds > 8 {
		return nil, errors.New("rounds must be between 1 and 8")
	}
	if s.MemoryCost < 1 || s.MemoryCost > 14 {
		return nil, errors.New("memory cost must be between 1 and 14")
	}
	return internal.HashConfig{
		"hashAlgorithm": "SCRYPT",
		"signerKey":     base64.RawURLEncoding.EncodeToString(s.Key),
		"saltSeparator": base64.RawURLEncoding.EncodeToString(s.SaltSeparator),
		"rounds":        s.Rounds,
		"memoryCost":    s.MemoryCost,
	}, nil
}

// HMACSHA256 represents the HMAC SHA256 hash algorithm. Key is required.
type HMACSHA256 struct {
	Key []byte
}

// Config returns the validated hash configuration.
func (h HMACSHA256) Config() (internal.HashConfig, error) {
	return hmacConfig("HMAC_SHA256", h.Key)
}

// HMACSHA512 represents the HMAC SHA512 hash algorithm. Key is required.
type HMACSHA512 struct {
	Key []byte
}

// Config returns the validated hash configuration.
func (h HMACSHA512) Config() (internal.HashConfig, error) {
	return hmacConfig("HMAC_SHA512", h.Key)
}

// SHA256 represents the SHA256 hash algorithm. Rounds must be between 1 and 8192.
type SHA256 struct {
	Rounds int
}

// Config returns the validated hash configuration.
func (s SHA256) Config() (internal.HashConfig, error) {
	return basicConfig("SHA256", s.Rounds)
}

// SHA512 represents the SHA512 hash algorithm. Rounds must be between 1 and 8192.
type SHA512 struct {
	Rounds int
}

// Config returns the validated hash configuration.
func (s SHA512) Config() (internal.HashConfig, error) {
	return basicConfig("SHA512", s.Rounds)
}

// PBKDF2SHA256 represents the PBKDF2 SHA256 hash algorithm. Rounds must be between 0 and 120000.
type PBKDF2SHA256 struct {
	Rounds int
}

// Config returns the validated hash configuration.
func (p PBKDF2SHA256) Config() (internal.HashConfig, error) {
	if p.Rounds < 0 || p.Rounds > 120000 {
		return nil, errors.New("rounds must be between 0 and 120000")
	}
	return internal.HashConfig{
		"hashAlgorithm": "PBKDF2_SHA256",
		"rounds":        p.Rounds,
	}, nil
}

func hmacConfig(name string, key []byte) (internal.HashConfig, error) {
	if len(key) == 0 {
		return nil, errors.New("signer key not specified")
	}
	return internal.HashConfig{
		"hashAlgorithm": name,
		"signerKey":     base64.RawURLEncoding.EncodeToString(key),
	}, nil
}

func basicConfig(name string, rounds int) (internal.HashConfig, error) {
	if rounds < 1 || rounds > 8192 {
		return nil, fmt.Errorf("rounds must be between 1 and 8192 for %s", name)
	}
	return internal.HashConfig{
		"hashAlgorithm": name,
		"rounds":        rounds,
	}, nil
}
