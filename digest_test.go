/*
Copyright 2025-present the openauthn authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package fido2

import (
	"crypto"
	"errors"
	"testing"
)

func TestDigestForIdentifier(t *testing.T) {
	testCases := []struct {
		name string
		id   int
		hash crypto.Hash
	}{
		{"identifier 6 maps to SHA-256", 6, crypto.SHA256},
		{"ES256", COSEAlgES256, crypto.SHA256},
		{"ES384", COSEAlgES384, crypto.SHA384},
		{"ES512", COSEAlgES512, crypto.SHA512},
		{"PS256", COSEAlgPS256, crypto.SHA256},
		{"RS1", COSEAlgRS1, crypto.SHA1},
		{"RS256", COSEAlgRS256, crypto.SHA256},
		{"RS512", COSEAlgRS512, crypto.SHA512},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, err := DigestForIdentifier(tc.id)
			if err != nil {
				t.Fatalf("DigestForIdentifier(%d) returned error %q", tc.id, err)
			}
			if h != tc.hash {
				t.Errorf("DigestForIdentifier(%d) = %v, want %v", tc.id, h, tc.hash)
			}
		})
	}
}

func TestDigestForIdentifierUnsupported(t *testing.T) {
	for _, id := range []int{0, 1, -8, 99999} {
		_, err := DigestForIdentifier(id)
		if err == nil {
			t.Errorf("DigestForIdentifier(%d) did not return error", id)
			continue
		}
		var verificationErr *VerificationError
		if !errors.As(err, &verificationErr) {
			t.Fatalf("error is %T, want *VerificationError", err)
		}
		if verificationErr.Reason != ReasonUnsupportedAlgorithm {
			t.Errorf("error reason is %s, want unsupported algorithm", verificationErr.Reason)
		}
	}
}
