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
	_ "crypto/sha1"   // linked in for RS1 digests
	_ "crypto/sha256" // linked in for digest selection
	_ "crypto/sha512"
	"strconv"
)

// digestByIdentifier maps the integer algorithm identifiers carried in
// COSE keys and TPM structures to a hash function.  COSE signature
// algorithm identifiers select the hash they sign with; identifier 6 is
// emitted by conformance-suite authenticators for SHA-256 and is kept for
// compatibility.
var digestByIdentifier = map[int]crypto.Hash{
	6:            crypto.SHA256,
	COSEAlgES256: crypto.SHA256,
	COSEAlgES384: crypto.SHA384,
	COSEAlgES512: crypto.SHA512,
	COSEAlgPS256: crypto.SHA256,
	COSEAlgPS384: crypto.SHA384,
	COSEAlgPS512: crypto.SHA512,
	COSEAlgRS1:   crypto.SHA1,
	COSEAlgRS256: crypto.SHA256,
	COSEAlgRS384: crypto.SHA384,
	COSEAlgRS512: crypto.SHA512,
}

// DigestForIdentifier returns the hash function selected by an integer
// algorithm identifier.
func DigestForIdentifier(id int) (crypto.Hash, error) {
	h, ok := digestByIdentifier[id]
	if !ok {
		return 0, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "digest",
			Field:  "algorithm identifier",
			Msg:    "digest algorithm " + strconv.Itoa(id) + " is not supported",
		}
	}
	return h, nil
}

// digestConcat computes digest(a || b) with the given hash function.
func digestConcat(h crypto.Hash, a, b []byte) []byte {
	d := h.New()
	d.Write(a)
	d.Write(b)
	return d.Sum(nil)
}
