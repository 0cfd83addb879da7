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

import "crypto/x509"

// noneAttestationStatement represents the "none" attestation statement
// format: an empty statement used when the authenticator does not attest,
// or the relying party asked it not to.
type noneAttestationStatement struct{}

func (attStmt *noneAttestationStatement) format() Format { return FormatNone }

func parseNoneAttestation(data []byte) (AttestationStatement, error) {
	// The statement must be the empty CBOR map.
	if len(data) != 1 || data[0] != 0xa0 {
		return nil, decodeError("none attestation", "", "attestation statement is not an empty map")
	}
	return &noneAttestationStatement{}, nil
}

// verify always succeeds.  The registration is recorded as unattested and
// the caller decides whether to accept it.
func (attStmt *noneAttestationStatement) verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error) {
	return AttestationTypeNone, nil, nil
}
