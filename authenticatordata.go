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
	"encoding/binary"
)

// AuthenticatorData represents the Web Authentication structure of the same
// name, as defined in http://w3c.github.io/webauthn/#sctn-authenticator-data
// It is immutable once decoded; Raw keeps the complete input buffer verbatim
// because attestation hashes are computed over the original bytes.
type AuthenticatorData struct {
	Raw          []byte      // Complete raw authenticator data content.
	RPIDHash     []byte      // SHA-256 hash of the RP ID the credential is scoped to.
	UserPresent  bool        // User is present.
	UserVerified bool        // User is verified.
	Counter      uint32      // Signature counter.
	AAGUID       []byte      // AAGUID of the authenticator (optional).
	CredentialID []byte      // Identifier of a public key credential source (optional).
	Credential   *Credential // Algorithm and public key portion of a Relying Party-specific credential key pair (optional).
}

// ParseAuthenticatorData decodes authenticator data.  Every byte-range
// access is bounds checked; a short buffer is a decode failure, never an
// out-of-bounds read.
func ParseAuthenticatorData(data []byte) (authnData *AuthenticatorData, rest []byte, err error) {
	if len(data) < 37 {
		return nil, nil, decodeError("authenticator data", "", "unexpected EOF")
	}

	authnData = &AuthenticatorData{Raw: data}

	authnData.RPIDHash = make([]byte, 32)
	copy(authnData.RPIDHash, data)

	flags := data[32]
	authnData.UserPresent = (flags & 0x01) > 0   // UP: flags bit 0.
	authnData.UserVerified = (flags & 0x04) > 0  // UV: flags bit 2.
	credentialDataIncluded := (flags & 0x40) > 0 // AT: flags bit 6.
	extensionDataIncluded := (flags & 0x80) > 0  // ED: flags bit 7.

	authnData.Counter = binary.BigEndian.Uint32(data[33:37])

	rest = data[37:]

	if credentialDataIncluded {
		if len(rest) < 18 {
			return nil, nil, decodeError("authenticator data", "", "unexpected EOF")
		}

		authnData.AAGUID = make([]byte, 16)
		copy(authnData.AAGUID, rest)

		idLength := binary.BigEndian.Uint16(rest[16:18])

		if len(rest[18:]) < int(idLength) {
			return nil, nil, decodeError("authenticator data", "credential id", "unexpected EOF")
		}
		authnData.CredentialID = make([]byte, idLength)
		copy(authnData.CredentialID, rest[18:])

		// The offset is computed in int: uint16 arithmetic would wrap for
		// credential IDs longer than 65517 bytes.
		if authnData.Credential, rest, err = ParseCredential(rest[18+int(idLength):]); err != nil {
			return nil, nil, err
		}
	}

	if extensionDataIncluded {
		return nil, nil, &VerificationError{
			Reason: ReasonUnsupportedFormat,
			Type:   "authenticator data",
			Field:  "extensions",
			Msg:    "authenticator data extensions are not supported",
		}
	}

	return
}
