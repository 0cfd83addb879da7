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

import "fmt"

// Assertion carries the authenticator's response to an authentication
// ceremony: the raw authenticator data and the signature over its
// concatenation with the client data hash.
type Assertion struct {
	AuthnData []byte
	Signature []byte
}

// VerifyAssertion verifies an authentication assertion against a credential
// registered earlier and the signature counter stored for it.  It returns
// the updated counter on success.  A counter that moved backwards indicates
// a cloned authenticator and fails verification.
func (v *Verifier) VerifyAssertion(assertion *Assertion, clientDataHash []byte, credential *Credential, storedCounter uint32) (uint32, error) {
	authnData, rest, err := ParseAuthenticatorData(assertion.AuthnData)
	if err != nil {
		return 0, err
	}
	if len(rest) != 0 {
		return 0, decodeError("assertion", "authenticator data", "trailing data")
	}

	signed := make([]byte, 0, len(authnData.Raw)+len(clientDataHash))
	signed = append(signed, authnData.Raw...)
	signed = append(signed, clientDataHash...)

	if err := credential.Verify(signed, assertion.Signature); err != nil {
		return 0, &VerificationError{
			Reason: ReasonSignature,
			Type:   "assertion",
			Field:  "signature",
			Msg:    err.Error(),
		}
	}

	// A zero counter on both sides means the authenticator does not
	// implement one; otherwise the counter must strictly increase.
	if authnData.Counter != 0 || storedCounter != 0 {
		if authnData.Counter <= storedCounter {
			return 0, &VerificationError{
				Reason: ReasonMismatch,
				Type:   "assertion",
				Field:  "counter",
				Msg:    fmt.Sprintf("signature counter %d is not greater than stored counter %d", authnData.Counter, storedCounter),
			}
		}
	}

	v.log.Debug("assertion verified", "counter", authnData.Counter)
	return authnData.Counter, nil
}
