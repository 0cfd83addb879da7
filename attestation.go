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
	"crypto/x509"

	"github.com/fxamacker/cbor/v2"
)

// AttestationType identifies an attestation trust model.
// Attestation types are defined in http://w3c.github.io/webauthn/#sctn-attestation-types
type AttestationType int

// Attestation types.
const (
	AttestationTypeBasic AttestationType = iota + 1
	AttestationTypeSelf
	AttestationTypeCA
	AttestationTypeNone
)

func (attType AttestationType) String() string {
	switch attType {
	case AttestationTypeBasic:
		return "Basic"
	case AttestationTypeSelf:
		return "Self"
	case AttestationTypeCA:
		return "AttCA"
	case AttestationTypeNone:
		return "None"
	default:
		return "Undefined"
	}
}

// Format identifies an attestation statement format.  The set of formats is
// closed: the dispatcher matches exhaustively over these tags and anything
// else fails with the unsupported-format reason.
type Format string

// Attestation statement formats registered in
// https://www.iana.org/assignments/webauthn/webauthn.xhtml
const (
	FormatPacked           Format = "packed"
	FormatTPM              Format = "tpm"
	FormatAndroidKey       Format = "android-key"
	FormatAndroidSafetyNet Format = "android-safetynet"
	FormatFidoU2F          Format = "fido-u2f"
	FormatNone             Format = "none"
)

// AttestationStatement is the closed union of parsed attestation statements.
// The unexported method seals the union to this package; every variant is
// handled by the dispatcher in parseAttestationStatement.
type AttestationStatement interface {
	// verify verifies the statement and returns the attestation type and
	// trust path, or a *VerificationError.
	verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error)

	// format returns the statement's format tag.
	format() Format
}

// AttestationObject is a decoded CBOR attestation object: authenticator
// data plus the format-tagged attestation statement.
type AttestationObject struct {
	AuthnData *AuthenticatorData
	AttStmt   AttestationStatement
}

// ParseAttestationObject decodes a CBOR-encoded attestation object.
func ParseAttestationObject(data []byte) (*AttestationObject, error) {
	type rawAttestationObject struct {
		AuthnData []byte          `cbor:"authData"`
		Fmt       string          `cbor:"fmt"`
		AttStmt   cbor.RawMessage `cbor:"attStmt"`
	}
	var raw rawAttestationObject
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("attestation object", "", err.Error())
	}
	if len(raw.AuthnData) == 0 {
		return nil, decodeError("attestation object", "authenticator data", "missing")
	}
	if len(raw.Fmt) == 0 {
		return nil, decodeError("attestation object", "attestation statement format", "missing")
	}

	authnData, _, err := ParseAuthenticatorData(raw.AuthnData)
	if err != nil {
		return nil, err
	}
	// Registration requires attested credential data.
	if len(authnData.CredentialID) == 0 || authnData.Credential == nil {
		return nil, decodeError("attestation object", "credential data", "missing")
	}

	attStmt, err := parseAttestationStatement(raw.Fmt, raw.AttStmt)
	if err != nil {
		return nil, err
	}
	return &AttestationObject{AuthnData: authnData, AttStmt: attStmt}, nil
}

// parseAttestationStatement dispatches on the declared format tag.  The
// match is exhaustive over the closed Format set.
func parseAttestationStatement(format string, data []byte) (AttestationStatement, error) {
	switch Format(format) {
	case FormatPacked:
		return parsePackedAttestation(data)
	case FormatTPM:
		return parseTPMAttestation(data)
	case FormatAndroidKey:
		return parseAndroidKeyAttestation(data)
	case FormatAndroidSafetyNet:
		return parseAndroidSafetyNetAttestation(data)
	case FormatFidoU2F:
		return parseFidoU2FAttestation(data)
	case FormatNone:
		return parseNoneAttestation(data)
	default:
		return nil, &VerificationError{
			Reason: ReasonUnsupportedFormat,
			Type:   "attestation object",
			Field:  "fmt",
			Msg:    "attestation statement format " + format + " is not supported",
		}
	}
}

// CredAndCounterData is the verified output of a successful attestation
// verification.  It is produced atomically: either every gate passed and
// all fields are populated, or verification failed and no result exists.
type CredAndCounterData struct {
	CredentialID []byte              // credential identifier from authenticator data
	KeyBytes     []byte              // verified raw key-coordinate bytes (RSA modulus or EC x coordinate)
	Credential   *Credential         // full verified credential public key
	Algorithm    SignatureAlgorithm  // credential key algorithm
	Counter      uint32              // signature counter at registration
	Format       Format              // attestation statement format that was verified
	Type         AttestationType     // attestation trust model established
	TrustPath    []*x509.Certificate // validated certification path (nil for self/none)
	Untrusted    bool                // set when the format conveys no trust assurance
}
