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

/*
Package fido2 verifies FIDO2/WebAuthn attestation objects on the server
side.  During registration a client submits a CBOR attestation object
proving that a newly created credential key pair originates from a genuine
authenticator; this package decodes the untrusted structures, dispatches on
the attestation statement format, validates certificate chains against
per-model trust anchors, verifies the format's signatures, and emits the
verified credential public key and signature counter.

No byte from the client is trusted until every check passes: verification
is a deterministic, side-effect-free function of its inputs plus a
read-only trust-anchor snapshot, and the first failing gate aborts the
attempt with a *VerificationError.

It uses fxamacker/cbor for all CBOR decoding because it doesn't crash on
malformed input and it's the most well-tested CBOR library available.
*/
package fido2

import (
	"log/slog"
)

// Verifier holds the collaborators a verification call consumes: the
// trust-anchor source keyed by authenticator model, and a write-only
// logger.  Construct it once and share it freely; verification calls keep
// no mutable state, so a single Verifier is safe for concurrent use.
type Verifier struct {
	anchors TrustAnchorSource
	log     *slog.Logger
}

// NewVerifier returns a Verifier using the given trust-anchor source.
// A nil logger falls back to slog.Default.
func NewVerifier(anchors TrustAnchorSource, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{anchors: anchors, log: logger}
}

// trustAnchors returns the anchor snapshot for an authenticator model.
// A nil source yields no anchors, which fails chain validation later
// rather than here: decode errors should surface before trust errors.
func (v *Verifier) trustAnchors(aaguid []byte) []CertificateHolder {
	if v.anchors == nil {
		return nil
	}
	return v.anchors.TrustAnchors(aaguid)
}

// VerifyAttestationObject decodes and verifies a CBOR attestation object
// against the client-data hash and returns the verified credential data.
// Any failure returns a *VerificationError and no partial result.
func (v *Verifier) VerifyAttestationObject(attObj []byte, clientDataHash []byte) (*CredAndCounterData, error) {
	parsed, err := ParseAttestationObject(attObj)
	if err != nil {
		v.log.Debug("attestation object rejected", "err", err)
		return nil, err
	}
	return v.VerifyAttestation(parsed, clientDataHash)
}

// VerifyAttestation verifies an already-decoded attestation object.
func (v *Verifier) VerifyAttestation(attObj *AttestationObject, clientDataHash []byte) (*CredAndCounterData, error) {
	attType, trustPath, err := attObj.AttStmt.verify(v, clientDataHash, attObj.AuthnData)
	if err != nil {
		v.log.Debug("attestation verification failed",
			"format", string(attObj.AttStmt.format()), "err", err)
		return nil, err
	}

	cred := attObj.AuthnData.Credential
	result := &CredAndCounterData{
		CredentialID: attObj.AuthnData.CredentialID,
		KeyBytes:     cred.KeyBytes,
		Credential:   cred,
		Algorithm:    cred.SignatureAlgorithm,
		Counter:      attObj.AuthnData.Counter,
		Format:       attObj.AttStmt.format(),
		Type:         attType,
		TrustPath:    trustPath,
		Untrusted:    attType == AttestationTypeNone,
	}
	v.log.Debug("attestation verified",
		"format", string(result.Format), "type", attType.String(), "counter", result.Counter)
	return result, nil
}
