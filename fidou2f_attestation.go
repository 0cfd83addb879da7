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
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type fidou2fAttestationStatement struct {
	sig         []byte
	attestnCert *x509.Certificate
}

func (attStmt *fidou2fAttestationStatement) format() Format { return FormatFidoU2F }

func parseFidoU2FAttestation(data []byte) (AttestationStatement, error) {
	type rawAttStmt struct {
		Sig []byte   `cbor:"sig"`
		X5C [][]byte `cbor:"x5c"` // A single element array containing the attestation certificate in X.509 format.
	}
	var raw rawAttStmt
	var err error
	if err = cbor.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("fido u2f attestation", "", err.Error())
	}

	if len(raw.X5C) != 1 {
		return nil, decodeError("fido u2f attestation", "x5c", fmt.Sprintf("expected 1 attestation certificate, got %d certificates", len(raw.X5C)))
	}

	attStmt := &fidou2fAttestationStatement{sig: raw.Sig}

	if attStmt.attestnCert, err = x509.ParseCertificate(raw.X5C[0]); err != nil {
		return nil, decodeError("fido u2f attestation", "x5c[0]", err.Error())
	}

	return attStmt, nil
}

// verify follows the fido-u2f attestation statement verification procedure
// defined in https://w3c.github.io/webauthn/ section 8.6.
func (attStmt *fidou2fAttestationStatement) verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error) {
	// The certificate public key must be an Elliptic Curve public key over
	// the P-256 curve.
	certificatePublicKey, ok := attStmt.attestnCert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "fido u2f attestation",
			Field:  "certificate public key",
			Msg:    "certificate public key is not an Elliptic Curve public key",
		}
	}
	if certificatePublicKey.Params().BitSize != 256 {
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "fido u2f attestation",
			Field:  "certificate public key",
			Msg:    "certificate public key is not an Elliptic Curve public key over the P-256 curve",
		}
	}

	// Convert the credential public key to raw ANSI X9.62 format.
	credentialPublicKey, ok := authnData.Credential.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "fido u2f attestation",
			Field:  "credential public key",
			Msg:    "credential public key is not an Elliptic Curve public key",
		}
	}
	if credentialPublicKey.Curve.Params().BitSize != 256 {
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "fido u2f attestation",
			Field:  "credential public key",
			Msg:    "credential public key is not an Elliptic Curve public key over the P-256 curve",
		}
	}
	credentialPublicKeyX962 := elliptic.Marshal(credentialPublicKey.Curve, credentialPublicKey.X, credentialPublicKey.Y)

	// verificationData is the concatenation of
	// 0x00 || rpIdHash || clientDataHash || credentialId || publicKeyU2F.
	var verificationData bytes.Buffer
	verificationData.WriteByte(0x00)
	verificationData.Write(authnData.RPIDHash)
	verificationData.Write(clientDataHash)
	verificationData.Write(authnData.CredentialID)
	verificationData.Write(credentialPublicKeyX962)

	if err := attStmt.attestnCert.CheckSignature(x509.ECDSAWithSHA256, verificationData.Bytes(), attStmt.sig); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonSignature,
			Type:   "fido u2f attestation",
			Field:  "signature",
			Msg:    err.Error(),
		}
	}

	// When trust anchors are configured for this authenticator model, the
	// attestation certificate must chain to one of them.
	trustPath := []*x509.Certificate{attStmt.attestnCert}
	if anchors := v.trustAnchors(authnData.AAGUID); len(anchors) > 0 {
		if _, err := ValidateChain(trustPath, anchors); err != nil {
			return 0, nil, err
		}
	}

	return AttestationTypeBasic, trustPath, nil
}
