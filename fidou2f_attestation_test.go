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
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

// U2F authenticators carry a zero AAGUID.
var u2fAAGUID = make([]byte, 16)

func mintU2FFixture(t *testing.T) (attObj []byte, clientDataHash []byte, anchors staticAnchors) {
	t.Helper()

	attestnKey := newECKey(t)
	attestnCert := mintAIKCert(t, nil, nil, attestnKey)

	credentialKey := newECKey(t)
	credentialID := []byte("u2f-key-handle")
	authData := mintAuthData(t, u2fAAGUID, credentialID, &credentialKey.PublicKey, 0)
	hash := sha256.Sum256([]byte("client data"))

	authnData, _, err := ParseAuthenticatorData(authData)
	if err != nil {
		t.Fatal(err)
	}

	var verificationData bytes.Buffer
	verificationData.WriteByte(0x00)
	verificationData.Write(authnData.RPIDHash)
	verificationData.Write(hash[:])
	verificationData.Write(credentialID)
	verificationData.Write(elliptic.Marshal(credentialKey.Curve, credentialKey.X, credentialKey.Y))

	digest := sha256.Sum256(verificationData.Bytes())
	sig, err := ecdsa.SignASN1(rand.Reader, attestnKey, digest[:])
	if err != nil {
		t.Fatal(err)
	}

	attObj, err = cbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "fido-u2f",
		"attStmt": map[string]interface{}{
			"sig": sig,
			"x5c": []interface{}{attestnCert.Raw},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	return attObj, hash[:], staticAnchors{{Alias: "u2f", Cert: attestnCert}}
}

func TestFidoU2FAttestation(t *testing.T) {
	attObj, clientDataHash, anchors := mintU2FFixture(t)

	v := NewVerifier(anchors, nil)
	result, err := v.VerifyAttestationObject(attObj, clientDataHash)
	if err != nil {
		t.Fatalf("VerifyAttestationObject() returned error %q", err)
	}
	if result.Format != FormatFidoU2F {
		t.Errorf("result format is %q, want %q", result.Format, FormatFidoU2F)
	}
	if result.Type != AttestationTypeBasic {
		t.Errorf("attestation type is %s, want Basic", result.Type)
	}
}

func TestFidoU2FAttestationBadClientDataHash(t *testing.T) {
	attObj, clientDataHash, anchors := mintU2FFixture(t)
	clientDataHash[3] ^= 0x01

	v := NewVerifier(anchors, nil)
	_, err := v.VerifyAttestationObject(attObj, clientDataHash)
	var verificationErr *VerificationError
	if !errors.As(err, &verificationErr) {
		t.Fatalf("error is %T, want *VerificationError", err)
	}
	if verificationErr.Reason != ReasonSignature {
		t.Errorf("error reason is %s, want signature", verificationErr.Reason)
	}
}

func TestFidoU2FAttestationRejectsMultipleCertificates(t *testing.T) {
	attestnKey := newECKey(t)
	attestnCert := mintAIKCert(t, nil, nil, attestnKey)

	credentialKey := newECKey(t)
	authData := mintAuthData(t, u2fAAGUID, []byte("u2f-key-handle"), &credentialKey.PublicKey, 0)

	attObj, err := cbor.Marshal(map[string]interface{}{
		"authData": authData,
		"fmt":      "fido-u2f",
		"attStmt": map[string]interface{}{
			"sig": []byte{0x01},
			"x5c": []interface{}{attestnCert.Raw, attestnCert.Raw},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ParseAttestationObject(attObj); err == nil {
		t.Error("ParseAttestationObject() accepted x5c with 2 certificates")
	}
}
