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
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Android key attestation certificate extension data, as specified in
// https://source.android.com/security/keystore/attestation
var oidAndroidKeyCertificateExt = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// KeyMaster authorization constants checked against the attestation
// certificate extension.
const (
	kmOriginGenerated = 0
	kmPurposeSign     = 2
)

type androidKeyAttestationStatement struct {
	SignatureAlgorithm
	sig      []byte
	credCert *x509.Certificate
	caCerts  []*x509.Certificate
}

func (attStmt *androidKeyAttestationStatement) format() Format { return FormatAndroidKey }

func parseAndroidKeyAttestation(data []byte) (AttestationStatement, error) {
	type rawAttStmt struct {
		Alg int      `cbor:"alg"`
		Sig []byte   `cbor:"sig"`
		X5C [][]byte `cbor:"x5c"`
	}
	var raw rawAttStmt
	var err error
	if err = cbor.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("Android key attestation", "", err.Error())
	}

	if raw.Alg == 0 {
		return nil, decodeError("Android key attestation", "alg", "missing field")
	}
	if len(raw.Sig) == 0 {
		return nil, decodeError("Android key attestation", "sig", "missing field")
	}
	if len(raw.X5C) == 0 {
		return nil, decodeError("Android key attestation", "x5c", "missing field")
	}

	attStmt := &androidKeyAttestationStatement{sig: raw.Sig}

	if attStmt.SignatureAlgorithm, err = CoseAlgToSignatureAlgorithm(raw.Alg); err != nil {
		return nil, err
	}

	for i := 0; i < len(raw.X5C); i++ {
		c, err := x509.ParseCertificate(raw.X5C[i])
		if err != nil {
			return nil, decodeError("Android key attestation", fmt.Sprintf("x5c[%d]", i), err.Error())
		}
		if i == 0 {
			attStmt.credCert = c
		} else {
			attStmt.caCerts = append(attStmt.caCerts, c)
		}
	}

	return attStmt, nil
}

// verify follows the android-key attestation statement verification
// procedure defined in https://w3c.github.io/webauthn/ section 8.4.  The
// certificate chain is validated against the configured trust anchors,
// which carry the Android Keystore attestation roots.
func (attStmt *androidKeyAttestationStatement) verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error) {
	chain := append([]*x509.Certificate{attStmt.credCert}, attStmt.caCerts...)
	if _, err := ValidateChain(chain, v.trustAnchors(authnData.AAGUID)); err != nil {
		return 0, nil, err
	}

	// Verify that sig is a valid signature over the concatenation of
	// authenticator data and client data hash, using the public key in the
	// first certificate in x5c with the algorithm specified in alg.
	signed := make([]byte, 0, len(authnData.Raw)+len(clientDataHash))
	signed = append(signed, authnData.Raw...)
	signed = append(signed, clientDataHash...)

	if err := attStmt.credCert.CheckSignature(attStmt.Algorithm, signed, attStmt.sig); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonSignature,
			Type:   "Android key attestation",
			Field:  "signature",
			Msg:    err.Error(),
		}
	}

	// Verify that the public key in the first certificate in x5c matches
	// the credential public key in authenticator data.
	if !reflect.DeepEqual(attStmt.credCert.PublicKey, authnData.Credential.PublicKey) {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android key attestation",
			Field:  "certificate public key",
			Msg:    "certificate public key does not match credential public key",
		}
	}

	attestationChallenge, softwareEnforced, teeEnforced, err := parseAndroidKeyCertExtension(attStmt.credCert)
	if err != nil {
		return 0, nil, decodeError("Android key attestation", "certificate extension "+oidAndroidKeyCertificateExt.String(), err.Error())
	}

	// Verify that the attestationChallenge field in the attestation
	// certificate extension data is identical to clientDataHash.
	if !bytes.Equal(attestationChallenge, clientDataHash) {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android key attestation",
			Field:  "certificate extension attestationChallenge",
			Msg:    "attestationChallenge does not match clientDataHash",
		}
	}

	// The allApplications field must not be present on either authorization
	// list, since the credential must be scoped to the RP ID.
	if softwareEnforced.allApplications {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android key attestation",
			Field:  "certificate extension softwareEnforced",
			Msg:    "softwareEnforced has allApplications set",
		}
	}
	if teeEnforced.allApplications {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android key attestation",
			Field:  "certificate extension teeEnforced",
			Msg:    "teeEnforced has allApplications set",
		}
	}

	// One of the authorization lists must declare the key as generated on
	// the device for signing.
	if softwareEnforced.origin != kmOriginGenerated && teeEnforced.origin != kmOriginGenerated {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android key attestation",
			Field:  "certificate extension softwareEnforced and teeEnforced",
			Msg:    "origin is not KM_ORIGIN_GENERATED",
		}
	}
	if (len(softwareEnforced.purpose) != 1 || softwareEnforced.purpose[0] != kmPurposeSign) &&
		(len(teeEnforced.purpose) != 1 || teeEnforced.purpose[0] != kmPurposeSign) {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android key attestation",
			Field:  "certificate extension softwareEnforced and teeEnforced",
			Msg:    "purpose is not KM_PURPOSE_SIGN",
		}
	}

	return AttestationTypeBasic, chain, nil
}

type authorizationList struct {
	allApplications bool
	purpose         []int
	origin          int
}

func parseAuthorizationList(data []byte) (*authorizationList, error) {
	authList := &authorizationList{}

	// purpose [1] EXPLICIT SET OF INTEGER OPTIONAL
	if _, err := asn1.UnmarshalWithParams(data, &authList.purpose, "explicit,set,optional,tag:1"); err != nil {
		return nil, errors.New("failed to unmarshal AuthorizationList purpose: " + err.Error())
	}

	// origin [702] EXPLICIT INTEGER OPTIONAL
	if _, err := asn1.UnmarshalWithParams(data, &authList.origin, "explicit,optional,tag:702"); err != nil {
		return nil, errors.New("failed to unmarshal AuthorizationList origin: " + err.Error())
	}

	// allApplications [600] EXPLICIT NULL OPTIONAL
	if _, err := asn1.UnmarshalWithParams(data, &authList.allApplications, "explicit,optional,tag:600"); err != nil {
		return nil, errors.New("failed to unmarshal AuthorizationList allApplications: " + err.Error())
	}

	return authList, nil
}

func parseAndroidKeyCertExtension(cert *x509.Certificate) (attestationChallenge []byte, softwareEnforced *authorizationList, teeEnforced *authorizationList, err error) {
	var extValue []byte
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidAndroidKeyCertificateExt) {
			extValue = ext.Value
			break
		}
	}
	if len(extValue) == 0 {
		return nil, nil, nil, errors.New("missing certificate extension")
	}

	var seq asn1.RawValue
	var rest []byte
	rest, err = asn1.Unmarshal(extValue, &seq)
	if err != nil {
		return nil, nil, nil, errors.New("failed to unmarshal certificate extension: " + err.Error())
	} else if len(rest) != 0 {
		return nil, nil, nil, errors.New("trailing data after certificate extension")
	}
	if !seq.IsCompound || seq.Tag != asn1.TagSequence || seq.Class != asn1.ClassUniversal {
		return nil, nil, nil, errors.New("certificate extension is not an ASN.1 sequence")
	}

	rest = seq.Bytes
	for i := 0; len(rest) > 0; i++ {
		var v asn1.RawValue
		rest, err = asn1.Unmarshal(rest, &v)
		if err != nil {
			return nil, nil, nil, errors.New("failed to unmarshal certificate extension element: " + err.Error())
		}
		switch i {
		case 4:
			attestationChallenge = v.Bytes
		case 6:
			if softwareEnforced, err = parseAuthorizationList(v.Bytes); err != nil {
				return nil, nil, nil, err
			}
		case 7:
			if teeEnforced, err = parseAuthorizationList(v.Bytes); err != nil {
				return nil, nil, nil, err
			}
		}
	}
	if softwareEnforced == nil || teeEnforced == nil {
		return nil, nil, nil, errors.New("certificate extension is missing authorization lists")
	}
	return attestationChallenge, softwareEnforced, teeEnforced, nil
}
