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
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type packedAttestationStatement struct {
	SignatureAlgorithm                     // Algorithm used to generate the attestation signature.
	sig                []byte              // Signature.
	attestnCert        *x509.Certificate   // Attestation certificate.
	caCerts            []*x509.Certificate // Attestation certificate chain.
}

func (attStmt *packedAttestationStatement) format() Format { return FormatPacked }

func parsePackedAttestation(data []byte) (AttestationStatement, error) {
	type rawAttStmt struct {
		Alg        int      `cbor:"alg"` // COSEAlgorithmIdentifier of the algorithm used to generate the attestation signature.
		Sig        []byte   `cbor:"sig"`
		X5C        [][]byte `cbor:"x5c"`
		ECDAAKeyID []byte   `cbor:"ecdaaKeyId"` // The identifier of the ECDAA-Issuer public key.
	}

	var raw rawAttStmt
	var err error
	if err = cbor.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("packed attestation", "", err.Error())
	}

	if raw.Alg == 0 {
		return nil, decodeError("packed attestation", "alg", "missing field")
	}
	if len(raw.Sig) == 0 {
		return nil, decodeError("packed attestation", "sig", "missing field")
	}
	if len(raw.X5C) > 0 && len(raw.ECDAAKeyID) > 0 {
		return nil, decodeError("packed attestation", "", "packed attestation can not have both x5c and ecdaaKeyId fields")
	}
	if len(raw.ECDAAKeyID) > 0 {
		return nil, &VerificationError{
			Reason: ReasonUnsupportedFormat,
			Type:   "packed attestation",
			Field:  "ecdaaKeyId",
			Msg:    "Elliptic Curve based Direct Anonymous Attestation (ECDAA) is not supported",
		}
	}

	attStmt := &packedAttestationStatement{sig: raw.Sig}

	if attStmt.SignatureAlgorithm, err = CoseAlgToSignatureAlgorithm(raw.Alg); err != nil {
		return nil, err
	}

	for i := 0; i < len(raw.X5C); i++ {
		c, err := x509.ParseCertificate(raw.X5C[i])
		if err != nil {
			return nil, decodeError("packed attestation", fmt.Sprintf("x5c[%d]", i), err.Error())
		}
		if i == 0 {
			attStmt.attestnCert = c
		} else {
			attStmt.caCerts = append(attStmt.caCerts, c)
		}
	}

	return attStmt, nil
}

// verify follows the packed attestation statement verification procedure
// defined in https://w3c.github.io/webauthn/ section 8.2.
func (attStmt *packedAttestationStatement) verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error) {
	signed := make([]byte, 0, len(authnData.Raw)+len(clientDataHash))
	signed = append(signed, authnData.Raw...)
	signed = append(signed, clientDataHash...)

	// Without an attestation certificate the statement conveys self
	// attestation: the signature was produced by the credential key itself.
	if attStmt.attestnCert == nil {
		if attStmt.COSEAlgorithm != authnData.Credential.COSEAlgorithm {
			return 0, nil, &VerificationError{
				Reason: ReasonMismatch,
				Type:   "packed attestation",
				Field:  "alg",
				Msg:    "self attestation algorithm does not match credential algorithm",
			}
		}
		if err := authnData.Credential.Verify(signed, attStmt.sig); err != nil {
			return 0, nil, &VerificationError{
				Reason: ReasonSignature,
				Type:   "packed attestation",
				Field:  "signature",
				Msg:    err.Error(),
			}
		}
		return AttestationTypeSelf, nil, nil
	}

	// Verify that sig is a valid signature over the concatenation of
	// authenticator data and client data hash, using the attestation public
	// key in attestnCert with the algorithm specified in alg.
	if err := attStmt.attestnCert.CheckSignature(attStmt.Algorithm, signed, attStmt.sig); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonSignature,
			Type:   "packed attestation",
			Field:  "signature",
			Msg:    err.Error(),
		}
	}

	chain := append([]*x509.Certificate{attStmt.attestnCert}, attStmt.caCerts...)
	if _, err := ValidateChain(chain, v.trustAnchors(authnData.AAGUID)); err != nil {
		return 0, nil, err
	}

	// Verify that attestnCert meets the attestation certificate
	// requirements of the packed format.
	if err := verifyPackedAttestationCert(attStmt.attestnCert); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "packed attestation",
			Field:  "certificate requirement",
			Msg:    err.Error(),
		}
	}

	// If attestnCert contains the id-fido-gen-ce-aaguid extension, its
	// value must match the AAGUID in authenticator data.
	if err := matchAAGUIDWithCertificateExtensionIfExists(attStmt.attestnCert, authnData.AAGUID); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "packed attestation",
			Field:  "certificate extension " + oidFidoGenCeAAGUID.String(),
			Msg:    err.Error(),
		}
	}

	return AttestationTypeBasic, chain, nil
}

func verifyPackedAttestationCert(c *x509.Certificate) error {
	// Version must be set to 3 (indicated by an ASN.1 INTEGER with value 2).
	if c.Version != 3 {
		return fmt.Errorf("expected certificate version 3, got version %d", c.Version)
	}

	subject := c.Subject
	if country := subject.Country; len(country) == 0 || len(country[0]) != 2 {
		return errors.New("certificate \"country name\" must be set to two character ISO 3166 code")
	}
	if o := subject.Organization; len(o) == 0 {
		return errors.New("certificate missing \"organization name\"")
	}
	if ou := subject.OrganizationalUnit; len(ou) == 0 || ou[0] != "Authenticator Attestation" {
		return errors.New("certificate \"organization unit name\" must be \"Authenticator Attestation\"")
	}
	if cn := subject.CommonName; len(cn) == 0 {
		return errors.New("certificate missing \"common name\"")
	}

	// The Basic Constraints extension must have the CA component set to
	// false.
	if c.IsCA {
		return errors.New("certificate's basic constraints extension does not have the CA component set to false")
	}

	return nil
}
