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
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var jwtSigAlg = map[string]x509.SignatureAlgorithm{
	"RS256": x509.SHA256WithRSA,
	"RS384": x509.SHA384WithRSA,
	"RS512": x509.SHA512WithRSA,
	"PS256": x509.SHA256WithRSAPSS,
	"PS384": x509.SHA384WithRSAPSS,
	"PS512": x509.SHA512WithRSAPSS,
	"ES256": x509.ECDSAWithSHA256,
	"ES384": x509.ECDSAWithSHA384,
	"ES512": x509.ECDSAWithSHA512,
}

type safetyNetHeader struct {
	alg         string
	attestnCert *x509.Certificate
	caCerts     []*x509.Certificate
}

type safetyNetPayload struct {
	Nonce                      string   `json:"nonce"`
	TimestampMS                uint64   `json:"timestampMs"`
	APKPackageName             string   `json:"apkPackageName"`
	APKCertificateDigestSHA256 []string `json:"apkCertificateDigestSha256"`
	APKDigestSHA256            string   `json:"apkDigestSha256"`
	CTSProfileMatch            bool     `json:"ctsProfileMatch"`
	BasicIntegrity             bool     `json:"basicIntegrity"`
}

type androidSafetyNetAttestationStatement struct {
	ver          string // Version number of Google Play Services responsible for providing the SafetyNet API.
	rawHeader    []byte
	rawPayload   []byte
	rawSignature []byte
	*safetyNetHeader
	*safetyNetPayload
	sig []byte
}

func (attStmt *androidSafetyNetAttestationStatement) format() Format { return FormatAndroidSafetyNet }

func parseAndroidSafetyNetAttestation(data []byte) (AttestationStatement, error) {
	type rawAttStmt struct {
		Ver      string `cbor:"ver"`
		Response []byte `cbor:"response"` // UTF-8 encoded result of the getJwsResult() call of the SafetyNet API, a JWS object in Compact Serialization.
	}

	var raw rawAttStmt
	var err error
	if err = cbor.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("Android safetynet attestation", "", err.Error())
	}

	parsedJWS := bytes.Split(raw.Response, []byte("."))
	if len(parsedJWS) != 3 {
		return nil, decodeError("Android safetynet attestation", "response", fmt.Sprintf("JWS Compact Serialization format expects 3 parts, got %d parts", len(parsedJWS)))
	}

	attStmt := &androidSafetyNetAttestationStatement{
		ver:          raw.Ver,
		rawHeader:    parsedJWS[0],
		rawPayload:   parsedJWS[1],
		rawSignature: parsedJWS[2],
	}

	headerBytes, err := base64.RawURLEncoding.DecodeString(string(attStmt.rawHeader))
	if err != nil {
		return nil, decodeError("Android safetynet attestation", "header", "failed to base64 decode header: "+err.Error())
	}
	if attStmt.safetyNetHeader, err = parseSafetyNetHeader(headerBytes); err != nil {
		return nil, err
	}

	payloadBytes, err := base64.RawURLEncoding.DecodeString(string(attStmt.rawPayload))
	if err != nil {
		return nil, decodeError("Android safetynet attestation", "payload", "failed to base64 decode payload: "+err.Error())
	}
	attStmt.safetyNetPayload = &safetyNetPayload{}
	if err = json.Unmarshal(payloadBytes, attStmt.safetyNetPayload); err != nil {
		return nil, decodeError("Android safetynet attestation", "payload", err.Error())
	}

	if attStmt.sig, err = base64.RawURLEncoding.DecodeString(string(attStmt.rawSignature)); err != nil {
		return nil, decodeError("Android safetynet attestation", "signature", "failed to base64 decode signature: "+err.Error())
	}

	return attStmt, nil
}

func parseSafetyNetHeader(data []byte) (h *safetyNetHeader, err error) {
	type rawHeader struct {
		Alg string   `json:"alg"`
		X5C [][]byte `json:"x5c"`
	}

	var raw rawHeader
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("Android safetynet attestation", "header", err.Error())
	}

	if len(raw.X5C) == 0 {
		return nil, decodeError("Android safetynet attestation", "header.x5c", "missing field")
	}

	h = &safetyNetHeader{alg: raw.Alg}

	for i := 0; i < len(raw.X5C); i++ {
		c, err := x509.ParseCertificate(raw.X5C[i])
		if err != nil {
			return nil, decodeError("Android safetynet attestation", fmt.Sprintf("header.x5c[%d]", i), err.Error())
		}
		if i == 0 {
			h.attestnCert = c
		} else {
			h.caCerts = append(h.caCerts, c)
		}
	}

	return h, nil
}

// verify follows the android-safetynet attestation statement verification
// procedure defined in https://w3c.github.io/webauthn/ section 8.5.  The JWS
// certificate chain is validated against the configured trust anchors,
// which carry the Google root certificate.
func (attStmt *androidSafetyNetAttestationStatement) verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error) {
	// Verify that the nonce in the response is identical to the Base64
	// encoding of the SHA-256 hash of the concatenation of authenticator
	// data and client data hash.
	nonceBase := make([]byte, 0, len(authnData.Raw)+len(clientDataHash))
	nonceBase = append(nonceBase, authnData.Raw...)
	nonceBase = append(nonceBase, clientDataHash...)
	nonceBuffer := sha256.Sum256(nonceBase)
	expectedNonce := base64.StdEncoding.EncodeToString(nonceBuffer[:])
	if expectedNonce != attStmt.Nonce {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android safetynet attestation",
			Field:  "nonce",
			Msg:    "attestation nonce does not match computed nonce",
		}
	}

	// Verify that the attestation certificate is issued to the hostname
	// "attest.android.com".
	const hostname = "attest.android.com"
	if err := attStmt.attestnCert.VerifyHostname(hostname); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android safetynet attestation",
			Field:  "certificate hostname",
			Msg:    "attestation certificate is not issued to the hostname \"" + hostname + "\"",
		}
	}

	// Verify that the ctsProfileMatch attribute in the payload is true.
	if !attStmt.CTSProfileMatch {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "Android safetynet attestation",
			Field:  "payload.ctsProfileMatch",
			Msg:    "ctsProfileMatch is false",
		}
	}

	chain := append([]*x509.Certificate{attStmt.attestnCert}, attStmt.caCerts...)
	if _, err := ValidateChain(chain, v.trustAnchors(authnData.AAGUID)); err != nil {
		return 0, nil, err
	}

	sigAlg, ok := jwtSigAlg[attStmt.alg]
	if !ok {
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "Android safetynet attestation",
			Field:  "header.alg",
			Msg:    "JWS algorithm " + attStmt.alg + " is not supported",
		}
	}

	// The JWS signature covers the Base64URL encoded header and payload
	// joined with a full stop.
	var signatureBase bytes.Buffer
	signatureBase.Write(attStmt.rawHeader)
	signatureBase.WriteByte('.')
	signatureBase.Write(attStmt.rawPayload)

	if err := attStmt.attestnCert.CheckSignature(sigAlg, signatureBase.Bytes(), attStmt.sig); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonSignature,
			Type:   "Android safetynet attestation",
			Field:  "signature",
			Msg:    err.Error(),
		}
	}

	return AttestationTypeBasic, chain, nil
}
