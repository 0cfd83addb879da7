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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

// Test fixtures are minted fresh per test: generated keys, generated
// certificate chains, and hand-assembled authenticator data and TPM
// structures, signed for real so positive cases pass every gate and
// negative cases fail exactly one.

type staticAnchors []CertificateHolder

func (s staticAnchors) TrustAnchors(aaguid []byte) []CertificateHolder { return s }

func newECKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

var testSerial int64 = 1000

func mintCert(t *testing.T, template *x509.Certificate, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, pub *ecdsa.PublicKey) *x509.Certificate {
	t.Helper()
	testSerial++
	template.SerialNumber = big.NewInt(testSerial)
	template.NotBefore = time.Now().Add(-time.Hour)
	template.NotAfter = time.Now().Add(time.Hour)
	if parent == nil {
		parent = template
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func mintCACert(t *testing.T, commonName string, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, key *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		Subject:               pkix.Name{CommonName: commonName},
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	if parentKey == nil {
		parentKey = key
	}
	return mintCert(t, template, parent, parentKey, &key.PublicKey)
}

// aaguidExtension builds the id-fido-gen-ce-aaguid extension value: the
// 16-byte identifier wrapped in an ASN.1 OCTET STRING.
func aaguidExtension(t *testing.T, aaguid []byte) pkix.Extension {
	t.Helper()
	value, err := asn1.Marshal(asn1.RawValue{Tag: asn1.TagOctetString, Bytes: aaguid})
	require.NoError(t, err)
	return pkix.Extension{Id: oidFidoGenCeAAGUID, Value: value}
}

func mintAIKCert(t *testing.T, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, key *ecdsa.PrivateKey, extensions ...pkix.Extension) *x509.Certificate {
	t.Helper()
	template := &x509.Certificate{
		Subject:         pkix.Name{CommonName: "test aik"},
		KeyUsage:        x509.KeyUsageDigitalSignature,
		ExtraExtensions: extensions,
	}
	if parentKey == nil {
		parentKey = key
	}
	return mintCert(t, template, parent, parentKey, &key.PublicKey)
}

func coseEC2Key(t *testing.T, pub *ecdsa.PublicKey) []byte {
	t.Helper()
	x := make([]byte, 32)
	y := make([]byte, 32)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)
	data, err := cbor.Marshal(map[int]interface{}{
		1:  2,            // kty: EC2
		3:  COSEAlgES256, // alg
		-1: 1,            // crv: P-256
		-2: x,
		-3: y,
	})
	require.NoError(t, err)
	return data
}

// mintAuthData assembles raw authenticator data with attested credential
// data: rpIdHash, flags UP|UV|AT, counter, AAGUID, credential ID, and the
// COSE credential key.
func mintAuthData(t *testing.T, aaguid []byte, credentialID []byte, credentialKey *ecdsa.PublicKey, counter uint32) []byte {
	t.Helper()
	require.Len(t, aaguid, 16)

	rpIDHash := sha256.Sum256([]byte("example.com"))

	data := make([]byte, 0, 128)
	data = append(data, rpIDHash[:]...)
	data = append(data, 0x45) // UP|UV|AT
	data = binary.BigEndian.AppendUint32(data, counter)
	data = append(data, aaguid...)
	data = binary.BigEndian.AppendUint16(data, uint16(len(credentialID)))
	data = append(data, credentialID...)
	data = append(data, coseEC2Key(t, credentialKey)...)
	return data
}

func tpm2b(payload []byte) []byte {
	out := binary.BigEndian.AppendUint16(nil, uint16(len(payload)))
	return append(out, payload...)
}

func tpm2bName(digest []byte) []byte {
	payload := binary.BigEndian.AppendUint16(nil, 0x000B) // TPM_ALG_SHA256
	payload = append(payload, digest...)
	return tpm2b(payload)
}

// mintTPMPubAreaECC assembles a TPMT_PUBLIC for a P-256 ECC key.
func mintTPMPubAreaECC(pub *ecdsa.PublicKey) []byte {
	x := make([]byte, 32)
	y := make([]byte, 32)
	pub.X.FillBytes(x)
	pub.Y.FillBytes(y)

	data := binary.BigEndian.AppendUint16(nil, 0x0023) // type: TPM_ALG_ECC
	data = binary.BigEndian.AppendUint16(data, 0x000B) // nameAlg: TPM_ALG_SHA256
	data = binary.BigEndian.AppendUint32(data, 0)      // objectAttributes
	data = append(data, tpm2b(nil)...)                 // authPolicy
	data = binary.BigEndian.AppendUint16(data, 0x0010) // symmetric: TPM_ALG_NULL
	data = binary.BigEndian.AppendUint16(data, 0x0018) // scheme: TPM_ALG_ECDSA
	data = binary.BigEndian.AppendUint16(data, 0x0003) // curveID: TPM_ECC_NIST_P256
	data = binary.BigEndian.AppendUint16(data, 0x0010) // kdf: TPM_ALG_NULL
	data = append(data, tpm2b(x)...)
	data = append(data, tpm2b(y)...)
	return data
}

// mintTPMCertInfo assembles a TPMS_ATTEST whose name certifies pubArea and
// whose extraData carries the attestation hash.
func mintTPMCertInfo(pubArea []byte, extraData []byte) []byte {
	pubAreaName := sha256.Sum256(pubArea)

	data := binary.BigEndian.AppendUint32(nil, tpmGeneratedValue)
	data = binary.BigEndian.AppendUint16(data, 0x8017) // type: TPM_ST_ATTEST_CERTIFY
	data = append(data, tpm2bName(nil)...)             // qualifiedSigner
	data = append(data, tpm2b(extraData)...)
	data = append(data, make([]byte, 17)...) // clockInfo
	data = append(data, make([]byte, 8)...)  // firmwareVersion
	data = append(data, tpm2bName(pubAreaName[:])...)
	data = append(data, tpm2bName(nil)...) // qualifiedName
	return data
}

type tpmFixture struct {
	authData       []byte
	clientDataHash []byte
	attStmt        map[string]interface{}
	anchors        staticAnchors
	counter        uint32
	aikKey         *ecdsa.PrivateKey
}

// mintTPMFixture builds a complete, internally consistent tpm attestation:
// root → intermediate → AIK, a fresh credential key, and a certInfo signed
// by the AIK over the attestation hash.
func mintTPMFixture(t *testing.T, aaguid []byte) *tpmFixture {
	t.Helper()

	rootKey := newECKey(t)
	rootCert := mintCACert(t, "test root", nil, nil, rootKey)
	interKey := newECKey(t)
	interCert := mintCACert(t, "test intermediate", rootCert, rootKey, interKey)
	aikKey := newECKey(t)
	aikCert := mintAIKCert(t, interCert, interKey, aikKey, aaguidExtension(t, aaguid))

	credentialKey := newECKey(t)
	const counter = 1957
	authData := mintAuthData(t, aaguid, []byte("credential-id"), &credentialKey.PublicKey, counter)
	clientDataHash := sha256.Sum256([]byte("client data"))

	pubArea := mintTPMPubAreaECC(&credentialKey.PublicKey)
	extraData := sha256.Sum256(append(append([]byte{}, authData...), clientDataHash[:]...))
	certInfo := mintTPMCertInfo(pubArea, extraData[:])

	digest := sha256.Sum256(certInfo)
	sig, err := ecdsa.SignASN1(rand.Reader, aikKey, digest[:])
	require.NoError(t, err)

	return &tpmFixture{
		authData:       authData,
		clientDataHash: clientDataHash[:],
		attStmt: map[string]interface{}{
			"ver":      "2.0",
			"alg":      COSEAlgES256,
			"sig":      sig,
			"x5c":      []interface{}{aikCert.Raw, interCert.Raw},
			"certInfo": certInfo,
			"pubArea":  pubArea,
		},
		anchors: staticAnchors{{Alias: "test root", Cert: rootCert}},
		counter: counter,
		aikKey:  aikKey,
	}
}

// retagNameAlg rewrites the pubArea name-algorithm tag, then refreshes the
// certInfo name and the AIK signature so the tag is the only divergence.
func (f *tpmFixture) retagNameAlg(t *testing.T, tag uint16) {
	t.Helper()

	pubArea := append([]byte{}, f.attStmt["pubArea"].([]byte)...)
	binary.BigEndian.PutUint16(pubArea[2:4], tag)

	extraData := sha256.Sum256(append(append([]byte{}, f.authData...), f.clientDataHash...))
	certInfo := mintTPMCertInfo(pubArea, extraData[:])

	digest := sha256.Sum256(certInfo)
	sig, err := ecdsa.SignASN1(rand.Reader, f.aikKey, digest[:])
	require.NoError(t, err)

	f.attStmt["pubArea"] = pubArea
	f.attStmt["certInfo"] = certInfo
	f.attStmt["sig"] = sig
}

func (f *tpmFixture) attestationObject(t *testing.T) []byte {
	t.Helper()
	data, err := cbor.Marshal(map[string]interface{}{
		"authData": f.authData,
		"fmt":      "tpm",
		"attStmt":  f.attStmt,
	})
	require.NoError(t, err)
	return data
}
