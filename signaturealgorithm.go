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
	"crypto"
	"crypto/x509"
	"strconv"
)

// Supported COSE algorithm identifiers registered in the IANA COSE Algorithm registry.
const (
	COSEAlgES256 = -7     // ECDSA with SHA-256
	COSEAlgES384 = -35    // ECDSA with SHA-384
	COSEAlgES512 = -36    // ECDSA with SHA-512
	COSEAlgPS256 = -37    // RSASSA-PSS with SHA-256
	COSEAlgPS384 = -38    // RSASSA-PSS with SHA-384
	COSEAlgPS512 = -39    // RSASSA-PSS with SHA-512
	COSEAlgRS1   = -65535 // RSASSA-PKCS1-v1_5 with SHA-1
	COSEAlgRS256 = -257   // RSASSA-PKCS1-v1_5 with SHA-256
	COSEAlgRS384 = -258   // RSASSA-PKCS1-v1_5 with SHA-384
	COSEAlgRS512 = -259   // RSASSA-PKCS1-v1_5 with SHA-512
)

// SignatureAlgorithm represents a signature algorithm, and its corresponding
// public key algorithm, hash function, and COSE algorithm identifier.
type SignatureAlgorithm struct {
	Algorithm          x509.SignatureAlgorithm
	PublicKeyAlgorithm x509.PublicKeyAlgorithm
	Hash               crypto.Hash
	COSEAlgorithm      int
}

// IsRSA returns if signature algorithm uses RSA public key.
func (alg SignatureAlgorithm) IsRSA() bool {
	return alg.PublicKeyAlgorithm == x509.RSA
}

// IsRSAPSS returns if signature algorithm uses RSAPSS public key.
func (alg SignatureAlgorithm) IsRSAPSS() bool {
	switch alg.Algorithm {
	case x509.SHA256WithRSAPSS, x509.SHA384WithRSAPSS, x509.SHA512WithRSAPSS:
		return true
	default:
		return false
	}
}

// IsECDSA returns if signature algorithm uses ECDSA public key.
func (alg SignatureAlgorithm) IsECDSA() bool {
	return alg.PublicKeyAlgorithm == x509.ECDSA
}

// The set of supported algorithms is fixed.  A closed table gives the
// dispatcher and the config validator a compile-time known universe to
// check against.
var coseAlgorithms = []SignatureAlgorithm{
	{x509.ECDSAWithSHA256, x509.ECDSA, crypto.SHA256, COSEAlgES256},
	{x509.ECDSAWithSHA384, x509.ECDSA, crypto.SHA384, COSEAlgES384},
	{x509.ECDSAWithSHA512, x509.ECDSA, crypto.SHA512, COSEAlgES512},
	{x509.SHA256WithRSAPSS, x509.RSA, crypto.SHA256, COSEAlgPS256},
	{x509.SHA384WithRSAPSS, x509.RSA, crypto.SHA384, COSEAlgPS384},
	{x509.SHA512WithRSAPSS, x509.RSA, crypto.SHA512, COSEAlgPS512},
	{x509.SHA1WithRSA, x509.RSA, crypto.SHA1, COSEAlgRS1},
	{x509.SHA256WithRSA, x509.RSA, crypto.SHA256, COSEAlgRS256},
	{x509.SHA384WithRSA, x509.RSA, crypto.SHA384, COSEAlgRS384},
	{x509.SHA512WithRSA, x509.RSA, crypto.SHA512, COSEAlgRS512},
}

// CoseAlgToSignatureAlgorithm returns the signature algorithm of the given
// COSE algorithm identifier.
func CoseAlgToSignatureAlgorithm(coseAlg int) (SignatureAlgorithm, error) {
	for _, alg := range coseAlgorithms {
		if alg.COSEAlgorithm == coseAlg {
			return alg, nil
		}
	}
	return SignatureAlgorithm{}, &VerificationError{
		Reason: ReasonUnsupportedAlgorithm,
		Type:   "signature algorithm",
		Field:  "COSE algorithm",
		Msg:    "COSE algorithm " + strconv.Itoa(coseAlg) + " is not supported",
	}
}

// SignatureAlgorithmSupported returns if the given COSE algorithm is supported.
func SignatureAlgorithmSupported(coseAlg int) bool {
	_, err := CoseAlgToSignatureAlgorithm(coseAlg)
	return err == nil
}
