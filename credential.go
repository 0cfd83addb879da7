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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"github.com/ldclabs/cose/iana"
)

// Credential represents the credential algorithm and public key carried in
// authenticator data, decoded from COSE_Key format.  KeyBytes holds the raw
// key-coordinate bytes (the RSA modulus n, or the EC2 x coordinate) exactly
// as they appear on the wire; format verifiers compare them against key
// material embedded in attestation structures.
type Credential struct {
	Raw []byte
	SignatureAlgorithm
	KeyBytes []byte
	crypto.PublicKey
}

// MarshalPKIXPublicKeyPEM serializes the public key to PEM-encoded PKIX format.
func (c *Credential) MarshalPKIXPublicKeyPEM() ([]byte, error) {
	publicKeyPKIX, err := x509.MarshalPKIXPublicKey(c.PublicKey)
	if err != nil {
		return nil, err
	}
	publicKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: publicKeyPKIX,
	})
	return publicKeyPEM, nil
}

// Verify verifies the signature of a message using the credential algorithm
// and public key.  An invalid signature is a normal negative result and is
// reported as an error value, never as a panic.
func (c *Credential) Verify(message []byte, signature []byte) error {
	h := c.Hash.New()
	h.Write(message)
	digest := h.Sum(nil)

	switch pk := c.PublicKey.(type) {
	case *rsa.PublicKey:
		if c.IsRSAPSS() {
			return rsa.VerifyPSS(pk, c.Hash, digest, signature, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto})
		}
		return rsa.VerifyPKCS1v15(pk, c.Hash, digest, signature)
	case *ecdsa.PublicKey:
		type ecdsaSignature struct {
			R, S *big.Int
		}
		var ecdsaSig ecdsaSignature
		if rest, err := asn1.Unmarshal(signature, &ecdsaSig); err != nil {
			return err
		} else if len(rest) != 0 {
			return errors.New("trailing data after ECDSA signature")
		}
		if ecdsaSig.R.Sign() <= 0 || ecdsaSig.S.Sign() <= 0 {
			return errors.New("ECDSA signature contained zero or negative values")
		}
		if !ecdsa.Verify(pk, digest, ecdsaSig.R, ecdsaSig.S) {
			return errors.New("ECDSA signature verification failed")
		}
		return nil
	default:
		return &VerificationError{
			Reason: ReasonUnsupportedAlgorithm,
			Type:   "credential",
			Field:  "public key",
			Msg:    fmt.Sprintf("credential public key of type %T is not supported", c.PublicKey),
		}
	}
}

func coseCurve(crv int) elliptic.Curve {
	switch crv {
	case iana.EllipticCurveP_256:
		return elliptic.P256()
	case iana.EllipticCurveP_384:
		return elliptic.P384()
	case iana.EllipticCurveP_521:
		return elliptic.P521()
	default:
		return nil
	}
}

// ParseCredential parses a credential public key encoded in COSE_Key format.
// Key type, algorithm, and curve identifiers follow the IANA COSE registry.
func ParseCredential(coseKeyData []byte) (c *Credential, rest []byte, err error) {
	type rawCredential struct {
		Kty    int             `cbor:"1,keyasint"`
		Alg    int             `cbor:"3,keyasint"`
		CrvOrN cbor.RawMessage `cbor:"-1,keyasint"`
		XOrE   cbor.RawMessage `cbor:"-2,keyasint"`
		Y      cbor.RawMessage `cbor:"-3,keyasint"`
	}
	var raw rawCredential
	decoder := cbor.NewDecoder(bytes.NewReader(coseKeyData))
	if err = decoder.Decode(&raw); err != nil {
		return nil, nil, decodeError("credential", "", err.Error())
	}
	rest = coseKeyData[decoder.NumBytesRead():]

	signatureAlgorithm, err := CoseAlgToSignatureAlgorithm(raw.Alg)
	if err != nil {
		return nil, nil, err
	}

	switch raw.Kty {
	case iana.KeyTypeRSA:
		if !signatureAlgorithm.IsRSA() {
			return nil, nil, decodeError("credential", "",
				"COSE key type "+strconv.Itoa(raw.Kty)+" and algorithm "+strconv.Itoa(raw.Alg)+" are mismatched")
		}
		if raw.CrvOrN == nil {
			return nil, nil, decodeError("credential", "RSA n", "missing")
		}
		if raw.XOrE == nil {
			return nil, nil, decodeError("credential", "RSA e", "missing")
		}
		var nb []byte
		if err := cbor.Unmarshal(raw.CrvOrN, &nb); err != nil {
			return nil, nil, decodeError("credential", "RSA n", err.Error())
		}
		var eb []byte
		if err := cbor.Unmarshal(raw.XOrE, &eb); err != nil {
			return nil, nil, decodeError("credential", "RSA e", err.Error())
		}
		n := new(big.Int).SetBytes(nb)
		e := new(big.Int).SetBytes(eb)
		return &Credential{coseKeyData[:decoder.NumBytesRead()], signatureAlgorithm, nb, &rsa.PublicKey{N: n, E: int(e.Int64())}}, rest, nil

	case iana.KeyTypeEC2:
		if !signatureAlgorithm.IsECDSA() {
			return nil, nil, decodeError("credential", "",
				"COSE key type "+strconv.Itoa(raw.Kty)+" and algorithm "+strconv.Itoa(raw.Alg)+" are mismatched")
		}
		if raw.CrvOrN == nil {
			return nil, nil, decodeError("credential", "ECDSA curve", "missing")
		}
		if raw.XOrE == nil {
			return nil, nil, decodeError("credential", "ECDSA x", "missing")
		}
		if raw.Y == nil {
			return nil, nil, decodeError("credential", "ECDSA y", "missing")
		}
		var crvID int
		if err := cbor.Unmarshal(raw.CrvOrN, &crvID); err != nil {
			return nil, nil, decodeError("credential", "ECDSA curve", err.Error())
		}
		curve := coseCurve(crvID)
		if curve == nil {
			return nil, nil, &VerificationError{
				Reason: ReasonUnsupportedAlgorithm,
				Type:   "credential",
				Field:  "ECDSA curve",
				Msg:    "COSE curve " + strconv.Itoa(crvID) + " is not supported",
			}
		}
		var xb []byte
		if err := cbor.Unmarshal(raw.XOrE, &xb); err != nil {
			return nil, nil, decodeError("credential", "ECDSA x", err.Error())
		}
		var yb []byte
		if err := cbor.Unmarshal(raw.Y, &yb); err != nil {
			return nil, nil, decodeError("credential", "ECDSA y", err.Error())
		}
		x := new(big.Int).SetBytes(xb)
		y := new(big.Int).SetBytes(yb)
		return &Credential{coseKeyData[:decoder.NumBytesRead()], signatureAlgorithm, xb, &ecdsa.PublicKey{Curve: curve, X: x, Y: y}}, rest, nil
	}

	return nil, nil, &VerificationError{
		Reason: ReasonUnsupportedAlgorithm,
		Type:   "credential",
		Field:  "key type",
		Msg:    "COSE key type " + strconv.Itoa(raw.Kty) + " is not supported",
	}
}
