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
)

// CertificateHolder is an (alias, certificate) pair used as a trust-anchor
// entry.  The alias names the anchor's origin (keystore entry, metadata
// description) for diagnostics; trust decisions use only the certificate.
type CertificateHolder struct {
	Alias string
	Cert  *x509.Certificate
}

// TrustAnchorSource supplies trust-anchor certificates for an authenticator
// model.  Implementations return an immutable snapshot; the returned slice
// must not change for the lifetime of a verification call.
type TrustAnchorSource interface {
	// TrustAnchors returns the anchors configured for the given AAGUID.
	TrustAnchors(aaguid []byte) []CertificateHolder
}

// ValidateChain validates an ordered candidate chain (leaf first, then
// intermediates) against a set of trust anchors.  Each certificate's
// signature must be produced by the next certificate up the chain, and the
// top of the chain must either be a trust anchor itself or be signed by
// one.  On success the verified top-level certificate is returned.
//
// This is deliberately not a full standards-based path validation: the AIK
// trust model layered on top of it checks the leaf with a separate
// single-hop signature check, and the two stages are not equivalent to a
// generic path validator in edge cases (revocation, path-length limits).
func ValidateChain(chain []*x509.Certificate, anchors []CertificateHolder) (*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, &VerificationError{
			Reason: ReasonUnsupportedFormat,
			Type:   "certificate chain",
			Msg:    "no certificate path to validate",
		}
	}

	for i := 0; i < len(chain)-1; i++ {
		if err := chain[i].CheckSignatureFrom(chain[i+1]); err != nil {
			return nil, &VerificationError{
				Reason: ReasonCertificateChain,
				Type:   "certificate chain",
				Field:  "link",
				Msg:    "certificate is not signed by the next certificate up the chain: " + err.Error(),
			}
		}
	}

	top := chain[len(chain)-1]
	for _, anchor := range anchors {
		if top.Equal(anchor.Cert) {
			return top, nil
		}
	}
	for _, anchor := range anchors {
		if err := top.CheckSignatureFrom(anchor.Cert); err == nil {
			return top, nil
		}
	}

	return nil, &VerificationError{
		Reason: ReasonCertificateChain,
		Type:   "certificate chain",
		Field:  "anchor",
		Msg:    "chain does not reach a configured trust anchor",
	}
}
